// Copyright (C) 2025 warden-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package wardenerr defines the typed error vocabulary shared by every
// operation state machine and the single point (ToStatus) that sanitizes
// them into gRPC status codes at the dispatcher boundary.
package wardenerr

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code identifies a class of operation failure. Operation state machines
// return one of these (wrapped with context via New/Wrap); nothing but
// the dispatcher's ToStatus ever translates a Code into a wire status.
type Code int

const (
	CodeUnknown Code = iota
	CodeInvalidAccount
	CodeInvalidLogin
	CodeDuplicateAccount
	CodeKeyNotFound
	CodeDuplicateKey
	CodeIncorrectKeyMetadata
	CodeInvalidSession
	CodeExpiredSession
	CodeUnauthenticated
	CodeInvalidCiphertext
	CodeCryptoFailure
	CodeStorageUnavailable
	CodeInvalidRequest
	CodeInternal
	CodeStorageKeyAlreadySet
	CodeStorageKeyNotSet
	CodeBlobTooLarge
	CodeAuthenticatedChannelNeeded
	CodeUnauthenticatedChannelNeeded
	CodeChannelClosed
	CodeNoMessageReceived
	CodeInvalidMessage
	CodeTransport
)

func (c Code) String() string {
	switch c {
	case CodeInvalidAccount:
		return "invalid_account"
	case CodeInvalidLogin:
		return "invalid_login"
	case CodeDuplicateAccount:
		return "duplicate_account"
	case CodeKeyNotFound:
		return "key_not_found"
	case CodeDuplicateKey:
		return "duplicate_key"
	case CodeIncorrectKeyMetadata:
		return "incorrect_key_metadata"
	case CodeInvalidSession:
		return "invalid_session"
	case CodeExpiredSession:
		return "expired_session"
	case CodeUnauthenticated:
		return "unauthenticated"
	case CodeInvalidCiphertext:
		return "invalid_ciphertext"
	case CodeCryptoFailure:
		return "crypto_failure"
	case CodeStorageUnavailable:
		return "storage_unavailable"
	case CodeInvalidRequest:
		return "invalid_request"
	case CodeInternal:
		return "internal"
	case CodeStorageKeyAlreadySet:
		return "storage_key_already_set"
	case CodeStorageKeyNotSet:
		return "storage_key_not_set"
	case CodeBlobTooLarge:
		return "blob_too_large"
	case CodeAuthenticatedChannelNeeded:
		return "authenticated_channel_needed"
	case CodeUnauthenticatedChannelNeeded:
		return "unauthenticated_channel_needed"
	case CodeChannelClosed:
		return "channel_closed"
	case CodeNoMessageReceived:
		return "no_message_received"
	case CodeInvalidMessage:
		return "invalid_message"
	case CodeTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the typed error every store, operation, and dispatcher
// component returns instead of a
// bare error or a gRPC status. It carries enough context for both the
// audit log and ToStatus, without leaking internal detail to the wire by
// default (Detail is logged, never sent).
type Error struct {
	Code    Code
	Message string
	Detail  string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code to an underlying error, preserving it for logging
// and errors.Is/As chains without exposing it on the wire.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail attaches additional diagnostic detail, logged but never
// placed on the wire by ToStatus.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Sentinel errors for common conditions, matched with errors.Is by
// store implementations and operation state machines.
var (
	ErrInvalidAccount        = New(CodeInvalidAccount, "account does not exist")
	ErrInvalidLogin          = New(CodeInvalidLogin, "invalid login")
	ErrDuplicateAccount      = New(CodeDuplicateAccount, "account name already registered")
	ErrKeyNotFound           = New(CodeKeyNotFound, "key not found")
	ErrDuplicateKey          = New(CodeDuplicateKey, "key already exists")
	ErrIncorrectKeyMetadata  = New(CodeIncorrectKeyMetadata, "key metadata does not match request")
	ErrInvalidSession        = New(CodeInvalidSession, "invalid session")
	ErrExpiredSession        = New(CodeExpiredSession, "session expired")
	ErrUnauthenticated       = New(CodeUnauthenticated, "authentication required")
	ErrInvalidCiphertext     = New(CodeInvalidCiphertext, "ciphertext failed authentication")
	ErrStorageUnavailable    = New(CodeStorageUnavailable, "storage unavailable")
	ErrStorageKeyAlreadySet  = New(CodeStorageKeyAlreadySet, "storage key already set")
	ErrStorageKeyNotSet      = New(CodeStorageKeyNotSet, "storage key not set")
	ErrBlobTooLarge          = New(CodeBlobTooLarge, "blob exceeds max_blob_size")
	ErrAuthenticatedChannelNeeded   = New(CodeAuthenticatedChannelNeeded, "operation requires an authenticated channel")
	ErrUnauthenticatedChannelNeeded = New(CodeUnauthenticatedChannelNeeded, "operation requires an unauthenticated channel")
	ErrChannelClosed         = New(CodeChannelClosed, "channel closed")
	ErrNoMessageReceived     = New(CodeNoMessageReceived, "no message received")
	ErrInvalidMessage        = New(CodeInvalidMessage, "message did not parse")
)

// Is reports whether err is (or wraps) a *Error with the given code.
func Is(err error, code Code) bool {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code == code
	}
	return false
}

// ToStatus is the single sanitization point: every error that reaches the
// dispatcher boundary is translated here, and only here, into a gRPC
// status. Detail is never copied onto the wire.
func ToStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}

	var werr *Error
	if !errors.As(err, &werr) {
		return status.New(codes.Internal, "internal error")
	}

	switch werr.Code {
	case CodeInvalidAccount, CodeKeyNotFound, CodeIncorrectKeyMetadata:
		return status.New(codes.NotFound, werr.Message)
	case CodeInvalidLogin:
		return status.New(codes.Unauthenticated, werr.Message)
	case CodeDuplicateAccount, CodeDuplicateKey:
		return status.New(codes.AlreadyExists, werr.Message)
	case CodeInvalidSession, CodeExpiredSession, CodeUnauthenticated:
		// Deliberately distinct from a storage failure: a client must be
		// able to tell "log in again" from "try later".
		return status.New(codes.Unauthenticated, werr.Message)
	case CodeInvalidCiphertext, CodeCryptoFailure:
		return status.New(codes.InvalidArgument, "cryptographic verification failed")
	case CodeInvalidRequest, CodeInvalidMessage:
		return status.New(codes.InvalidArgument, werr.Message)
	case CodeStorageKeyAlreadySet, CodeStorageKeyNotSet:
		return status.New(codes.FailedPrecondition, werr.Message)
	case CodeBlobTooLarge:
		return status.New(codes.InvalidArgument, werr.Message)
	case CodeAuthenticatedChannelNeeded, CodeUnauthenticatedChannelNeeded:
		return status.New(codes.InvalidArgument, werr.Message)
	case CodeChannelClosed:
		return status.New(codes.Unavailable, werr.Message)
	case CodeNoMessageReceived:
		return status.New(codes.DeadlineExceeded, werr.Message)
	case CodeTransport:
		return status.New(codes.Unavailable, "internal error")
	case CodeStorageUnavailable:
		// A cache/store outage must never present as "unauthenticated" —
		// that would be mistaken for ordinary session expiry.
		return status.New(codes.Internal, "internal error")
	default:
		return status.New(codes.Internal, "internal error")
	}
}

// FormatAudit renders a short, wire-safe audit message for an AuditEvent's
// Failed status: the code, never Detail or the wrapped cause.
func FormatAudit(err error) string {
	var werr *Error
	if errors.As(err, &werr) {
		return fmt.Sprintf("%s: %s", werr.Code, werr.Message)
	}
	return "internal error"
}
