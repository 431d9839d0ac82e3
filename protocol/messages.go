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

package protocol

import (
	"time"

	wcrypto "github.com/warden-project/warden/crypto"
)

// Message is the marker every typed payload that crosses a channel must
// implement. RequiresAuthentication is checked against the channel's own
// authentication tag by package channel on every Send/Receive; it is the
// same value for every message belonging to one operation, since the
// dispatcher resolves (or deliberately skips) authentication once, before
// the state machine runs.
type Message interface {
	RequiresAuthentication() bool
}

// unauthenticated and authenticated are embedded by every concrete
// message type below to satisfy Message without repeating the method.
type unauthenticated struct{}

func (unauthenticated) RequiresAuthentication() bool { return false }

type authenticated struct{}

func (authenticated) RequiresAuthentication() bool { return true }

// --- Register ---

type RegisterStartRequest struct {
	unauthenticated
	AccountName string                            `json:"account_name"`
	Request     wcrypto.RegistrationRequestWire    `json:"request"`
}

type RegisterStartResponse struct {
	unauthenticated
	Response wcrypto.RegistrationResponseWire `json:"response"`
}

type RegisterFinishRequest struct {
	unauthenticated
	Upload wcrypto.RegistrationRecordWire `json:"upload"`
}

type RegisterFinishResponse struct {
	unauthenticated
	Success bool `json:"success"`
}

// --- Authenticate ---

type AuthStartRequest struct {
	unauthenticated
	AccountName string                   `json:"account_name"`
	Request     wcrypto.AuthRequestWire  `json:"request"`
}

type AuthStartResponse struct {
	unauthenticated
	Response wcrypto.AuthResponseWire `json:"response"`
}

type AuthFinishRequest struct {
	unauthenticated
	Finalization []byte `json:"finalization"`
}

type AuthFinishResponse struct {
	unauthenticated
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
}

// --- CreateStorageKey ---

type CreateStorageKeyUserID struct {
	authenticated
	UserID []byte `json:"user_id"`
}

type CreateStorageKeyUpload struct {
	authenticated
	EncryptedStorageKey []byte `json:"encrypted_storage_key"`
}

type CreateStorageKeyAck struct {
	authenticated
	Success bool `json:"success"`
}

// --- RetrieveStorageKey ---

type RetrieveStorageKeyRequest struct {
	authenticated
	UserID []byte `json:"user_id"`
}

type RetrieveStorageKeyResponse struct {
	authenticated
	EncryptedStorageKey []byte `json:"encrypted_storage_key"`
}

// --- GenerateSecret ---

type GenerateSecretKeyID struct {
	authenticated
	KeyID []byte `json:"key_id"`
}

type GenerateSecretUpload struct {
	authenticated
	Ciphertext []byte `json:"ciphertext"`
}

type GenerateSecretAck struct {
	authenticated
	Success bool `json:"success"`
}

// --- RetrieveSecret ---

// RetrieveContext declares what the caller intends to do with a
// retrieved secret: Null means "confirm existence only, discard the
// payload"; LocalOnly means the caller will decrypt locally. The server
// returns the same ciphertext either way.
type RetrieveContext string

const (
	RetrieveContextNull      RetrieveContext = "null"
	RetrieveContextLocalOnly RetrieveContext = "local_only"
)

type RetrieveSecretRequest struct {
	authenticated
	KeyID   []byte          `json:"key_id"`
	Context RetrieveContext `json:"context"`
}

type RetrieveSecretResponse struct {
	authenticated
	Ciphertext []byte `json:"ciphertext"`
}

// --- ImportSigningKey ---

type ImportSigningKeyRequest struct {
	authenticated
	Seed []byte `json:"seed"` // 32 raw bytes
}

type ImportSigningKeyResponse struct {
	authenticated
	KeyID     []byte `json:"key_id"`
	PublicKey []byte `json:"public_key"`
}

// --- RemoteGenerateSigningKey ---

type RemoteGenerateSigningKeyRequest struct {
	authenticated
}

type RemoteGenerateSigningKeyResponse struct {
	authenticated
	KeyID     []byte `json:"key_id"`
	PublicKey []byte `json:"public_key"`
}

// --- RemoteSignBytes ---

type RemoteSignBytesRequest struct {
	authenticated
	KeyID []byte `json:"key_id"`
	Bytes []byte `json:"bytes"`
}

type RemoteSignBytesResponse struct {
	authenticated
	Signature []byte `json:"signature"`
}

// --- StoreServerEncryptedBlob ---

type StoreBlobRequest struct {
	authenticated
	Blob []byte `json:"blob"`
}

type StoreBlobResponse struct {
	authenticated
	KeyID []byte `json:"key_id"`
}

// --- RetrieveServerEncryptedBlob ---

type RetrieveBlobRequest struct {
	authenticated
	KeyID []byte `json:"key_id"`
}

type RetrieveBlobResponse struct {
	authenticated
	Blob []byte `json:"blob"`
}

// --- DeleteKey ---

type DeleteKeyRequest struct {
	authenticated
	KeyID []byte `json:"key_id"`
}

type DeleteKeyResponse struct {
	authenticated
	Success bool `json:"success"`
}

// --- Logout ---

type LogoutRequest struct {
	authenticated
}

type LogoutResponse struct {
	authenticated
	Success bool `json:"success"`
}

// --- GetUserId ---

type GetUserIDRequest struct {
	authenticated
}

type GetUserIDResponse struct {
	authenticated
	UserID []byte `json:"user_id"`
}

// --- RetrieveAuditEvents ---

// EventType selects the audit subset RetrieveAuditEvents returns:
// System events are not scoped to a single key (register, authenticate,
// logout, ...); Key events carry a KeyID.
type EventType string

const (
	EventTypeSystem EventType = "system"
	EventTypeKey    EventType = "key"
)

type AuditEventWire struct {
	RequestID string    `json:"request_id"`
	KeyID     []byte    `json:"key_id,omitempty"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type RetrieveAuditEventsRequest struct {
	authenticated
	EventType EventType  `json:"event_type"`
	KeyIDs    [][]byte   `json:"key_ids,omitempty"`
	After     *time.Time `json:"after,omitempty"`
	Before    *time.Time `json:"before,omitempty"`
	Cursor    string     `json:"cursor,omitempty"`
}

type RetrieveAuditEventsResponse struct {
	authenticated
	Events []AuditEventWire `json:"events"`
	Cursor string           `json:"cursor,omitempty"`
}

// --- Health / Metrics / CheckSession ---

type HealthRequest struct {
	unauthenticated
}

type HealthResponse struct {
	unauthenticated
	Healthy bool `json:"healthy"`
}

type MetricsRequest struct {
	unauthenticated
}

type MetricsResponse struct {
	unauthenticated
	MeanResponseTimeMillis map[string]float64 `json:"mean_response_time_ms"`
}

// CheckSessionRequest is the lightweight session probe: it runs on an
// unauthenticated channel and reads session validity itself instead of
// making the dispatcher enforce it, and emits no audit event.
type CheckSessionRequest struct {
	unauthenticated
	SessionID string `json:"session_id"`
}

type CheckSessionResponse struct {
	unauthenticated
	Valid bool `json:"valid"`
}

// ErrorFrame is what Channel.SendError marshals onto the wire before the
// dispatcher terminates the gRPC stream with the matching status; kept
// distinct from every other Message so a client can recognize a
// terminal error frame defensively even though the gRPC status trailer
// is authoritative.
type ErrorFrame struct {
	unauthenticated
	Code    string `json:"code"`
	Message string `json:"message"`
}
