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

// Package secretstore defines the persistent store of
// accounts, their typed secrets, and the append-only audit log. The
// single most important invariant it enforces is ownership: GetSecret
// must check (account_id, key_id) jointly, so an account can never read
// a secret it merely guessed the key-id of.
package secretstore

import "time"

// SecretType identifies what a StoredSecret's ciphertext decrypts to.
type SecretType int

const (
	SecretTypeArbitrary SecretType = iota
	SecretTypeSigningKeyPair
	SecretTypeRemoteSigningKey
	SecretTypeServerEncryptedBlob
)

func (t SecretType) String() string {
	switch t {
	case SecretTypeArbitrary:
		return "arbitrary_secret"
	case SecretTypeSigningKeyPair:
		return "signing_key_pair"
	case SecretTypeRemoteSigningKey:
		return "remote_signing_key"
	case SecretTypeServerEncryptedBlob:
		return "server_encrypted_blob"
	default:
		return "unknown"
	}
}

// Account is a registered user. EncryptedStorageKey is set exactly once,
// immediately after registration, by the create-storage-key operation.
type Account struct {
	AccountID                  int64
	AccountName                string
	UserID                     []byte
	OpaqueServerRegistrationBlob []byte
	EncryptedStorageKey        []byte // nil until create-storage-key runs
	CreatedAt                  time.Time
}

// StoredSecret is one ciphertext owned by an account. Retrieved flips
// from false to true on first successful retrieval and never back.
type StoredSecret struct {
	KeyID      []byte
	AccountID  int64
	SecretType SecretType
	Bytes      []byte
	Retrieved  bool
	CreatedAt  time.Time
}

// EventStatus is the lifecycle state of one AuditEvent.
type EventStatus int

const (
	EventStarted EventStatus = iota
	EventSuccessful
	EventFailed
)

func (s EventStatus) String() string {
	switch s {
	case EventStarted:
		return "started"
	case EventSuccessful:
		return "successful"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AuditEvent is one append-only audit log row. For every RequestID there
// must be exactly one Started event and exactly one terminal
// (Successful|Failed) event, in that order.
type AuditEvent struct {
	RequestID string
	AccountID int64
	KeyID     []byte // nil when the action has no associated key
	Action    string
	Status    EventStatus
	Message   string // set only on EventFailed; a wardenerr.FormatAudit() summary
	Timestamp time.Time
}

// SecretFilter narrows GetSecret's secret_type expectation. With Any set,
// any secret type is accepted; otherwise only SecretType matches, so the
// zero value accepts only SecretTypeArbitrary.
type SecretFilter struct {
	SecretType SecretType
	Any        bool
}

// AuditFilter narrows FindAuditEvents. All fields are optional.
type AuditFilter struct {
	KeyIDs []string // hex-encoded key-ids, matched if non-empty
	After  *time.Time
	Before *time.Time
}

// MaxAuditEntries bounds the size of any single FindAuditEvents response.
const MaxAuditEntries = 1000

// Store is the persistence interface, abstract over the storage engine.
type Store interface {
	CreateUser(userID []byte, accountName string, serverRegistrationBlob []byte) (*Account, error)
	FindUser(accountName string) (*Account, error)
	FindUserByID(userID []byte) (*Account, error)
	SetStorageKey(userID []byte, encryptedStorageKey []byte) error
	DeleteUser(userID []byte) error

	AddSecret(secret *StoredSecret) error
	GetSecret(accountID int64, keyID []byte, filter SecretFilter) (*StoredSecret, error)
	DeleteSecret(accountID int64, keyID []byte) error
	MarkRetrieved(accountID int64, keyID []byte) error

	CreateAuditEvent(event *AuditEvent) error
	FindAuditEvents(accountName string, action string, filter AuditFilter) ([]*AuditEvent, error)

	Close() error
	Ping() error
}
