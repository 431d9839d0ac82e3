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

// Package protocol defines the wire-level contract shared by the server's
// operation state machines and the client driver: the action
// vocabulary, gRPC metadata keys, and every typed message exchanged over
// a channel. Nothing in this package touches storage, crypto, or
// transport; it is the vocabulary both sides agree on.
package protocol

// Action identifies which operation state machine an Operate stream is
// bound to.
type Action string

const (
	ActionRegister                     Action = "register"
	ActionAuthenticate                 Action = "authenticate"
	ActionCreateStorageKey             Action = "create_storage_key"
	ActionRetrieveStorageKey           Action = "retrieve_storage_key"
	ActionGenerateSecret               Action = "generate_secret"
	ActionRetrieveSecret               Action = "retrieve_secret"
	ActionImportSigningKey             Action = "import_signing_key"
	ActionRemoteGenerateSigningKey     Action = "remote_generate_signing_key"
	ActionRemoteSignBytes              Action = "remote_sign_bytes"
	ActionStoreServerEncryptedBlob     Action = "store_server_encrypted_blob"
	ActionRetrieveServerEncryptedBlob  Action = "retrieve_server_encrypted_blob"
	ActionDeleteKey                    Action = "delete_key"
	ActionLogout                       Action = "logout"
	ActionGetUserID                    Action = "get_user_id"
	ActionRetrieveAuditEvents          Action = "retrieve_audit_events"
	ActionHealth                       Action = "health"
	ActionMetrics                      Action = "metrics"
	ActionCheckSession                 Action = "check_session"
)

// RequiresAuthentication reports whether the dispatcher must resolve a
// session before constructing this action's channel. Register,
// Authenticate, Health, Metrics, and CheckSession run on an
// unauthenticated channel; CheckSession reads session validity itself
// rather than having the dispatcher enforce it.
func (a Action) RequiresAuthentication() bool {
	switch a {
	case ActionRegister, ActionAuthenticate, ActionHealth, ActionMetrics, ActionCheckSession:
		return false
	default:
		return true
	}
}

// Valid reports whether a is a recognized action.
func (a Action) Valid() bool {
	switch a {
	case ActionRegister, ActionAuthenticate, ActionCreateStorageKey, ActionRetrieveStorageKey,
		ActionGenerateSecret, ActionRetrieveSecret, ActionImportSigningKey,
		ActionRemoteGenerateSigningKey, ActionRemoteSignBytes, ActionStoreServerEncryptedBlob,
		ActionRetrieveServerEncryptedBlob, ActionDeleteKey, ActionLogout, ActionGetUserID,
		ActionRetrieveAuditEvents, ActionHealth, ActionMetrics, ActionCheckSession:
		return true
	default:
		return false
	}
}

// Metadata keys carried on the gRPC request, read by the dispatcher
// before it constructs a channel for the stream.
const (
	MetadataAction      = "warden-action"
	MetadataSessionID   = "warden-session-id"
	MetadataAccountName = "warden-account-name"
	MetadataRequestID   = "warden-request-id"
)
