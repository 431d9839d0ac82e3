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

// Package sessioncache defines a session-id -> (account,
// encrypted session key, absolute expiry) map with create/find/delete
// semantics. A cache outage at dispatch time must surface as an internal
// error, never as "unauthenticated" (see Result and the dispatcher's use
// of ErrStorageUnavailable), so that genuine session expiry is never
// confused with a cache being unreachable.
package sessioncache

import "time"

// Session is one authenticated session: the account and user it belongs
// to, the session key (already encrypted under a key only the client
// holds), and its absolute expiry.
type Session struct {
	SessionID            string
	AccountID            int64
	UserID               []byte
	SessionKeyCiphertext []byte
	CreatedAt            time.Time
	ExpiresAt            time.Time
}

// Result classifies the outcome of a Find call.
type Result int

const (
	// ResultFound means the session exists and has not expired.
	ResultFound Result = iota
	// ResultExpired means a session row existed but now >= expires_at.
	ResultExpired
	// ResultMissing means no such session ever existed, or it has already
	// been deleted.
	ResultMissing
)

func (r Result) String() string {
	switch r {
	case ResultFound:
		return "found"
	case ResultExpired:
		return "expired"
	default:
		return "missing"
	}
}

// Cache is the session cache interface. Implementations must be safe for concurrent
// use by many dispatcher goroutines at once.
type Cache interface {
	// Create stores a new session with expires_at = now + ttl and returns
	// its session-id. Any prior session for the same account is left
	// untouched: concurrent sessions per account are permitted.
	Create(accountID int64, userID []byte, encryptedSessionKey []byte, ttl time.Duration) (sessionID string, err error)

	// Find looks up a session by id. It never returns ResultExpired rows
	// in the returned Session: a nil Session accompanies anything but
	// ResultFound.
	Find(sessionID string) (*Session, Result, error)

	// Delete removes a session. It is idempotent: deleting an absent or
	// already-expired session is not an error.
	Delete(sessionID string) error
}
