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

// Package memory is an in-process sessioncache.Cache backed by a mutex-
// guarded map. Suitable as the default cache for a single-instance
// deployment, and as the fixture used by every operation state machine's
// tests.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-project/warden/sessioncache"
)

// Cache implements sessioncache.Cache with an in-memory map.
type Cache struct {
	mu       sync.RWMutex
	sessions map[string]*sessioncache.Session
}

// New creates an empty in-memory cache.
func New() *Cache {
	return &Cache{sessions: make(map[string]*sessioncache.Session)}
}

func (c *Cache) Create(accountID int64, userID []byte, encryptedSessionKey []byte, ttl time.Duration) (string, error) {
	sessionID := uuid.NewString()
	now := time.Now()

	userIDCopy := append([]byte(nil), userID...)
	keyCopy := append([]byte(nil), encryptedSessionKey...)

	c.mu.Lock()
	c.sessions[sessionID] = &sessioncache.Session{
		SessionID:            sessionID,
		AccountID:            accountID,
		UserID:               userIDCopy,
		SessionKeyCiphertext: keyCopy,
		CreatedAt:            now,
		ExpiresAt:            now.Add(ttl),
	}
	c.mu.Unlock()

	return sessionID, nil
}

func (c *Cache) Find(sessionID string) (*sessioncache.Session, sessioncache.Result, error) {
	c.mu.RLock()
	session, ok := c.sessions[sessionID]
	c.mu.RUnlock()

	if !ok {
		return nil, sessioncache.ResultMissing, nil
	}

	if time.Now().After(session.ExpiresAt) || time.Now().Equal(session.ExpiresAt) {
		// Opportunistically delete on read.
		c.mu.Lock()
		delete(c.sessions, sessionID)
		c.mu.Unlock()
		return nil, sessioncache.ResultExpired, nil
	}

	sessionCopy := *session
	return &sessionCopy, sessioncache.ResultFound, nil
}

func (c *Cache) Delete(sessionID string) error {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	return nil
}

// DeleteExpired sweeps every expired row; useful for a periodic janitor
// goroutine. Not part of the sessioncache.Cache interface.
func (c *Cache) DeleteExpired() int {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for id, session := range c.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(c.sessions, id)
			removed++
		}
	}
	c.mu.Unlock()

	return removed
}

// Count returns the number of rows currently held, expired or not.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
