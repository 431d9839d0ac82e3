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

// Package postgres is a PostgreSQL-backed sessioncache.Cache, for
// deployments that want sessions to survive a server restart.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warden-project/warden/sessioncache"
)

// Cache implements sessioncache.Cache against a `sessions` table.
//
//	CREATE TABLE sessions (
//	    id                       TEXT PRIMARY KEY,
//	    account_id               BIGINT NOT NULL,
//	    user_id                  BYTEA NOT NULL,
//	    session_key_ciphertext   BYTEA NOT NULL,
//	    created_at               TIMESTAMPTZ NOT NULL,
//	    expires_at               TIMESTAMPTZ NOT NULL
//	);
type Cache struct {
	pool *pgxpool.Pool
	ctx  context.Context
}

// New wraps an existing pool. ctx bounds every query issued by Cache;
// callers needing per-call cancellation should use a background context
// here and rely on the pool's own statement timeout.
func New(ctx context.Context, pool *pgxpool.Pool) *Cache {
	return &Cache{pool: pool, ctx: ctx}
}

func (c *Cache) Create(accountID int64, userID []byte, encryptedSessionKey []byte, ttl time.Duration) (string, error) {
	sessionID := uuid.NewString()
	now := time.Now()

	_, err := c.pool.Exec(c.ctx, `
		INSERT INTO sessions (id, account_id, user_id, session_key_ciphertext, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sessionID, accountID, userID, encryptedSessionKey, now, now.Add(ttl))
	if err != nil {
		return "", fmt.Errorf("sessioncache: create: %w", err)
	}

	return sessionID, nil
}

func (c *Cache) Find(sessionID string) (*sessioncache.Session, sessioncache.Result, error) {
	var s sessioncache.Session
	s.SessionID = sessionID

	err := c.pool.QueryRow(c.ctx, `
		SELECT account_id, user_id, session_key_ciphertext, created_at, expires_at
		FROM sessions WHERE id = $1
	`, sessionID).Scan(&s.AccountID, &s.UserID, &s.SessionKeyCiphertext, &s.CreatedAt, &s.ExpiresAt)

	if err == pgx.ErrNoRows {
		return nil, sessioncache.ResultMissing, nil
	}
	if err != nil {
		return nil, sessioncache.ResultMissing, fmt.Errorf("sessioncache: find: %w", err)
	}

	if !time.Now().Before(s.ExpiresAt) {
		_, _ = c.pool.Exec(c.ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
		return nil, sessioncache.ResultExpired, nil
	}

	return &s, sessioncache.ResultFound, nil
}

func (c *Cache) Delete(sessionID string) error {
	_, err := c.pool.Exec(c.ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("sessioncache: delete: %w", err)
	}
	return nil
}

// DeleteExpired sweeps every row past its expiry; intended for a periodic
// janitor goroutine, not part of the sessioncache.Cache interface.
func (c *Cache) DeleteExpired() (int64, error) {
	tag, err := c.pool.Exec(c.ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("sessioncache: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
