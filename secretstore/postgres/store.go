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

// Package postgres is a PostgreSQL-backed secretstore.Store.
//
//	CREATE TABLE accounts (
//	    account_id                     BIGSERIAL PRIMARY KEY,
//	    account_name                    TEXT UNIQUE NOT NULL,
//	    user_id                         BYTEA UNIQUE NOT NULL,
//	    opaque_server_registration_blob BYTEA NOT NULL,
//	    encrypted_storage_key           BYTEA,
//	    created_at                      TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE stored_secrets (
//	    account_id   BIGINT NOT NULL REFERENCES accounts(account_id) ON DELETE CASCADE,
//	    key_id       BYTEA NOT NULL,
//	    secret_type  SMALLINT NOT NULL,
//	    bytes        BYTEA NOT NULL,
//	    retrieved    BOOLEAN NOT NULL DEFAULT false,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (account_id, key_id)
//	);
//	CREATE TABLE audit_events (
//	    request_id TEXT NOT NULL,
//	    account_id BIGINT NOT NULL,
//	    key_id     BYTEA,
//	    action     TEXT NOT NULL,
//	    status     SMALLINT NOT NULL,
//	    message    TEXT,
//	    timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/secretstore"
)

// Store implements secretstore.Store against PostgreSQL via pgx.
type Store struct {
	pool *pgxpool.Pool
	ctx  context.Context
}

// New wraps an existing pool.
func New(ctx context.Context, pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ctx: ctx}
}

// Connect dials Postgres, pings it, and returns a ready Store.
func Connect(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("secretstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("secretstore: ping: %w", err)
	}
	return New(ctx, pool), nil
}

func (s *Store) CreateUser(userID []byte, accountName string, serverRegistrationBlob []byte) (*secretstore.Account, error) {
	var account secretstore.Account
	account.AccountName = accountName
	account.UserID = userID
	account.OpaqueServerRegistrationBlob = serverRegistrationBlob

	err := s.pool.QueryRow(s.ctx, `
		INSERT INTO accounts (account_name, user_id, opaque_server_registration_blob)
		VALUES ($1, $2, $3)
		RETURNING account_id, created_at
	`, accountName, userID, serverRegistrationBlob).Scan(&account.AccountID, &account.CreatedAt)

	if isUniqueViolation(err) {
		return nil, wardenerr.ErrDuplicateAccount
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: create user: %w", err)
	}
	return &account, nil
}

func (s *Store) FindUser(accountName string) (*secretstore.Account, error) {
	return s.findUser(`account_name = $1`, accountName)
}

func (s *Store) FindUserByID(userID []byte) (*secretstore.Account, error) {
	return s.findUser(`user_id = $1`, userID)
}

func (s *Store) findUser(where string, arg interface{}) (*secretstore.Account, error) {
	var account secretstore.Account
	err := s.pool.QueryRow(s.ctx, `
		SELECT account_id, account_name, user_id, opaque_server_registration_blob, encrypted_storage_key, created_at
		FROM accounts WHERE `+where, arg).Scan(
		&account.AccountID, &account.AccountName, &account.UserID,
		&account.OpaqueServerRegistrationBlob, &account.EncryptedStorageKey, &account.CreatedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: find user: %w", err)
	}
	return &account, nil
}

func (s *Store) SetStorageKey(userID []byte, encryptedStorageKey []byte) error {
	tag, err := s.pool.Exec(s.ctx, `
		UPDATE accounts SET encrypted_storage_key = $1 WHERE user_id = $2
	`, encryptedStorageKey, userID)
	if err != nil {
		return fmt.Errorf("secretstore: set storage key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wardenerr.ErrInvalidAccount
	}
	return nil
}

func (s *Store) DeleteUser(userID []byte) error {
	tag, err := s.pool.Exec(s.ctx, `DELETE FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("secretstore: delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wardenerr.ErrInvalidAccount
	}
	return nil
}

func (s *Store) AddSecret(secret *secretstore.StoredSecret) error {
	_, err := s.pool.Exec(s.ctx, `
		INSERT INTO stored_secrets (account_id, key_id, secret_type, bytes, retrieved)
		VALUES ($1, $2, $3, $4, false)
	`, secret.AccountID, secret.KeyID, secret.SecretType, secret.Bytes)

	if isUniqueViolation(err) {
		return wardenerr.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("secretstore: add secret: %w", err)
	}
	return nil
}

func (s *Store) GetSecret(accountID int64, keyID []byte, filter secretstore.SecretFilter) (*secretstore.StoredSecret, error) {
	var secret secretstore.StoredSecret
	secret.AccountID = accountID
	secret.KeyID = keyID

	err := s.pool.QueryRow(s.ctx, `
		SELECT secret_type, bytes, retrieved, created_at
		FROM stored_secrets WHERE account_id = $1 AND key_id = $2
	`, accountID, keyID).Scan(&secret.SecretType, &secret.Bytes, &secret.Retrieved, &secret.CreatedAt)

	if err == pgx.ErrNoRows {
		// A key held by a different account is a metadata mismatch, not
		// an absent key.
		var n int
		countErr := s.pool.QueryRow(s.ctx, `
			SELECT count(*) FROM stored_secrets WHERE key_id = $1
		`, keyID).Scan(&n)
		if countErr == nil && n > 0 {
			return nil, wardenerr.ErrIncorrectKeyMetadata
		}
		return nil, wardenerr.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: get secret: %w", err)
	}
	if !filter.Any && secret.SecretType != filter.SecretType {
		return nil, wardenerr.ErrIncorrectKeyMetadata
	}
	return &secret, nil
}

func (s *Store) DeleteSecret(accountID int64, keyID []byte) error {
	tag, err := s.pool.Exec(s.ctx, `
		DELETE FROM stored_secrets WHERE account_id = $1 AND key_id = $2
	`, accountID, keyID)
	if err != nil {
		return fmt.Errorf("secretstore: delete secret: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wardenerr.ErrKeyNotFound
	}
	return nil
}

func (s *Store) MarkRetrieved(accountID int64, keyID []byte) error {
	tag, err := s.pool.Exec(s.ctx, `
		UPDATE stored_secrets SET retrieved = true WHERE account_id = $1 AND key_id = $2
	`, accountID, keyID)
	if err != nil {
		return fmt.Errorf("secretstore: mark retrieved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wardenerr.ErrKeyNotFound
	}
	return nil
}

func (s *Store) CreateAuditEvent(event *secretstore.AuditEvent) error {
	_, err := s.pool.Exec(s.ctx, `
		INSERT INTO audit_events (request_id, account_id, key_id, action, status, message, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, event.RequestID, event.AccountID, event.KeyID, event.Action, event.Status, event.Message)
	if err != nil {
		return fmt.Errorf("secretstore: create audit event: %w", err)
	}
	return nil
}

func (s *Store) FindAuditEvents(accountName string, action string, filter secretstore.AuditFilter) ([]*secretstore.AuditEvent, error) {
	account, err := s.FindUser(accountName)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, wardenerr.ErrInvalidAccount
	}

	query := `
		SELECT request_id, account_id, key_id, action, status, message, timestamp
		FROM audit_events WHERE account_id = $1
	`
	args := []interface{}{account.AccountID}

	if action != "" {
		args = append(args, action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.After != nil {
		args = append(args, *filter.After)
		query += fmt.Sprintf(" AND timestamp > $%d", len(args))
	}
	if filter.Before != nil {
		args = append(args, *filter.Before)
		query += fmt.Sprintf(" AND timestamp < $%d", len(args))
	}
	// Newest rows win the bound; the slice is flipped back to ascending
	// below so every backend returns the same order.
	query += " ORDER BY timestamp DESC, request_id DESC"
	args = append(args, secretstore.MaxAuditEntries)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.pool.Query(s.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("secretstore: find audit events: %w", err)
	}
	defer rows.Close()

	keyIDSet := make(map[string]bool, len(filter.KeyIDs))
	for _, k := range filter.KeyIDs {
		keyIDSet[k] = true
	}

	var events []*secretstore.AuditEvent
	for rows.Next() {
		var e secretstore.AuditEvent
		if err := rows.Scan(&e.RequestID, &e.AccountID, &e.KeyID, &e.Action, &e.Status, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("secretstore: scan audit event: %w", err)
		}
		if len(keyIDSet) > 0 {
			if e.KeyID == nil || !keyIDSet[fmt.Sprintf("%x", e.KeyID)] {
				continue
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping() error {
	return s.pool.Ping(s.ctx)
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505): a duplicate account_name, user_id, or (account_id,
// key_id) pair.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
