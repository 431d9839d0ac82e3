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

// Package memory is an in-process secretstore.Store backed by mutex-
// guarded maps. Used for tests and single-instance trial deployments.
package memory

import (
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/secretstore"
)

type secretKey struct {
	accountID int64
	keyID     string
}

// Store implements secretstore.Store with in-memory maps.
type Store struct {
	mu sync.RWMutex

	accountsByName map[string]*secretstore.Account
	accountsByUser map[string]*secretstore.Account // keyed by hex(user_id)
	nextAccountID  int64

	secrets map[secretKey]*secretstore.StoredSecret

	auditEvents []*secretstore.AuditEvent
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accountsByName: make(map[string]*secretstore.Account),
		accountsByUser: make(map[string]*secretstore.Account),
		secrets:        make(map[secretKey]*secretstore.StoredSecret),
	}
}

func (s *Store) CreateUser(userID []byte, accountName string, serverRegistrationBlob []byte) (*secretstore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accountsByName[accountName]; exists {
		return nil, wardenerr.ErrDuplicateAccount
	}

	s.nextAccountID++
	account := &secretstore.Account{
		AccountID:                    s.nextAccountID,
		AccountName:                  accountName,
		UserID:                       append([]byte(nil), userID...),
		OpaqueServerRegistrationBlob: append([]byte(nil), serverRegistrationBlob...),
		CreatedAt:                    time.Now(),
	}

	s.accountsByName[accountName] = account
	s.accountsByUser[hex.EncodeToString(userID)] = account
	return cloneAccount(account), nil
}

func (s *Store) FindUser(accountName string) (*secretstore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accountsByName[accountName]
	if !ok {
		return nil, nil
	}
	return cloneAccount(account), nil
}

func (s *Store) FindUserByID(userID []byte) (*secretstore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accountsByUser[hex.EncodeToString(userID)]
	if !ok {
		return nil, nil
	}
	return cloneAccount(account), nil
}

func (s *Store) SetStorageKey(userID []byte, encryptedStorageKey []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accountsByUser[hex.EncodeToString(userID)]
	if !ok {
		return wardenerr.ErrInvalidAccount
	}
	account.EncryptedStorageKey = append([]byte(nil), encryptedStorageKey...)
	return nil
}

func (s *Store) DeleteUser(userID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(userID)
	account, ok := s.accountsByUser[key]
	if !ok {
		return wardenerr.ErrInvalidAccount
	}

	delete(s.accountsByUser, key)
	delete(s.accountsByName, account.AccountName)
	for sk := range s.secrets {
		if sk.accountID == account.AccountID {
			delete(s.secrets, sk)
		}
	}
	return nil
}

func (s *Store) AddSecret(secret *secretstore.StoredSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := secretKey{accountID: secret.AccountID, keyID: hex.EncodeToString(secret.KeyID)}
	if _, exists := s.secrets[key]; exists {
		return wardenerr.ErrDuplicateKey
	}

	stored := *secret
	stored.KeyID = append([]byte(nil), secret.KeyID...)
	stored.Bytes = append([]byte(nil), secret.Bytes...)
	stored.CreatedAt = time.Now()
	s.secrets[key] = &stored
	return nil
}

func (s *Store) GetSecret(accountID int64, keyID []byte, filter secretstore.SecretFilter) (*secretstore.StoredSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyHex := hex.EncodeToString(keyID)
	secret, ok := s.secrets[secretKey{accountID: accountID, keyID: keyHex}]
	if !ok {
		// A key held by a different account is a metadata mismatch, not
		// an absent key.
		for sk := range s.secrets {
			if sk.keyID == keyHex {
				return nil, wardenerr.ErrIncorrectKeyMetadata
			}
		}
		return nil, wardenerr.ErrKeyNotFound
	}
	if !filter.Any && secret.SecretType != filter.SecretType {
		return nil, wardenerr.ErrIncorrectKeyMetadata
	}

	clone := *secret
	clone.KeyID = append([]byte(nil), secret.KeyID...)
	clone.Bytes = append([]byte(nil), secret.Bytes...)
	return &clone, nil
}

func (s *Store) DeleteSecret(accountID int64, keyID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := secretKey{accountID: accountID, keyID: hex.EncodeToString(keyID)}
	if _, ok := s.secrets[key]; !ok {
		return wardenerr.ErrKeyNotFound
	}
	delete(s.secrets, key)
	return nil
}

func (s *Store) MarkRetrieved(accountID int64, keyID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := secretKey{accountID: accountID, keyID: hex.EncodeToString(keyID)}
	secret, ok := s.secrets[key]
	if !ok {
		return wardenerr.ErrKeyNotFound
	}
	secret.Retrieved = true
	return nil
}

func (s *Store) CreateAuditEvent(event *secretstore.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	clone.KeyID = append([]byte(nil), event.KeyID...)
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now()
	}
	s.auditEvents = append(s.auditEvents, &clone)
	return nil
}

func (s *Store) FindAuditEvents(accountName string, action string, filter secretstore.AuditFilter) ([]*secretstore.AuditEvent, error) {
	s.mu.RLock()
	account, ok := s.accountsByName[accountName]
	s.mu.RUnlock()
	if !ok {
		return nil, wardenerr.ErrInvalidAccount
	}

	keyIDSet := make(map[string]bool, len(filter.KeyIDs))
	for _, k := range filter.KeyIDs {
		keyIDSet[k] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*secretstore.AuditEvent
	for _, event := range s.auditEvents {
		if event.AccountID != account.AccountID {
			continue
		}
		if action != "" && event.Action != action {
			continue
		}
		if len(keyIDSet) > 0 && !keyIDSet[hex.EncodeToString(event.KeyID)] {
			continue
		}
		if filter.After != nil && !event.Timestamp.After(*filter.After) {
			continue
		}
		if filter.Before != nil && !event.Timestamp.Before(*filter.Before) {
			continue
		}
		clone := *event
		matched = append(matched, &clone)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].RequestID < matched[j].RequestID
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	// The bound keeps the newest entries; order stays ascending.
	if len(matched) > secretstore.MaxAuditEntries {
		matched = matched[len(matched)-secretstore.MaxAuditEntries:]
	}
	return matched, nil
}

func (s *Store) Close() error { return nil }
func (s *Store) Ping() error  { return nil }

func cloneAccount(a *secretstore.Account) *secretstore.Account {
	clone := *a
	clone.UserID = append([]byte(nil), a.UserID...)
	clone.OpaqueServerRegistrationBlob = append([]byte(nil), a.OpaqueServerRegistrationBlob...)
	if a.EncryptedStorageKey != nil {
		clone.EncryptedStorageKey = append([]byte(nil), a.EncryptedStorageKey...)
	}
	return &clone
}
