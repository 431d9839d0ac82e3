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

// Package mongo is a MongoDB-backed secretstore.Store, the alternative
// engine named by config's database.mongodb_uri. Collections:
//
//	accounts        { _id: account_id (int64, auto via counter), account_name (unique),
//	                  user_id (unique), opaque_server_registration_blob,
//	                  encrypted_storage_key, created_at }
//	stored_secrets  { account_id, key_id, secret_type, bytes, retrieved,
//	                  created_at }, unique compound index on (account_id, key_id)
//	audit_events    { request_id, account_id, key_id, action, status,
//	                  message, timestamp }
package mongo

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warden-project/warden/internal/wardenerr"
	"github.com/warden-project/warden/secretstore"
)

// Store implements secretstore.Store against MongoDB.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	accounts *mongo.Collection
	secrets  *mongo.Collection
	audit    *mongo.Collection

	nextAccountID int64
}

// Connect dials MongoDB, pings it, ensures the required unique indexes
// exist, and returns a ready Store.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("secretstore: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("secretstore: mongo ping: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:   client,
		db:       db,
		accounts: db.Collection("accounts"),
		secrets:  db.Collection("stored_secrets"),
		audit:    db.Collection("audit_events"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	if err := s.loadAccountIDCounter(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "account_name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("secretstore: ensure account indexes: %w", err)
	}
	_, err = s.secrets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "key_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("secretstore: ensure secret index: %w", err)
	}
	return nil
}

// loadAccountIDCounter seeds the in-process account-id counter from the
// highest account_id already stored, so restarting the server does not
// reissue an id in use.
func (s *Store) loadAccountIDCounter(ctx context.Context) error {
	opts := options.FindOne().SetSort(bson.D{{Key: "account_id", Value: -1}})
	var doc struct {
		AccountID int64 `bson:"account_id"`
	}
	err := s.accounts.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil
	}
	if err != nil {
		return fmt.Errorf("secretstore: load account counter: %w", err)
	}
	atomic.StoreInt64(&s.nextAccountID, doc.AccountID)
	return nil
}

type accountDoc struct {
	AccountID                   int64     `bson:"account_id"`
	AccountName                 string    `bson:"account_name"`
	UserID                      []byte    `bson:"user_id"`
	OpaqueServerRegistrationBlob []byte   `bson:"opaque_server_registration_blob"`
	EncryptedStorageKey         []byte    `bson:"encrypted_storage_key,omitempty"`
	CreatedAt                   time.Time `bson:"created_at"`
}

func (d accountDoc) toAccount() *secretstore.Account {
	return &secretstore.Account{
		AccountID:                    d.AccountID,
		AccountName:                  d.AccountName,
		UserID:                       d.UserID,
		OpaqueServerRegistrationBlob: d.OpaqueServerRegistrationBlob,
		EncryptedStorageKey:          d.EncryptedStorageKey,
		CreatedAt:                    d.CreatedAt,
	}
}

func (s *Store) CreateUser(userID []byte, accountName string, serverRegistrationBlob []byte) (*secretstore.Account, error) {
	ctx := context.Background()
	doc := accountDoc{
		AccountID:                    atomic.AddInt64(&s.nextAccountID, 1),
		AccountName:                  accountName,
		UserID:                       userID,
		OpaqueServerRegistrationBlob: serverRegistrationBlob,
		CreatedAt:                    time.Now(),
	}
	if _, err := s.accounts.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, wardenerr.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("secretstore: create user: %w", err)
	}
	return doc.toAccount(), nil
}

func (s *Store) FindUser(accountName string) (*secretstore.Account, error) {
	return s.findUser(bson.D{{Key: "account_name", Value: accountName}})
}

func (s *Store) FindUserByID(userID []byte) (*secretstore.Account, error) {
	return s.findUser(bson.D{{Key: "user_id", Value: userID}})
}

func (s *Store) findUser(filter bson.D) (*secretstore.Account, error) {
	var doc accountDoc
	err := s.accounts.FindOne(context.Background(), filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: find user: %w", err)
	}
	return doc.toAccount(), nil
}

func (s *Store) SetStorageKey(userID []byte, encryptedStorageKey []byte) error {
	res, err := s.accounts.UpdateOne(context.Background(),
		bson.D{{Key: "user_id", Value: userID}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "encrypted_storage_key", Value: encryptedStorageKey}}}},
	)
	if err != nil {
		return fmt.Errorf("secretstore: set storage key: %w", err)
	}
	if res.MatchedCount == 0 {
		return wardenerr.ErrInvalidAccount
	}
	return nil
}

func (s *Store) DeleteUser(userID []byte) error {
	ctx := context.Background()

	account, err := s.FindUserByID(userID)
	if err != nil {
		return err
	}
	if account == nil {
		return wardenerr.ErrInvalidAccount
	}

	res, err := s.accounts.DeleteOne(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return fmt.Errorf("secretstore: delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return wardenerr.ErrInvalidAccount
	}

	// The account owns its secrets; no other backend keeps orphans either.
	if _, err := s.secrets.DeleteMany(ctx, bson.D{{Key: "account_id", Value: account.AccountID}}); err != nil {
		return fmt.Errorf("secretstore: delete user secrets: %w", err)
	}
	return nil
}

type secretDoc struct {
	AccountID  int64               `bson:"account_id"`
	KeyID      []byte              `bson:"key_id"`
	SecretType secretstore.SecretType `bson:"secret_type"`
	Bytes      []byte              `bson:"bytes"`
	Retrieved  bool                `bson:"retrieved"`
	CreatedAt  time.Time           `bson:"created_at"`
}

func (s *Store) AddSecret(secret *secretstore.StoredSecret) error {
	doc := secretDoc{
		AccountID:  secret.AccountID,
		KeyID:      secret.KeyID,
		SecretType: secret.SecretType,
		Bytes:      secret.Bytes,
		Retrieved:  false,
		CreatedAt:  time.Now(),
	}
	_, err := s.secrets.InsertOne(context.Background(), doc)
	if mongo.IsDuplicateKeyError(err) {
		return wardenerr.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("secretstore: add secret: %w", err)
	}
	return nil
}

func (s *Store) GetSecret(accountID int64, keyID []byte, filter secretstore.SecretFilter) (*secretstore.StoredSecret, error) {
	var doc secretDoc
	err := s.secrets.FindOne(context.Background(), bson.D{
		{Key: "account_id", Value: accountID},
		{Key: "key_id", Value: keyID},
	}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		// A key held by a different account is a metadata mismatch, not
		// an absent key.
		n, countErr := s.secrets.CountDocuments(context.Background(), bson.D{
			{Key: "key_id", Value: keyID},
		})
		if countErr == nil && n > 0 {
			return nil, wardenerr.ErrIncorrectKeyMetadata
		}
		return nil, wardenerr.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("secretstore: get secret: %w", err)
	}
	if !filter.Any && doc.SecretType != filter.SecretType {
		return nil, wardenerr.ErrIncorrectKeyMetadata
	}
	return &secretstore.StoredSecret{
		KeyID:      doc.KeyID,
		AccountID:  doc.AccountID,
		SecretType: doc.SecretType,
		Bytes:      doc.Bytes,
		Retrieved:  doc.Retrieved,
		CreatedAt:  doc.CreatedAt,
	}, nil
}

func (s *Store) DeleteSecret(accountID int64, keyID []byte) error {
	res, err := s.secrets.DeleteOne(context.Background(), bson.D{
		{Key: "account_id", Value: accountID},
		{Key: "key_id", Value: keyID},
	})
	if err != nil {
		return fmt.Errorf("secretstore: delete secret: %w", err)
	}
	if res.DeletedCount == 0 {
		return wardenerr.ErrKeyNotFound
	}
	return nil
}

func (s *Store) MarkRetrieved(accountID int64, keyID []byte) error {
	res, err := s.secrets.UpdateOne(context.Background(), bson.D{
		{Key: "account_id", Value: accountID},
		{Key: "key_id", Value: keyID},
	}, bson.D{{Key: "$set", Value: bson.D{{Key: "retrieved", Value: true}}}})
	if err != nil {
		return fmt.Errorf("secretstore: mark retrieved: %w", err)
	}
	if res.MatchedCount == 0 {
		return wardenerr.ErrKeyNotFound
	}
	return nil
}

type auditDoc struct {
	RequestID string                  `bson:"request_id"`
	AccountID int64                   `bson:"account_id"`
	KeyID     []byte                  `bson:"key_id,omitempty"`
	Action    string                  `bson:"action"`
	Status    secretstore.EventStatus `bson:"status"`
	Message   string                  `bson:"message,omitempty"`
	Timestamp time.Time               `bson:"timestamp"`
}

func (s *Store) CreateAuditEvent(event *secretstore.AuditEvent) error {
	doc := auditDoc{
		RequestID: event.RequestID,
		AccountID: event.AccountID,
		KeyID:     event.KeyID,
		Action:    event.Action,
		Status:    event.Status,
		Message:   event.Message,
		Timestamp: time.Now(),
	}
	if _, err := s.audit.InsertOne(context.Background(), doc); err != nil {
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

	query := bson.D{{Key: "account_id", Value: account.AccountID}}
	if action != "" {
		query = append(query, bson.E{Key: "action", Value: action})
	}
	timeRange := bson.D{}
	if filter.After != nil {
		timeRange = append(timeRange, bson.E{Key: "$gt", Value: *filter.After})
	}
	if filter.Before != nil {
		timeRange = append(timeRange, bson.E{Key: "$lt", Value: *filter.Before})
	}
	if len(timeRange) > 0 {
		query = append(query, bson.E{Key: "timestamp", Value: timeRange})
	}
	if len(filter.KeyIDs) > 0 {
		ids := make([][]byte, 0, len(filter.KeyIDs))
		for _, k := range filter.KeyIDs {
			decoded, derr := hex.DecodeString(k)
			if derr != nil {
				continue
			}
			ids = append(ids, decoded)
		}
		query = append(query, bson.E{Key: "key_id", Value: bson.D{{Key: "$in", Value: ids}}})
	}

	// Newest rows win the bound; the slice is flipped back to ascending
	// below so every backend returns the same order.
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "request_id", Value: -1}}).
		SetLimit(secretstore.MaxAuditEntries)

	cur, err := s.audit.Find(context.Background(), query, opts)
	if err != nil {
		return nil, fmt.Errorf("secretstore: find audit events: %w", err)
	}
	defer cur.Close(context.Background())

	var events []*secretstore.AuditEvent
	for cur.Next(context.Background()) {
		var doc auditDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("secretstore: scan audit event: %w", err)
		}
		events = append(events, &secretstore.AuditEvent{
			RequestID: doc.RequestID,
			AccountID: doc.AccountID,
			KeyID:     doc.KeyID,
			Action:    doc.Action,
			Status:    doc.Status,
			Message:   doc.Message,
			Timestamp: doc.Timestamp,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *Store) Ping() error {
	return s.client.Ping(context.Background(), nil)
}
