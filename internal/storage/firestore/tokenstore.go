// Package firestore implements the token repository on Google Cloud Firestore.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-push-ingestion-service/pkg/push"
)

const (
	devicesCollection = "devices"
	historyCollection = "history"
)

// FirestoreStore keeps one document per device holding the current token,
// plus a history sub-collection of superseded tokens.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// deviceRecord is the internal DB representation.
type deviceRecord struct {
	DeviceID  string     `firestore:"device_id"`
	Current   push.Token `firestore:"current"`
	UpdatedAt time.Time  `firestore:"updated_at"`
}

func (s *FirestoreStore) Current(ctx context.Context, deviceID string) (push.Token, error) {
	snap, err := s.deviceRef(deviceID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return push.Token{}, push.ErrTokenNotFound
		}
		return push.Token{}, fmt.Errorf("firestore get failed: %w", err)
	}

	var record deviceRecord
	if err := snap.DataTo(&record); err != nil {
		return push.Token{}, fmt.Errorf("firestore decode failed: %w", err)
	}
	return record.Current, nil
}

// Replace runs in a transaction so the compare-and-supersede is atomic
// across replicas.
func (s *FirestoreStore) Replace(ctx context.Context, next push.Token) (push.TokenChange, error) {
	ref := s.deviceRef(next.DeviceID)
	var change push.TokenChange

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Transactions may be retried; start from a clean result each attempt.
		change = push.TokenChange{}

		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			change = push.TokenChange{Current: next, Changed: true}
			return tx.Set(ref, deviceRecord{DeviceID: next.DeviceID, Current: next, UpdatedAt: next.IssuedAt})
		}

		var record deviceRecord
		if err := snap.DataTo(&record); err != nil {
			return err
		}
		if record.Current.Value == next.Value {
			change = push.TokenChange{Current: record.Current}
			return nil
		}

		prev := record.Current
		supersededAt := next.IssuedAt
		prev.SupersededAt = &supersededAt

		if err := tx.Create(ref.Collection(historyCollection).NewDoc(), prev); err != nil {
			return err
		}
		change = push.TokenChange{Previous: &prev, Current: next, Changed: true}
		return tx.Set(ref, deviceRecord{DeviceID: next.DeviceID, Current: next, UpdatedAt: next.IssuedAt})
	})
	if err != nil {
		return push.TokenChange{}, fmt.Errorf("firestore replace transaction failed: %w", err)
	}
	return change, nil
}

func (s *FirestoreStore) History(ctx context.Context, deviceID string) ([]push.Token, error) {
	iter := s.deviceRef(deviceID).Collection(historyCollection).
		OrderBy("superseded_at", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	history := make([]push.Token, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var tok push.Token
		if err := doc.DataTo(&tok); err != nil {
			// Skip corrupt rows; history is audit-only.
			continue
		}
		history = append(history, tok)
	}
	return history, nil
}

// deviceRef: devices/{deviceHash}
func (s *FirestoreStore) deviceRef(deviceID string) *firestore.DocumentRef {
	return s.client.Collection(devicesCollection).Doc(hashKey(deviceID))
}

// Device URNs contain ':' and may be long; a hash keeps doc ids uniform.
func hashKey(k string) string {
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:])
}
