package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore store.
type FirestoreConfig struct {
	CollectionName string `yaml:"collection"`
}

// firestoreEntry is the document layout. The key bytes are kept next to the
// value so a hash collision on the document id reads as a miss.
type firestoreEntry struct {
	Key       []byte    `firestore:"key"`
	Value     []byte    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// FirestoreStore is a per-key store on a Firestore collection.
// ALLOW FIRESTORE TO BE USED IN LOW VOLUME DEPLOYMENTS
// don't use it for hot caches - that's what redis is for.
type FirestoreStore[K comparable, V any] struct {
	client         *firestore.Client
	collectionName string
	codec          Codec
	logger         zerolog.Logger
}

// NewFirestoreStore creates a new generic FirestoreStore.
// The client's lifecycle is managed by the caller.
func NewFirestoreStore[K comparable, V any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	codec Codec,
	logger zerolog.Logger,
) (*FirestoreStore[K, V], error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg == nil || cfg.CollectionName == "" {
		return nil, errors.New("firestore collection cannot be empty")
	}
	if codec == nil {
		codec = JSONCodec{}
	}

	logger.Info().Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore[K, V]{
		client:         client,
		collectionName: cfg.CollectionName,
		codec:          codec,
		logger:         logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// documentID derives a path-safe document id from the canonical key bytes.
func documentID(keyBytes []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(keyBytes))
}

// Lookup retrieves a single document by key. A missing document is a miss.
func (s *FirestoreStore[K, V]) Lookup(ctx context.Context, key K) (V, bool, error) {
	var zero V
	keyBytes, err := KeyBytes(key)
	if err != nil {
		return zero, false, err
	}
	docID := documentID(keyBytes)

	docSnap, err := s.client.Collection(s.collectionName).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, false, nil
		}
		s.logger.Error().Err(err).Str("doc_id", docID).Msg("Failed to get document from Firestore.")
		return zero, false, fmt.Errorf("firestore get for %s: %w", docID, err)
	}

	var entry firestoreEntry
	if err := docSnap.DataTo(&entry); err != nil {
		s.logger.Error().Err(err).Str("doc_id", docID).Msg("Failed to map Firestore document data.")
		return zero, false, fmt.Errorf("firestore DataTo for %s: %w", docID, err)
	}
	if !bytes.Equal(entry.Key, keyBytes) {
		s.logger.Warn().Str("doc_id", docID).Msg("Document id collision, treating as a miss.")
		return zero, false, nil
	}

	var value V
	if err := s.codec.Unmarshal(entry.Value, &value); err != nil {
		return zero, false, fmt.Errorf("failed to decode value for %s: %w", docID, err)
	}

	s.logger.Debug().Str("doc_id", docID).Msg("Successfully fetched data from Firestore.")
	return value, true, nil
}

// Insert writes the document for key, replacing any previous one.
func (s *FirestoreStore[K, V]) Insert(ctx context.Context, key K, value V) error {
	keyBytes, err := KeyBytes(key)
	if err != nil {
		return err
	}
	raw, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for '%v': %w", key, err)
	}
	docID := documentID(keyBytes)

	entry := firestoreEntry{Key: keyBytes, Value: raw, UpdatedAt: time.Now().UTC()}
	if _, err := s.client.Collection(s.collectionName).Doc(docID).Set(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("doc_id", docID).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", docID, err)
	}
	s.logger.Debug().Str("doc_id", docID).Msg("Successfully wrote data to Firestore.")
	return nil
}

// Flush is a no-op; each Set is acknowledged durably by Firestore.
func (s *FirestoreStore[K, V]) Flush(_ context.Context, _ bool) error {
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore[K, V]) Close() error {
	s.logger.Info().Msg("FirestoreStore does not close the injected Firestore client.")
	return nil
}
