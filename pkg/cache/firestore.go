package cache

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore-backed store.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// firestoreEnvelope is the document shape stored per key.
type firestoreEnvelope[V any] struct {
	Value    V         `firestore:"value"`
	StoredAt time.Time `firestore:"storedAt"`
}

// FirestoreStore is a generic Store implementation backed by a Firestore
// collection, one document per key.
type FirestoreStore[K comparable, V any] struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreStore creates a new generic FirestoreStore.
func NewFirestoreStore[K comparable, V any](
	cfg *FirestoreConfig,
	client *firestore.Client,
	logger zerolog.Logger,
) (*FirestoreStore[K, V], error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore[K, V]{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// Get retrieves a single entry from Firestore by its key.
func (s *FirestoreStore[K, V]) Get(ctx context.Context, key K) (Entry[V], error) {
	stringKey := fmt.Sprintf("%v", key)
	docRef := s.client.Collection(s.collectionName).Doc(stringKey)
	docSnap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Entry[V]{}, fmt.Errorf("'%s': %w", stringKey, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to get document from Firestore.")
		return Entry[V]{}, fmt.Errorf("firestore get for %s: %w", stringKey, err)
	}

	var envelope firestoreEnvelope[V]
	if err := docSnap.DataTo(&envelope); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to map Firestore document data.")
		return Entry[V]{}, fmt.Errorf("firestore DataTo for %s: %w", stringKey, err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Successfully fetched entry from Firestore.")
	return Entry[V]{Value: envelope.Value, StoredAt: envelope.StoredAt}, nil
}

// Save writes the entry document for a key.
func (s *FirestoreStore[K, V]) Save(ctx context.Context, key K, value V, storedAt time.Time) error {
	stringKey := fmt.Sprintf("%v", key)
	envelope := firestoreEnvelope[V]{Value: value, StoredAt: storedAt}
	_, err := s.client.Collection(s.collectionName).Doc(stringKey).Set(ctx, envelope)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", stringKey, err)
	}
	s.logger.Debug().Str("key", stringKey).Msg("Successfully wrote entry to Firestore.")
	return nil
}

// IsFresh reports whether a usable value exists for key under the policy.
func (s *FirestoreStore[K, V]) IsFresh(ctx context.Context, key K, now time.Time, policy FreshnessPolicy) bool {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	return policy.IsFresh(now, entry.StoredAt)
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore[K, V]) Close() error {
	s.logger.Info().Msg("FirestoreStore does not close the injected Firestore client.")
	return nil
}
