package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure Firestore implements the store interfaces
var _ Cache = (*Firestore)(nil)
var _ Sweeper = (*Firestore)(nil)

// Firestore is a Cache backed by Google Cloud Firestore. Each entry is one
// document keyed by the cache key, holding the JSON payload and an expiry
// timestamp.
//
// Error handling strategy: all I/O failures are returned to the caller
// unmodified; the plugin core decides nothing about retries. Expired
// documents are treated as absent on read and purged by Sweep.
type Firestore struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
	now        func() time.Time
}

type firestoreEntry struct {
	Payload   string    `firestore:"payload"`
	ExpiresAt time.Time `firestore:"expires_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestore creates a Firestore-backed cache. A ttl of zero disables
// expiry. Client options are passed through to the Firestore SDK, which
// picks up application default credentials when none are given.
func NewFirestore(ctx context.Context, projectID, database, collection string, ttl time.Duration, opts ...option.ClientOption) (*Firestore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	} else {
		client, err = firestore.NewClient(ctx, projectID, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("creating Firestore client: %w", err)
	}

	return &Firestore{
		client:     client,
		collection: collection,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

func (f *Firestore) Get(ctx context.Context, key string, v any) error {
	doc, err := f.client.Collection(f.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("reading cache entry %q: %w", key, err)
	}

	var entry firestoreEntry
	if err := doc.DataTo(&entry); err != nil {
		return fmt.Errorf("decoding cache document %q: %w", key, err)
	}

	if !entry.ExpiresAt.IsZero() && f.now().After(entry.ExpiresAt) {
		return ErrNotFound
	}

	if err := json.Unmarshal([]byte(entry.Payload), v); err != nil {
		return fmt.Errorf("decoding cache entry %q: %w", key, err)
	}
	return nil
}

func (f *Firestore) Set(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry %q: %w", key, err)
	}

	entry := firestoreEntry{
		Payload:   string(payload),
		UpdatedAt: f.now(),
	}
	if f.ttl > 0 {
		entry.ExpiresAt = f.now().Add(f.ttl)
	}

	if _, err := f.client.Collection(f.collection).Doc(key).Set(ctx, entry); err != nil {
		return fmt.Errorf("writing cache entry %q: %w", key, err)
	}
	return nil
}

func (f *Firestore) Drop(ctx context.Context, key string) error {
	// Firestore deletes are idempotent; a missing document is not an error.
	if _, err := f.client.Collection(f.collection).Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("dropping cache entry %q: %w", key, err)
	}
	return nil
}

// Sweep deletes every document whose expiry has passed and reports how
// many were removed.
func (f *Firestore) Sweep(ctx context.Context) (int, error) {
	iter := f.client.Collection(f.collection).
		Where("expires_at", ">", time.Time{}).
		Where("expires_at", "<=", f.now()).
		Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return purged, fmt.Errorf("iterating expired cache entries: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			return purged, fmt.Errorf("deleting expired cache entry %q: %w", doc.Ref.ID, err)
		}
		purged++
	}
	return purged, nil
}

// Close releases the underlying Firestore client.
func (f *Firestore) Close() error {
	return f.client.Close()
}
