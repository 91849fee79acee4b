package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/snapshot"
)

// bucketCollections is the root bucket; each collection gets a nested
// bucket keyed by document id
var bucketCollections = []byte("collections")

// Store represents the BoltDB snapshot store implementation
type Store struct {
	db *bbolt.DB
}

// New creates a new BoltDB snapshot store instance.
// dbPath is the path to the BoltDB database file.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	store := &Store{db: db}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает корневой bucket, если его нет
func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCollections); err != nil {
			return fmt.Errorf("failed to create collections bucket: %w", err)
		}
		return nil
	})
}

// Get retrieves a document by id
func (s *Store) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	var doc *models.Document

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCollections).Bucket([]byte(collection))
		if bucket == nil {
			return snapshot.ErrNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return snapshot.ErrNotFound
		}

		doc = &models.Document{}
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("failed to unmarshal document: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return doc, nil
}

// Put creates or overwrites a document
func (s *Store) Put(ctx context.Context, collection string, doc *models.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket(bucketCollections).CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return fmt.Errorf("failed to create collection bucket: %w", err)
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}

		if err := bucket.Put([]byte(doc.ID), data); err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}

		return nil
	})
}

// Delete removes a document by id. Deleting a missing document is not
// an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCollections).Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}

		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}

		return nil
	})
}

// List returns all documents in a collection
func (s *Store) List(ctx context.Context, collection string) ([]*models.Document, error) {
	var docs []*models.Document

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCollections).Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			doc := &models.Document{}
			if err := json.Unmarshal(v, doc); err != nil {
				return fmt.Errorf("failed to unmarshal document %s: %w", k, err)
			}
			docs = append(docs, doc)
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return docs, nil
}
