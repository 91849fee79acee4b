package snapshot

import (
	"context"
	"sync"

	"github.com/iudanet/docsync/internal/models"
)

// MemoryStore is an in-memory Store implementation keyed by
// (collection, document id)
type MemoryStore struct {
	collections map[string]map[string]*models.Document
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory snapshot store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*models.Document),
	}
}

// Get retrieves a document by id
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// Put creates or overwrites a document
func (s *MemoryStore) Put(ctx context.Context, collection string, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*models.Document)
		s.collections[collection] = docs
	}
	docs[doc.ID] = doc.Clone()
	return nil
}

// Delete removes a document by id
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

// List returns all documents in a collection
func (s *MemoryStore) List(ctx context.Context, collection string) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		docs = append(docs, doc.Clone())
	}
	return docs, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
