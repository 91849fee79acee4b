package snapshot

import (
	"context"
	"errors"

	"github.com/iudanet/docsync/internal/models"
)

// Common snapshot errors
var (
	// ErrNotFound indicates that the document does not exist in the snapshot
	ErrNotFound = errors.New("document not found")
)

// Store defines the interface over the authoritative document snapshot.
// The sync engine is its only writer; adapters outside this package supply
// the physical storage (in-memory, bbolt, platform engines).
type Store interface {
	// Get retrieves a document by id.
	// Returns ErrNotFound if the document does not exist.
	Get(ctx context.Context, collection, id string) (*models.Document, error)

	// Put creates or overwrites a document
	Put(ctx context.Context, collection string, doc *models.Document) error

	// Delete removes a document by id. Deleting a missing document is not
	// an error: the outcome is the same.
	Delete(ctx context.Context, collection, id string) error

	// List returns all documents in a collection in unspecified order.
	// Returns empty slice if the collection is empty or unknown.
	List(ctx context.Context, collection string) ([]*models.Document, error)

	// Close releases underlying resources
	Close() error
}
