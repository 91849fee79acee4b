package changelog

import (
	"context"
	"errors"
	"time"

	"github.com/iudanet/docsync/internal/models"
)

// Common changelog errors
var (
	// ErrClosed indicates that the log was already closed
	ErrClosed = errors.New("change log closed")
)

// Entry is one accepted change in a collection's ledger.
// Entries are append-only: never mutated or deleted by this package,
// retention is an operational concern layered on top.
type Entry struct {
	LoggedAt      time.Time          `json:"logged_at"`      // LoggedAt server time of the append
	Change        models.ChangeEvent `json:"change"`         // Change the accepted change event
	Collection    string             `json:"collection"`     // Collection owning ledger
	OriginSession string             `json:"origin_session"` // OriginSession session that pushed the change
	Seq           int64              `json:"seq"`            // Seq position in the collection's ledger, starts at 1
}

// Log defines the interface for the per-collection append-only change ledger.
// Pull correctness depends on its durability: implementations must surface
// storage faults instead of dropping entries silently.
type Log interface {
	// Append assigns the next sequence for the collection (strictly
	// increasing, gapless, starting at 1) and stores the entry.
	// Safe for concurrent callers.
	Append(ctx context.Context, collection string, change models.ChangeEvent, originSession string) (int64, error)

	// EntriesSince returns entries with sequence greater than since in
	// ascending order, capped at limit. Safe to call concurrently with
	// Append; never observes a partially appended entry.
	EntriesSince(ctx context.Context, collection string, since int64, limit int) ([]Entry, error)

	// CurrentSequence returns the latest assigned sequence for the
	// collection, 0 if it has never been written.
	CurrentSequence(ctx context.Context, collection string) (int64, error)

	// Close releases underlying resources
	Close() error
}
