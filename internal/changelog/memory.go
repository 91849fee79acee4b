package changelog

import (
	"context"
	"sync"
	"time"

	"github.com/iudanet/docsync/internal/models"
)

// MemoryLog is an in-memory Log implementation.
// Used in tests and in embedded single-process setups where durability
// across restarts is not required.
type MemoryLog struct {
	entries map[string][]Entry // map[collection]entries, index i holds seq i+1
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryLog creates an empty in-memory change log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		entries: make(map[string][]Entry),
	}
}

// Append assigns the next sequence for the collection and stores the entry
func (l *MemoryLog) Append(ctx context.Context, collection string, change models.ChangeEvent, originSession string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}

	seq := int64(len(l.entries[collection])) + 1
	change.Seq = seq

	l.entries[collection] = append(l.entries[collection], Entry{
		Collection:    collection,
		Change:        *change.Clone(),
		Seq:           seq,
		OriginSession: originSession,
		LoggedAt:      time.Now().UTC(),
	})

	return seq, nil
}

// EntriesSince returns entries with sequence greater than since, ascending,
// capped at limit
func (l *MemoryLog) EntriesSince(ctx context.Context, collection string, since int64, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, ErrClosed
	}

	all := l.entries[collection]
	if since < 0 {
		since = 0
	}
	if since >= int64(len(all)) {
		return nil, nil
	}

	tail := all[since:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}

	// Копируем, чтобы вызывающий не держал внутренний слайс
	result := make([]Entry, len(tail))
	copy(result, tail)
	return result, nil
}

// CurrentSequence returns the latest assigned sequence, 0 if the collection
// has never been written
func (l *MemoryLog) CurrentSequence(ctx context.Context, collection string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0, ErrClosed
	}

	return int64(len(l.entries[collection])), nil
}

// Close marks the log as closed; further calls return ErrClosed
func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.entries = nil
	return nil
}
