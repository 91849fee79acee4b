package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/iudanet/docsync/internal/changelog"
	"github.com/iudanet/docsync/internal/resolver"
	"github.com/iudanet/docsync/internal/session"
	"github.com/iudanet/docsync/internal/snapshot"
)

// Default page sizes for pull responses
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Common engine errors
var (
	// ErrBadRequest indicates a structurally invalid message; non-retryable,
	// the connection stays open
	ErrBadRequest = errors.New("bad request")
)

// Config collects the engine's collaborators and tunables
type Config struct {
	Logger          *slog.Logger
	ChangeLog       changelog.Log
	Snapshot        snapshot.Store
	Sessions        *session.Manager
	Strategy        resolver.Strategy
	DefaultPageSize int
	MaxPageSize     int
}

// Engine is the message-driven core of the sync protocol: it routes push
// and pull requests to the change log and conflict resolver, mutates the
// authoritative snapshot and fans accepted changes out to other sessions.
type Engine struct {
	logger          *slog.Logger
	log             changelog.Log
	store           snapshot.Store
	sessions        *session.Manager
	feed            *Feed
	locks           *keyedLocks
	now             func() time.Time
	strategy        resolver.Strategy
	defaultPageSize int
	maxPageSize     int
}

// New creates a sync engine from the config
func New(cfg Config) *Engine {
	defaultPage := cfg.DefaultPageSize
	if defaultPage <= 0 {
		defaultPage = DefaultPageSize
	}
	maxPage := cfg.MaxPageSize
	if maxPage <= 0 {
		maxPage = MaxPageSize
	}

	return &Engine{
		logger:          cfg.Logger,
		log:             cfg.ChangeLog,
		store:           cfg.Snapshot,
		sessions:        cfg.Sessions,
		strategy:        cfg.Strategy,
		feed:            NewFeed(cfg.Logger),
		locks:           newKeyedLocks(),
		now:             time.Now,
		defaultPageSize: defaultPage,
		maxPageSize:     maxPage,
	}
}

// Sessions returns the engine's session manager
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Feed returns the engine's change feed for external consumers
// (query layer, indexes)
func (e *Engine) Feed() *Feed {
	return e.feed
}

// Close shuts down the change feed. The change log and snapshot store are
// owned by the caller and closed separately.
func (e *Engine) Close() {
	e.feed.Close()
}

// pageLimit clamps a client-supplied limit to the configured bounds
func (e *Engine) pageLimit(requested int) int {
	if requested <= 0 {
		return e.defaultPageSize
	}
	if requested > e.maxPageSize {
		return e.maxPageSize
	}
	return requested
}
