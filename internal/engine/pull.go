package engine

import (
	"context"
	"fmt"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/session"
	"github.com/iudanet/docsync/internal/validation"
	"github.com/iudanet/docsync/pkg/api"
)

// HandlePull reads change log entries after the session's checkpoint for
// every requested collection, capped at the page limit. All requested
// collections are answered in one response, even when empty. Pull reads
// never block on in-flight pushes.
func (e *Engine) HandlePull(ctx context.Context, sess *session.Session, req *api.PullRequest) (*api.PullResponse, error) {
	if len(req.Collections) == 0 {
		return nil, fmt.Errorf("%w: missing collections", ErrBadRequest)
	}
	for _, collection := range req.Collections {
		if err := validation.ValidateCollection(collection); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
	}

	limit := e.pageLimit(req.Limit)

	// Checkpoint клиента фиксируется до чтения: подтвержденный номер
	// не уменьшается, подписки расширяются
	checkpoint := sess.AdvanceCheckpoint(checkpointFromAPI(req.Checkpoint))
	sess.Subscribe(req.Collections...)

	changes := make(map[string][]api.Change, len(req.Collections))
	advance := models.NewCheckpoint()
	hasMore := false
	total := 0

	for _, collection := range req.Collections {
		since := checkpoint.SequenceFor(collection)

		entries, err := e.log.EntriesSince(ctx, collection, since, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to read change log: %w", err)
		}

		page := make([]api.Change, len(entries))
		for i, entry := range entries {
			page[i] = entryToChange(entry)
		}
		changes[collection] = page
		total += len(page)

		if len(entries) > 0 {
			lastSeq := entries[len(entries)-1].Seq
			advance = advance.WithSequence(collection, lastSeq, e.now().UTC())

			if len(entries) == limit {
				current, err := e.log.CurrentSequence(ctx, collection)
				if err != nil {
					return nil, fmt.Errorf("failed to read current sequence: %w", err)
				}
				if current > lastSeq {
					hasMore = true
				}
			}
		}
	}

	respCheckpoint := sess.AdvanceCheckpoint(advance)

	e.logger.Info("Pull processed",
		"session_id", sess.ID,
		"collections", len(req.Collections),
		"returned", total,
		"limit", limit,
		"has_more", hasMore,
	)

	return &api.PullResponse{
		Changes:    changes,
		Checkpoint: checkpointToAPI(respCheckpoint),
		HasMore:    hasMore,
	}, nil
}
