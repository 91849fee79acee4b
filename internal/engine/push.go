package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/resolver"
	"github.com/iudanet/docsync/internal/session"
	"github.com/iudanet/docsync/internal/snapshot"
	"github.com/iudanet/docsync/internal/validation"
	"github.com/iudanet/docsync/pkg/api"
)

// HandlePush processes a push request: changes are checked for conflicts
// and applied in client-supplied order, accepted ones are appended to the
// change log and broadcast to other sessions subscribed to the collection.
// Returns ErrBadRequest for structurally invalid input; other errors are
// storage faults and retryable.
func (e *Engine) HandlePush(ctx context.Context, sess *session.Session, req *api.PushRequest) (*api.PushResponse, error) {
	if err := validation.ValidateCollection(req.Collection); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	for i := range req.Changes {
		if err := validateChange(&req.Changes[i]); err != nil {
			return nil, err
		}
	}

	// Шаг 1: фиксируем checkpoint клиента и расширяем подписки
	sess.AdvanceCheckpoint(checkpointFromAPI(req.Checkpoint))
	sess.Subscribe(req.Collection)

	var (
		conflicts []api.Conflict
		applied   []models.ChangeEvent
	)

	// Шаг 2: изменения обрабатываются строго в порядке клиента
	for i := range req.Changes {
		event, conflict, err := e.applyChange(ctx, sess, req.Collection, &req.Changes[i])
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
			continue
		}
		if event == nil {
			// Переигрывание уже принятого изменения, журнал не трогаем
			continue
		}
		applied = append(applied, *event)
	}

	// Шаг 3: checkpoint ответа из текущего номера журнала
	currentSeq, err := e.log.CurrentSequence(ctx, req.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to read current sequence: %w", err)
	}
	respCheckpoint := sess.AdvanceCheckpoint(
		models.NewCheckpoint().WithSequence(req.Collection, currentSeq, e.now().UTC()),
	)

	resp := &api.PushResponse{
		Success:    len(conflicts) == 0,
		Conflicts:  conflicts,
		Checkpoint: checkpointToAPI(respCheckpoint),
	}

	e.logger.Info("Push processed",
		"session_id", sess.ID,
		"collection", req.Collection,
		"received", len(req.Changes),
		"applied", len(applied),
		"conflicts", len(conflicts),
		"seq", currentSeq,
	)

	// Шаг 5: рассылка принятых изменений другим сессиям и внешним
	// подписчикам
	if len(applied) > 0 {
		e.broadcast(sess.ID, req.Collection, applied)
		for _, event := range applied {
			e.feed.Publish(Event{Collection: req.Collection, Change: event})
		}
	}

	return resp, nil
}

// applyChange runs the check-conflict → apply → log sequence for one
// document under its (collection, document) lock, so concurrent pushes to
// the same document never interleave inside the critical section.
func (e *Engine) applyChange(ctx context.Context, sess *session.Session, collection string, change *api.Change) (*models.ChangeEvent, *api.Conflict, error) {
	key := documentKey(collection, change.DocumentID)
	e.locks.lock(key)
	defer e.locks.unlock(key)

	current, err := e.store.Get(ctx, collection, change.DocumentID)
	if err != nil && !errors.Is(err, snapshot.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to read authoritative document: %w", err)
	}

	incoming := documentFromAPI(change.Document)
	if incoming != nil && incoming.ID == "" {
		incoming.ID = change.DocumentID
	}

	// Клиент, потерявший ответ, повторяет push с той же ревизией.
	// Авторитетная версия уже совпадает: повторный append задвоил бы
	// журнал и рассылку.
	if current != nil && incoming != nil && incoming.Rev != "" && incoming.Rev == current.Rev {
		e.logger.Debug("Replayed change skipped",
			"session_id", sess.ID,
			"collection", collection,
			"document_id", change.DocumentID,
			"rev", incoming.Rev,
		)
		return nil, nil, nil
	}
	if models.ChangeOp(change.Op) == models.OpDelete && current != nil && current.Deleted {
		// Повторное удаление: tombstone уже авторитетен
		return nil, nil, nil
	}

	// Проверка конфликта выполняется не более одного раза на мутацию
	if current != nil && incoming != nil && resolver.InConflict(incoming, current) {
		decision := resolver.Resolve(change.DocumentID, incoming, current, e.strategy, e.now())
		if decision.Winner == resolver.WinnerRemote {
			// Сервер победил: изменение не применяется, клиент получает
			// авторитетную версию в списке конфликтов
			return nil, &api.Conflict{
				DocumentID:     change.DocumentID,
				ServerDocument: documentToAPI(current),
			}, nil
		}
	}

	event := models.ChangeEvent{
		Op:         models.ChangeOp(change.Op),
		DocumentID: change.DocumentID,
		Previous:   current,
		Timestamp:  change.Timestamp,
		FromSync:   true,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}

	switch models.ChangeOp(change.Op) {
	case models.OpDelete:
		// Удаление пишет tombstone вместо физического удаления: иначе
		// запоздавший update не нашел бы авторитетной версии и молча
		// воскресил бы документ со старым содержимым
		var parentRev string
		if current != nil {
			parentRev = current.Rev
		}
		tombstone := &models.Document{
			ID:        change.DocumentID,
			Rev:       resolver.NewRev(parentRev),
			Deleted:   true,
			UpdatedAt: event.Timestamp,
		}
		if err := e.store.Put(ctx, collection, tombstone); err != nil {
			return nil, nil, fmt.Errorf("failed to store tombstone: %w", err)
		}
		event.Document = tombstone
	default:
		doc := incoming
		if doc.Rev == "" {
			var parentRev string
			if current != nil {
				parentRev = current.Rev
			}
			doc.Rev = resolver.NewRev(parentRev)
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = event.Timestamp
		}
		if err := e.store.Put(ctx, collection, doc); err != nil {
			return nil, nil, fmt.Errorf("failed to store document: %w", err)
		}
		event.Document = doc
	}

	seq, err := e.log.Append(ctx, collection, event, sess.ID)
	if err != nil {
		// Журнал - источник истины для pull; потерю записи нельзя
		// проглотить молча
		e.logger.Error("Change log append failed",
			"session_id", sess.ID,
			"collection", collection,
			"document_id", change.DocumentID,
			"error", err,
		)
		return nil, nil, fmt.Errorf("failed to append to change log: %w", err)
	}
	event.Seq = seq

	return &event, nil, nil
}

// broadcast delivers applied changes to every other session subscribed to
// the collection, packaged as a pull-response so followers reuse the
// ordinary pull path. A session whose outbound queue is full is closed:
// it recovers via pull after reconnecting.
func (e *Engine) broadcast(originSessionID, collection string, applied []models.ChangeEvent) {
	changes := make([]api.Change, len(applied))
	lastSeq := int64(0)
	for i, event := range applied {
		changes[i] = eventToChange(event)
		lastSeq = event.Seq
	}

	for _, receiver := range e.sessions.Subscribed(collection, originSessionID) {
		checkpoint := receiver.AdvanceCheckpoint(
			models.NewCheckpoint().WithSequence(collection, lastSeq, e.now().UTC()),
		)

		payload := api.PullResponse{
			Changes:    map[string][]api.Change{collection: changes},
			Checkpoint: checkpointToAPI(checkpoint),
			HasMore:    false,
		}

		env, err := api.NewEnvelope(api.TypePullResponse, uuid.New().String(), payload)
		if err != nil {
			e.logger.Error("Failed to encode broadcast", "error", err)
			return
		}

		if err := receiver.Send(env); err != nil {
			e.logger.Warn("Dropping unresponsive session",
				"session_id", receiver.ID,
				"collection", collection,
				"error", err,
			)
			receiver.Close(api.CloseOverloaded, "outbound queue overflow")
			e.sessions.Unregister(receiver.ID)
		}
	}
}

// validateChange checks the structural shape of one pushed change
func validateChange(change *api.Change) error {
	if err := validation.ValidateDocumentID(change.DocumentID); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	op := models.ChangeOp(change.Op)
	if !op.Valid() {
		return fmt.Errorf("%w: unknown op %q", ErrBadRequest, change.Op)
	}
	if op != models.OpDelete && change.Document == nil {
		return fmt.Errorf("%w: %s change missing document", ErrBadRequest, change.Op)
	}
	if change.Document != nil && change.Document.ID != "" && change.Document.ID != change.DocumentID {
		return fmt.Errorf("%w: document id mismatch", ErrBadRequest)
	}
	return nil
}
