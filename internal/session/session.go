package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

// Sender delivers outbound envelopes to the session's transport.
// Implemented by the websocket connection; mocked in tests.
type Sender interface {
	// Send enqueues an envelope for delivery. Must not block: transports
	// with a full outbound queue return an error instead.
	Send(env api.Envelope) error

	// Close terminates the transport with a distinguishing close code
	Close(code int, reason string)
}

// Session представляет одно аутентифицированное живое соединение
// и его состояние синхронизации
type Session struct {
	ID       string            // ID уникальный идентификатор сессии
	UserID   string            // UserID проверенная идентичность
	NodeID   string            // NodeID непрозрачный идентификатор узла-источника
	Metadata map[string]string // Metadata произвольные атрибуты идентичности

	sender        Sender
	mu            sync.Mutex
	subscriptions map[string]struct{}
	checkpoint    models.Checkpoint
	lastActivity  time.Time
}

// newSession создает сессию с новым UUID и текущим временем активности
func newSession(userID, nodeID string, metadata map[string]string, sender Sender) *Session {
	return &Session{
		ID:            uuid.New().String(),
		UserID:        userID,
		NodeID:        nodeID,
		Metadata:      metadata,
		sender:        sender,
		subscriptions: make(map[string]struct{}),
		checkpoint:    models.NewCheckpoint(),
		lastActivity:  time.Now(),
	}
}

// Touch обновляет время последней активности.
// Вызывается на каждое входящее и исходящее сообщение.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity возвращает время последней активности
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Subscribe добавляет коллекции в набор подписок сессии
func (s *Session) Subscribe(collections ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, collection := range collections {
		s.subscriptions[collection] = struct{}{}
	}
}

// IsSubscribed проверяет подписку на коллекцию
func (s *Session) IsSubscribed(collection string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscriptions[collection]
	return ok
}

// Subscriptions возвращает список подписанных коллекций
func (s *Session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	collections := make([]string, 0, len(s.subscriptions))
	for collection := range s.subscriptions {
		collections = append(collections, collection)
	}
	return collections
}

// Checkpoint возвращает подтвержденный checkpoint сессии
func (s *Session) Checkpoint() models.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint
}

// AdvanceCheckpoint продвигает checkpoint сессии слиянием с other.
// Подтвержденный номер по коллекции никогда не уменьшается.
func (s *Session) AdvanceCheckpoint(other models.Checkpoint) models.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = s.checkpoint.Merge(other)
	return s.checkpoint
}

// Send доставляет envelope в транспорт сессии и отмечает активность
func (s *Session) Send(env api.Envelope) error {
	if err := s.sender.Send(env); err != nil {
		return err
	}
	s.Touch()
	return nil
}

// Close закрывает транспорт сессии с указанием причины
func (s *Session) Close(code int, reason string) {
	s.sender.Close(code, reason)
}
