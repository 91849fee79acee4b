package models

import "time"

// ChangeOp тип операции над документом
type ChangeOp string

// Операции изменения документа
const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
)

// Valid проверяет, что операция входит в закрытый набор
func (op ChangeOp) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ChangeEvent представляет одно принятое изменение документа.
// После создания событие неизменяемо.
type ChangeEvent struct {
	Timestamp  time.Time `json:"timestamp"`          // Timestamp время применения изменения
	Document   *Document `json:"document,omitempty"` // Document результат операции, nil для delete
	Previous   *Document `json:"previous,omitempty"` // Previous предыдущая версия, если была
	Op         ChangeOp  `json:"op"`                 // Op тип операции
	DocumentID string    `json:"document_id"`        // DocumentID идентификатор документа
	Seq        int64     `json:"seq"`                // Seq номер в журнале изменений коллекции
	FromSync   bool      `json:"from_sync"`          // FromSync true, если изменение пришло по синхронизации
}

// Clone создает глубокую копию события
func (e *ChangeEvent) Clone() *ChangeEvent {
	clone := *e
	clone.Document = e.Document.Clone()
	clone.Previous = e.Previous.Clone()
	return &clone
}
