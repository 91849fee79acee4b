package models

import "time"

// Document представляет одну запись в коллекции.
// Канонический экземпляр живет в авторитетном снапшоте сервера;
// владение передается только через принятый push.
type Document struct {
	UpdatedAt time.Time      `json:"updated_at"` // UpdatedAt время последней записи
	Fields    map[string]any `json:"fields"`     // Fields произвольные поля документа
	ID        string         `json:"id"`         // ID уникальный идентификатор документа в коллекции
	Rev       string         `json:"rev"`        // Rev маркер ревизии, меняется при каждой записи
	Deleted   bool           `json:"deleted"`    // Deleted флаг soft delete
}

// Clone создает глубокую копию документа
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return &Document{
		ID:        d.ID,
		Rev:       d.Rev,
		Deleted:   d.Deleted,
		UpdatedAt: d.UpdatedAt,
		Fields:    fields,
	}
}
