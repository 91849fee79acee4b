package models

import "time"

// Checkpoint представляет маркер прогресса синхронизации:
// наибольший наблюдавшийся номер последовательности по каждой коллекции
// плюс отметка времени. Значение неизменяемо: все операции возвращают
// новый Checkpoint и не могут завершиться ошибкой.
type Checkpoint struct {
	UpdatedAt time.Time        `json:"updated_at"` // UpdatedAt отметка времени, только подсказка
	Sequences map[string]int64 `json:"sequences"`  // Sequences map[collection]наибольший seq
}

// NewCheckpoint создает пустой checkpoint
func NewCheckpoint() Checkpoint {
	return Checkpoint{Sequences: make(map[string]int64)}
}

// SequenceFor возвращает номер последовательности для коллекции,
// 0 если коллекция не встречалась
func (c Checkpoint) SequenceFor(collection string) int64 {
	return c.Sequences[collection]
}

// WithSequence возвращает копию checkpoint с обновленным номером
// для коллекции. Номер никогда не уменьшается.
func (c Checkpoint) WithSequence(collection string, seq int64, at time.Time) Checkpoint {
	next := c.clone()
	if seq > next.Sequences[collection] {
		next.Sequences[collection] = seq
	}
	if at.After(next.UpdatedAt) {
		next.UpdatedAt = at
	}
	return next
}

// Merge объединяет два checkpoint: попарный максимум номеров по каждой
// коллекции и более поздняя отметка времени. Операция коммутативна.
func (c Checkpoint) Merge(other Checkpoint) Checkpoint {
	next := c.clone()
	for collection, seq := range other.Sequences {
		if seq > next.Sequences[collection] {
			next.Sequences[collection] = seq
		}
	}
	if other.UpdatedAt.After(next.UpdatedAt) {
		next.UpdatedAt = other.UpdatedAt
	}
	return next
}

// AtLeast возвращает true, если checkpoint не отстает от other:
// по каждой коллекции из other номер в c не меньше.
func (c Checkpoint) AtLeast(other Checkpoint) bool {
	for collection, seq := range other.Sequences {
		if c.Sequences[collection] < seq {
			return false
		}
	}
	return true
}

// clone создает независимую копию checkpoint
func (c Checkpoint) clone() Checkpoint {
	sequences := make(map[string]int64, len(c.Sequences))
	for collection, seq := range c.Sequences {
		sequences[collection] = seq
	}
	return Checkpoint{Sequences: sequences, UpdatedAt: c.UpdatedAt}
}
