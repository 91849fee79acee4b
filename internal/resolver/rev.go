package resolver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Маркер ревизии имеет форму "<generation>-<suffix>": поколение растет
// на единицу при каждой записи, суффикс делает маркер уникальным.

// NewRev создает маркер ревизии, построенный поверх parentRev.
// Пустой parentRev дает первое поколение.
func NewRev(parentRev string) string {
	return fmt.Sprintf("%d-%s", RevGeneration(parentRev)+1, uuid.New().String()[:8])
}

// RevGeneration извлекает номер поколения из маркера ревизии.
// Возвращает 0 для пустого или нераспознанного маркера.
func RevGeneration(rev string) int64 {
	head, _, found := strings.Cut(rev, "-")
	if !found {
		return 0
	}
	generation, err := strconv.ParseInt(head, 10, 64)
	if err != nil || generation < 0 {
		return 0
	}
	return generation
}
