package validation

import (
	"fmt"
	"regexp"
)

// CollectionPattern определяет допустимый формат имени коллекции
// Только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_),
// дефис (-). Длина: 1-64 символа.
var CollectionPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const (
	// MaxCollectionLen максимальная длина имени коллекции
	MaxCollectionLen = 64
	// MaxDocumentIDLen максимальная длина идентификатора документа
	MaxDocumentIDLen = 256
)

// ValidateCollection проверяет, что имя коллекции соответствует требованиям
// Формат: латинские буквы, цифры, нижнее подчеркивание, дефис
// Длина: 1-64 символа
func ValidateCollection(name string) error {
	if name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}

	if len(name) > MaxCollectionLen {
		return fmt.Errorf("collection name must not exceed %d characters", MaxCollectionLen)
	}

	if !CollectionPattern.MatchString(name) {
		return fmt.Errorf("collection name can only contain letters (a-z, A-Z), numbers (0-9), underscores (_) and hyphens (-)")
	}

	return nil
}

// ValidateDocumentID проверяет идентификатор документа.
// Идентификаторы непрозрачны для сервера, ограничиваем только длину
// и запрещаем управляющие символы.
func ValidateDocumentID(id string) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	if len(id) > MaxDocumentIDLen {
		return fmt.Errorf("document id must not exceed %d characters", MaxDocumentIDLen)
	}

	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("document id cannot contain control characters")
		}
	}

	return nil
}
