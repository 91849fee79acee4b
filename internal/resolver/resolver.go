package resolver

import (
	"fmt"
	"time"

	"github.com/iudanet/docsync/internal/models"
)

// Strategy определяет политику разрешения конфликтов.
// Закрытый набор: добавление стратегии требует правки всех switch.
type Strategy uint8

// Поддерживаемые стратегии
const (
	// StrategyLastWriteWins выигрывает запись с более поздним временем,
	// при равенстве выигрывает remote (для детерминизма)
	StrategyLastWriteWins Strategy = iota

	// StrategyServerWins всегда выигрывает авторитетная версия сервера
	StrategyServerWins

	// StrategyClientWins всегда выигрывает версия клиента
	StrategyClientWins
)

// ParseStrategy разбирает строковое имя стратегии из конфигурации
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "last-write-wins":
		return StrategyLastWriteWins, nil
	case "server-wins":
		return StrategyServerWins, nil
	case "client-wins":
		return StrategyClientWins, nil
	default:
		return 0, fmt.Errorf("unknown conflict strategy %q", name)
	}
}

// String возвращает каноническое имя стратегии
func (s Strategy) String() string {
	switch s {
	case StrategyLastWriteWins:
		return "last-write-wins"
	case StrategyServerWins:
		return "server-wins"
	case StrategyClientWins:
		return "client-wins"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// Winner указывает, какая сторона победила в конфликте
type Winner string

// Стороны конфликта: local — предложенная мутация клиента,
// remote — авторитетная версия сервера
const (
	WinnerLocal  Winner = "local"
	WinnerRemote Winner = "remote"
)

// Decision результат разрешения конфликта. Документ всегда целиком
// одна из сторон, полевого слияния не бывает.
type Decision struct {
	Document *models.Document `json:"document"`
	Winner   Winner           `json:"winner"`
}

// Resolve выбирает выжившую версию документа. Чистая функция:
// одинаковые входы всегда дают одинаковое решение, побочных
// эффектов нет. Всегда возвращает решение (тотальна).
func Resolve(documentID string, local, remote *models.Document, strategy Strategy, now time.Time) Decision {
	if remote == nil {
		// Авторитетной версии нет, конфликтовать не с чем
		return Decision{Winner: WinnerLocal, Document: local.Clone()}
	}
	if local == nil {
		return Decision{Winner: WinnerRemote, Document: remote.Clone()}
	}

	switch strategy {
	case StrategyServerWins:
		return Decision{Winner: WinnerRemote, Document: remote.Clone()}
	case StrategyClientWins:
		return Decision{Winner: WinnerLocal, Document: local.Clone()}
	case StrategyLastWriteWins:
		fallthrough
	default:
		// При равных временах выигрывает remote: обе стороны должны
		// принять одно и то же решение независимо друг от друга
		if local.UpdatedAt.After(remote.UpdatedAt) {
			return Decision{Winner: WinnerLocal, Document: local.Clone()}
		}
		return Decision{Winner: WinnerRemote, Document: remote.Clone()}
	}
}

// InConflict определяет, разошлись ли входящая мутация и авторитетный
// документ. Эвристика по поколениям ревизий: входящая ревизия должна
// строиться поверх текущего поколения сервера, иначе обе стороны писали
// от общей базы. Известное ограничение: без полной причинной истории
// (vector clocks) конфликт может быть недообнаружен.
func InConflict(incoming, authoritative *models.Document) bool {
	if authoritative == nil || incoming == nil {
		return false
	}
	if incoming.Rev == authoritative.Rev {
		// Та же версия, переигрывание не конфликт
		return false
	}
	return RevGeneration(incoming.Rev) <= RevGeneration(authoritative.Rev)
}
