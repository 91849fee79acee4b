package server

// ConnState описывает жизненный цикл одного соединения
type ConnState int32

const (
	// StateConnecting HTTP upgrade принят, рукопожатие еще не завершено
	StateConnecting ConnState = iota
	// StateAuthenticating токен соединения проверяется
	StateAuthenticating
	// StateActive сессия зарегистрирована, сообщения обрабатываются
	StateActive
	// StateClosing соединение завершается, отправлен close frame
	StateClosing
	// StateClosed соединение завершено
	StateClosed
	// StateError терминальное состояние после ошибки рукопожатия или транспорта
	StateError
)

// String возвращает имя состояния для логов
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
