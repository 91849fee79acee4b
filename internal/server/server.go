package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/docsync/internal/engine"
	"github.com/iudanet/docsync/internal/server/auth"
	"github.com/iudanet/docsync/internal/server/middleware"
)

// Defaults for the HTTP surface
const (
	DefaultSyncPath        = "/sync"
	defaultShutdownTimeout = 10 * time.Second
)

// Config собирает зависимости и настройки HTTP/websocket сервера
type Config struct {
	Logger  *slog.Logger
	Engine  *engine.Engine
	Auth    auth.Authenticator
	Addr    string
	// SyncPath путь upgrade-эндпоинта, по умолчанию /sync
	SyncPath string
	// Version отдается в /healthz
	Version string
	// RateLimit попыток соединения с одного IP за RateWindow; 0 отключает лимит
	RateLimit  int
	RateWindow time.Duration
	// ShutdownTimeout максимальное время graceful shutdown
	ShutdownTimeout time.Duration
}

// Server exposes the sync engine over websocket plus a health endpoint
type Server struct {
	logger          *slog.Logger
	engine          *engine.Engine
	authn           auth.Authenticator
	upgrader        websocket.Upgrader
	handler         http.Handler
	httpServer      *http.Server
	version         string
	shutdownTimeout time.Duration
}

// New создает сервер и собирает цепочку middleware:
// recovery -> logging (без /healthz) -> rate limit -> mux
func New(cfg Config) *Server {
	syncPath := cfg.SyncPath
	if syncPath == "" {
		syncPath = DefaultSyncPath
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		logger: cfg.Logger,
		engine: cfg.Engine,
		authn:  cfg.Auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Клиенты - нативные приложения, браузерного origin нет
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		version:         cfg.Version,
		shutdownTimeout: shutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc(syncPath, s.handleSync)

	var handler http.Handler = mux
	if cfg.RateLimit > 0 {
		handler = middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateWindow, cfg.Logger)(handler)
	}
	handler = middleware.LoggingWithSkip(cfg.Logger, []string{"/healthz"})(handler)
	handler = middleware.RecoveryMiddleware(cfg.Logger)(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler возвращает корневой handler; используется в тестах с httptest
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe запускает сервер и блокируется до остановки контекста
// или ошибки listener
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown останавливает HTTP сервер gracefully
func (s *Server) Shutdown() error {
	s.logger.Info("Server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// handleHealth возвращает статус сервера для health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// handleSync upgrades the HTTP request and hands the socket to a Conn.
// The token is checked after the upgrade so the 4001/4002 close codes
// actually reach the client.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	token := connectionToken(r)
	nodeID := originNodeID(r)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.logger.Warn("Websocket upgrade failed",
			"remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(ws, s.logger, s.engine, s.authn, token, nodeID)
	conn.run(r.Context())
}

// connectionToken извлекает токен из Authorization: Bearer или,
// для клиентов без доступа к заголовкам, из query параметра token
func connectionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return after
		}
	}
	return r.URL.Query().Get("token")
}

// originNodeID извлекает идентификатор узла-источника
func originNodeID(r *http.Request) string {
	if id := r.Header.Get("X-Node-ID"); id != "" {
		return id
	}
	return r.URL.Query().Get("node_id")
}
