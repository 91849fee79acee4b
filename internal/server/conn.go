package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/docsync/internal/engine"
	"github.com/iudanet/docsync/internal/server/auth"
	"github.com/iudanet/docsync/internal/session"
	"github.com/iudanet/docsync/pkg/api"
)

// Timeouts and limits for the websocket transport
const (
	// writeWait максимальное время записи одного сообщения
	writeWait = 10 * time.Second

	// pongWait максимальное время ожидания pong от клиента
	pongWait = 60 * time.Second

	// pingPeriod период отправки ping, должен быть меньше pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize максимальный размер входящего сообщения
	maxMessageSize = 1 << 20

	// sendBufferSize емкость исходящей очереди соединения
	sendBufferSize = 32
)

// Transport errors returned by Conn.Send
var (
	// ErrConnClosed соединение уже закрыто
	ErrConnClosed = errors.New("connection closed")

	// ErrSendBufferFull исходящая очередь переполнена; медленный потребитель
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn owns one websocket connection: it authenticates the client,
// registers the session, pumps inbound messages through the sync engine
// strictly in arrival order and drains the bounded outbound queue.
// Implements session.Sender.
type Conn struct {
	ws      *websocket.Conn
	logger  *slog.Logger
	engine  *engine.Engine
	authn   auth.Authenticator
	token   string
	nodeID  string
	session *session.Session

	send      chan api.Envelope
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
}

func newConn(ws *websocket.Conn, logger *slog.Logger, eng *engine.Engine, authn auth.Authenticator, token, nodeID string) *Conn {
	c := &Conn{
		ws:     ws,
		logger: logger,
		engine: eng,
		authn:  authn,
		token:  token,
		nodeID: nodeID,
		send:   make(chan api.Envelope, sendBufferSize),
		done:   make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// State возвращает текущее состояние соединения
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// Send enqueues an envelope without blocking. A full queue means the
// client is not keeping up; the caller decides whether to drop the session.
func (c *Conn) Send(env api.Envelope) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- env:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame with the distinguishing code and tears the
// connection down. Safe to call concurrently and more than once.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)

		// WriteControl безопасен при конкурентной записи
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("Close frame write failed", "error", err)
		}

		close(c.done)
		_ = c.ws.Close()
		c.setState(StateClosed)
	})
}

// run performs the handshake and blocks until the connection terminates.
// Called from the HTTP handler so the hijacked connection outlives nothing.
func (c *Conn) run(ctx context.Context) {
	c.setState(StateAuthenticating)

	identity, err := c.authn.Authenticate(ctx, c.token)
	if err != nil {
		c.logger.Warn("Connection authentication failed",
			"remote_addr", c.ws.RemoteAddr().String(),
			"error", err,
		)
		c.setState(StateError)
		c.Close(api.CloseAuthFailed, "authentication failed")
		return
	}

	sess, err := c.engine.Sessions().Register(identity.UserID, c.nodeID, identity.Metadata, c)
	if err != nil {
		if errors.Is(err, session.ErrQuotaExceeded) {
			c.setState(StateError)
			c.Close(api.CloseQuotaExceeded, "session quota exceeded")
			return
		}
		c.logger.Error("Session registration failed", "user_id", identity.UserID, "error", err)
		c.setState(StateError)
		c.Close(websocket.CloseInternalServerErr, "registration failed")
		return
	}
	c.session = sess
	c.setState(StateActive)

	defer c.engine.Sessions().Unregister(sess.ID)
	defer c.Close(websocket.CloseNormalClosure, "")

	go c.writeLoop()
	c.readLoop(ctx)
}

// readLoop обрабатывает входящие сообщения строго последовательно
func (c *Conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.session.Touch()
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Unexpected connection close",
					"session_id", c.session.ID, "error", err)
			}
			return
		}

		c.session.Touch()
		c.handleMessage(ctx, data)
	}
}

// writeLoop сливает исходящую очередь и поддерживает keepalive
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.logger.Debug("Envelope write failed",
					"session_id", c.session.ID, "error", err)
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleMessage decodes and dispatches one inbound message. A panic in a
// handler poisons only this message: an error envelope goes back and the
// connection keeps serving.
func (c *Conn) handleMessage(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic in message handler",
				"session_id", c.session.ID,
				"error", r,
				"stack", string(debug.Stack()),
			)
			c.sendError("", api.ErrCodeStorage, "internal error", true)
		}
	}()

	var env api.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError("", api.ErrCodeMalformed, "malformed envelope", false)
		return
	}

	switch env.Type {
	case api.TypePush:
		c.handlePush(ctx, env)
	case api.TypePull:
		c.handlePull(ctx, env)
	case api.TypeError:
		// Клиентские ошибки только логируем
		var msg api.ErrorMessage
		if err := json.Unmarshal(env.Payload, &msg); err == nil {
			c.logger.Warn("Client reported error",
				"session_id", c.session.ID, "code", msg.Code, "message", msg.Message)
		}
	default:
		c.sendError(env.ID, api.ErrCodeUnknownType,
			fmt.Sprintf("unknown message type %q", env.Type), false)
	}
}

func (c *Conn) handlePush(ctx context.Context, env api.Envelope) {
	var req api.PushRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		c.sendError(env.ID, api.ErrCodeMalformed, "malformed push payload", false)
		return
	}

	resp, err := c.engine.HandlePush(ctx, c.session, &req)
	if err != nil {
		c.replyError(env.ID, err)
		return
	}
	c.reply(api.TypePushResponse, env.ID, resp)
}

func (c *Conn) handlePull(ctx context.Context, env api.Envelope) {
	var req api.PullRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		c.sendError(env.ID, api.ErrCodeMalformed, "malformed pull payload", false)
		return
	}

	resp, err := c.engine.HandlePull(ctx, c.session, &req)
	if err != nil {
		c.replyError(env.ID, err)
		return
	}
	c.reply(api.TypePullResponse, env.ID, resp)
}

// replyError переводит ошибку движка в error envelope с нужной
// классификацией retryable
func (c *Conn) replyError(inReplyTo string, err error) {
	if errors.Is(err, engine.ErrBadRequest) {
		c.sendError(inReplyTo, api.ErrCodeMalformed, err.Error(), false)
		return
	}
	c.logger.Error("Sync operation failed", "session_id", c.session.ID, "error", err)
	c.sendError(inReplyTo, api.ErrCodeStorage, "storage error", true)
}

func (c *Conn) reply(msgType, id string, payload any) {
	env, err := api.NewEnvelope(msgType, id, payload)
	if err != nil {
		c.logger.Error("Response marshal failed", "session_id", c.session.ID, "error", err)
		return
	}
	if err := c.session.Send(env); err != nil {
		c.logger.Warn("Response send failed", "session_id", c.session.ID, "error", err)
	}
}

func (c *Conn) sendError(inReplyTo, code, message string, retryable bool) {
	env, err := api.NewEnvelope(api.TypeError, inReplyTo, api.ErrorMessage{
		Code:      code,
		Message:   message,
		Retryable: retryable,
	})
	if err != nil {
		return
	}
	if sendErr := c.Send(env); sendErr != nil {
		c.logger.Debug("Error envelope dropped", "error", sendErr)
	}
}
