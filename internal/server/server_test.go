package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/changelog"
	"github.com/iudanet/docsync/internal/engine"
	"github.com/iudanet/docsync/internal/resolver"
	"github.com/iudanet/docsync/internal/server/auth"
	"github.com/iudanet/docsync/internal/session"
	"github.com/iudanet/docsync/internal/snapshot"
	"github.com/iudanet/docsync/pkg/api"
)

const testToken = "test-token"

func setupTestServer(t *testing.T, maxPerUser int) (*httptest.Server, *engine.Engine) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authn := auth.NewStatic()
	require.NoError(t, authn.AddToken("user-1", testToken, map[string]string{"device": "test"}))

	sessions := session.NewManager(logger, maxPerUser, time.Minute, time.Minute)
	eng := engine.New(engine.Config{
		Logger:    logger,
		ChangeLog: changelog.NewMemoryLog(),
		Snapshot:  snapshot.NewMemoryStore(),
		Sessions:  sessions,
		Strategy:  resolver.StrategyLastWriteWins,
	})

	srv := New(Config{
		Logger:  logger,
		Engine:  eng,
		Auth:    authn,
		Version: "test",
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(eng.Close)

	return ts, eng
}

func dial(t *testing.T, ts *httptest.Server, token, nodeID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultSyncPath
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if nodeID != "" {
		header.Set("X-Node-ID", nodeID)
	}

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// sendEnvelope marshals the payload and writes a full envelope
func sendEnvelope(t *testing.T, ws *websocket.Conn, msgType, id string, payload any) {
	t.Helper()
	env, err := api.NewEnvelope(msgType, id, payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))
}

// readEnvelope reads the next envelope with a test deadline
func readEnvelope(t *testing.T, ws *websocket.Conn) api.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env api.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

// readCloseCode waits for the server to close the connection and returns
// the close code
func readCloseCode(t *testing.T, ws *websocket.Conn) int {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
	return closeErr.Code
}

func TestServer_Health(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestServer_AuthFailure_ClosesWithAuthCode(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	ws := dial(t, ts, "wrong-token", "node-1")
	assert.Equal(t, api.CloseAuthFailed, readCloseCode(t, ws))
}

func TestServer_MissingToken_ClosesWithAuthCode(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	ws := dial(t, ts, "", "node-1")
	assert.Equal(t, api.CloseAuthFailed, readCloseCode(t, ws))
}

func TestServer_QuotaExceeded_ClosesWithQuotaCode(t *testing.T) {
	ts, eng := setupTestServer(t, 2)

	first := dial(t, ts, testToken, "node-1")
	second := dial(t, ts, testToken, "node-2")

	// Ждем регистрации обеих сессий
	require.Eventually(t, func() bool {
		return eng.Sessions().Count() == 2
	}, 2*time.Second, 10*time.Millisecond)

	third := dial(t, ts, testToken, "node-3")
	assert.Equal(t, api.CloseQuotaExceeded, readCloseCode(t, third))

	// Первые две сессии не затронуты
	assert.Equal(t, 2, eng.Sessions().Count())
	_ = first
	_ = second
}

func TestServer_PushPull_RoundTrip(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	ws := dial(t, ts, testToken, "node-1")

	sendEnvelope(t, ws, api.TypePush, "req-1", api.PushRequest{
		Collection: "notes",
		Changes: []api.Change{{
			Op:         api.OpInsert,
			DocumentID: "doc-1",
			Document: &api.Document{
				ID:     "doc-1",
				Fields: map[string]any{"title": "hello"},
			},
		}},
	})

	env := readEnvelope(t, ws)
	require.Equal(t, api.TypePushResponse, env.Type)
	assert.Equal(t, "req-1", env.ID)

	var pushResp api.PushResponse
	require.NoError(t, json.Unmarshal(env.Payload, &pushResp))
	assert.True(t, pushResp.Success)
	assert.Empty(t, pushResp.Conflicts)
	assert.Equal(t, int64(1), pushResp.Checkpoint.Sequences["notes"])

	// Pull с нулевого checkpoint с другого соединения возвращает изменение
	other := dial(t, ts, testToken, "node-2")
	sendEnvelope(t, other, api.TypePull, "req-2", api.PullRequest{
		Collections: []string{"notes"},
	})

	env = readEnvelope(t, other)
	require.Equal(t, api.TypePullResponse, env.Type)
	assert.Equal(t, "req-2", env.ID)

	var pullResp api.PullResponse
	require.NoError(t, json.Unmarshal(env.Payload, &pullResp))
	require.Len(t, pullResp.Changes["notes"], 1)
	assert.Equal(t, "doc-1", pullResp.Changes["notes"][0].DocumentID)
	assert.False(t, pullResp.HasMore)
}

func TestServer_Broadcast_ReachesSubscriber(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	subscriber := dial(t, ts, testToken, "node-sub")

	// Подписка через pull
	sendEnvelope(t, subscriber, api.TypePull, "sub-1", api.PullRequest{
		Collections: []string{"notes"},
	})
	env := readEnvelope(t, subscriber)
	require.Equal(t, api.TypePullResponse, env.Type)

	pusher := dial(t, ts, testToken, "node-push")
	sendEnvelope(t, pusher, api.TypePush, "push-1", api.PushRequest{
		Collection: "notes",
		Changes: []api.Change{{
			Op:         api.OpInsert,
			DocumentID: "doc-1",
			Document:   &api.Document{ID: "doc-1", Fields: map[string]any{"n": float64(1)}},
		}},
	})
	env = readEnvelope(t, pusher)
	require.Equal(t, api.TypePushResponse, env.Type)

	// Подписчик получает изменение как pull-response без запроса
	env = readEnvelope(t, subscriber)
	require.Equal(t, api.TypePullResponse, env.Type)

	var pullResp api.PullResponse
	require.NoError(t, json.Unmarshal(env.Payload, &pullResp))
	require.Len(t, pullResp.Changes["notes"], 1)
	assert.Equal(t, "doc-1", pullResp.Changes["notes"][0].DocumentID)
}

func TestServer_MalformedMessage_ThenValid(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	ws := dial(t, ts, testToken, "node-1")

	// Мусор вместо envelope
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	env := readEnvelope(t, ws)
	require.Equal(t, api.TypeError, env.Type)

	var errMsg api.ErrorMessage
	require.NoError(t, json.Unmarshal(env.Payload, &errMsg))
	assert.Equal(t, api.ErrCodeMalformed, errMsg.Code)
	assert.False(t, errMsg.Retryable)

	// Соединение живо: валидный pull обрабатывается
	sendEnvelope(t, ws, api.TypePull, "req-1", api.PullRequest{
		Collections: []string{"notes"},
	})
	env = readEnvelope(t, ws)
	assert.Equal(t, api.TypePullResponse, env.Type)
}

func TestServer_UnknownMessageType(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	ws := dial(t, ts, testToken, "node-1")

	sendEnvelope(t, ws, "subscribe", "req-1", map[string]string{})

	env := readEnvelope(t, ws)
	require.Equal(t, api.TypeError, env.Type)
	assert.Equal(t, "req-1", env.ID)

	var errMsg api.ErrorMessage
	require.NoError(t, json.Unmarshal(env.Payload, &errMsg))
	assert.Equal(t, api.ErrCodeUnknownType, errMsg.Code)
	assert.False(t, errMsg.Retryable)
}

func TestServer_BadRequest_IsNonRetryable(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	ws := dial(t, ts, testToken, "node-1")

	// Push без коллекции отвергается, соединение остается открытым
	sendEnvelope(t, ws, api.TypePush, "req-1", api.PushRequest{
		Changes: []api.Change{{Op: api.OpDelete, DocumentID: "doc-1"}},
	})

	env := readEnvelope(t, ws)
	require.Equal(t, api.TypeError, env.Type)
	assert.Equal(t, "req-1", env.ID)

	var errMsg api.ErrorMessage
	require.NoError(t, json.Unmarshal(env.Payload, &errMsg))
	assert.Equal(t, api.ErrCodeMalformed, errMsg.Code)
	assert.False(t, errMsg.Retryable)
}

func TestServer_TokenViaQueryParam(t *testing.T) {
	ts, _ := setupTestServer(t, 10)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultSyncPath + "?token=" + testToken + "&node_id=node-q"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })

	sendEnvelope(t, ws, api.TypePull, "req-1", api.PullRequest{
		Collections: []string{"notes"},
	})
	env := readEnvelope(t, ws)
	assert.Equal(t, api.TypePullResponse, env.Type)
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", ConnState(99).String())
}
