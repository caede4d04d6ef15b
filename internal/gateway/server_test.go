package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konvergen/voicegate/internal/config"
	"github.com/konvergen/voicegate/internal/emotion"
	"github.com/konvergen/voicegate/internal/events"
	"github.com/konvergen/voicegate/internal/logging"
	"github.com/konvergen/voicegate/internal/provider"
	"github.com/konvergen/voicegate/internal/session"
	"github.com/konvergen/voicegate/internal/store"
)

type testGateway struct {
	server   *Server
	ts       *httptest.Server
	provider *provider.MockClient
	sessions *session.Manager
}

// newTestGateway spins up the gateway on an httptest server with a mock
// provider and an unreachable emotion backend, so text classification
// exercises the keyword fallback.
func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	log := logging.New(nil, "silent")
	bus := events.NewBus(log)
	mock := &provider.MockClient{}
	sessions := session.NewManager(mock, nil, bus, log)
	classifier := emotion.NewClassifier("http://127.0.0.1:1", log,
		emotion.WithTimeout(200*time.Millisecond))

	s := New(config.Defaults(), sessions, classifier, bus, log)
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	ts := httptest.NewServer(withMiddleware(mux, s.log, nil))
	t.Cleanup(ts.Close)

	return &testGateway{server: s, ts: ts, provider: mock, sessions: sessions}
}

// newTestGatewayWithHistory is newTestGateway plus an in-memory
// conversation log, so the /sessions read surface is live.
func newTestGatewayWithHistory(t *testing.T) *testGateway {
	t.Helper()

	log := logging.New(nil, "silent")
	bus := events.NewBus(log)
	mock := &provider.MockClient{}

	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := session.NewManager(mock, db, bus, log)
	classifier := emotion.NewClassifier("http://127.0.0.1:1", log,
		emotion.WithTimeout(200*time.Millisecond))

	s := New(config.Defaults(), sessions, classifier, bus, log, WithConversationLog(db))
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	ts := httptest.NewServer(withMiddleware(mux, s.log, nil))
	t.Cleanup(ts.Close)

	return &testGateway{server: s, ts: ts, provider: mock, sessions: sessions}
}

func (g *testGateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(msg, &frame))
	return frame
}

func sendFrame(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func errorCode(t *testing.T, frame map[string]any) string {
	t.Helper()
	require.Equal(t, "error", frame["type"])
	body, ok := frame["error"].(map[string]any)
	require.True(t, ok)
	code, _ := body["code"].(string)
	return code
}

func TestConnectionAckOnAccept(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)

	ack := readFrame(t, ws)
	assert.Equal(t, "connection", ack["type"])
	assert.Equal(t, "connected", ack["status"])
	assert.NotEmpty(t, ack["connectionId"])
	assert.NotEmpty(t, ack["timestamp"])
}

func TestConversationLifecycle(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)
	readFrame(t, ws) // connection ack

	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1"}`)
	started := readFrame(t, ws)
	require.Equal(t, "conversation_started", started["type"])
	assert.Equal(t, "a1", started["agentId"])
	sessionID, _ := started["sessionId"].(string)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, 1, g.sessions.ActiveCount())

	sendFrame(t, ws, `{"type":"text_input","text":"saya marah"}`)
	processed := readFrame(t, ws)
	require.Equal(t, "text_processed", processed["type"])
	assert.Equal(t, "saya marah", processed["originalText"])
	emo, ok := processed["emotion"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "marah", emo["emotion"])
	assert.Equal(t, "fallback_keyword", emo["method"])

	sendFrame(t, ws, `{"type":"ping"}`)
	pong := readFrame(t, ws)
	assert.Equal(t, "pong", pong["type"])

	sendFrame(t, ws, `{"type":"end_conversation"}`)
	ended := readFrame(t, ws)
	require.Equal(t, "conversation_ended", ended["type"])
	assert.Equal(t, sessionID, ended["sessionId"])
	assert.Equal(t, 0, g.sessions.ActiveCount())

	// Closing after a clean end must not produce further errors.
	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
}

func TestInputRejectedWithoutSession(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"audio_input","audioData":"cGNt"}`)
	assert.Equal(t, "AUDIO_PROCESSING_ERROR", errorCode(t, readFrame(t, ws)))

	sendFrame(t, ws, `{"type":"text_input","text":"halo"}`)
	assert.Equal(t, "TEXT_PROCESSING_ERROR", errorCode(t, readFrame(t, ws)))

	assert.Equal(t, int32(0), g.provider.CreateCalls.Load())
	assert.Equal(t, 0, g.sessions.ActiveCount())
}

func TestStartRequiresAgentID(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"start_conversation","agentId":"  "}`)
	assert.Equal(t, "CONVERSATION_START_ERROR", errorCode(t, readFrame(t, ws)))
	assert.Equal(t, int32(0), g.provider.CreateCalls.Load(),
		"validation must happen before any provider call")

	// Connection stays usable: a valid start still works.
	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1"}`)
	assert.Equal(t, "conversation_started", readFrame(t, ws)["type"])
}

func TestStartWhileBound(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1"}`)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a2"}`)
	assert.Equal(t, "CONVERSATION_START_ERROR", errorCode(t, readFrame(t, ws)))
	assert.Equal(t, 1, g.sessions.ActiveCount())
}

func TestStartProviderFailure(t *testing.T) {
	g := newTestGateway(t)
	g.provider.CreateFunc = func(ctx context.Context, agentID string, options map[string]any) (provider.Conversation, error) {
		return nil, fmt.Errorf("quota exceeded")
	}
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1"}`)
	assert.Equal(t, "CONVERSATION_START_ERROR", errorCode(t, readFrame(t, ws)))
	assert.Equal(t, 0, g.sessions.ActiveCount())
}

func TestEndWithoutSession(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"end_conversation"}`)
	assert.Equal(t, "MESSAGE_PROCESSING_ERROR", errorCode(t, readFrame(t, ws)))
}

func TestUnknownMessageType(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"subscribe"}`)
	assert.Equal(t, "MESSAGE_PROCESSING_ERROR", errorCode(t, readFrame(t, ws)))

	sendFrame(t, ws, `this is not json`)
	assert.Equal(t, "MESSAGE_PROCESSING_ERROR", errorCode(t, readFrame(t, ws)))

	// State unchanged: starting still works.
	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1"}`)
	assert.Equal(t, "conversation_started", readFrame(t, ws)["type"])
}

func TestAudioForwarding(t *testing.T) {
	g := newTestGateway(t)
	conv := &provider.MockConversation{ConvID: "conv-1"}
	g.provider.CreateFunc = func(ctx context.Context, agentID string, options map[string]any) (provider.Conversation, error) {
		return conv, nil
	}
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1"}`)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"audio_input","audioData":"cGNtLWJ5dGVz"}`)
	received := readFrame(t, ws)
	require.Equal(t, "audio_received", received["type"])
	assert.Equal(t, float64(len("pcm-bytes")), received["bytes"])
	assert.Equal(t, int32(1), conv.AudioCalls.Load())

	sendFrame(t, ws, `{"type":"audio_input","audioData":"%%%not-base64%%%"}`)
	assert.Equal(t, "AUDIO_PROCESSING_ERROR", errorCode(t, readFrame(t, ws)))
}

func TestTwoConnectionsSameAgentIndependent(t *testing.T) {
	g := newTestGateway(t)

	wsA := g.dial(t)
	readFrame(t, wsA)
	wsB := g.dial(t)
	readFrame(t, wsB)

	sendFrame(t, wsA, `{"type":"start_conversation","agentId":"a1"}`)
	startedA := readFrame(t, wsA)
	sendFrame(t, wsB, `{"type":"start_conversation","agentId":"a1"}`)
	startedB := readFrame(t, wsB)
	require.NotEqual(t, startedA["sessionId"], startedB["sessionId"])
	require.Equal(t, 2, g.sessions.ActiveCount())

	sendFrame(t, wsA, `{"type":"end_conversation"}`)
	require.Equal(t, "conversation_ended", readFrame(t, wsA)["type"])

	assert.Equal(t, 1, g.sessions.ActiveCount())
	sendFrame(t, wsB, `{"type":"text_input","text":"masih jalan"}`)
	assert.Equal(t, "text_processed", readFrame(t, wsB)["type"])
}

func TestDisconnectEndsBoundSession(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1"}`)
	readFrame(t, ws)
	require.Equal(t, 1, g.sessions.ActiveCount())

	ws.Close()

	assert.Eventually(t, func() bool {
		return g.sessions.ActiveCount() == 0 && g.server.Connections() == 0
	}, 3*time.Second, 10*time.Millisecond, "disconnect must tear down the bound session")
}

// HTTP control surface

func TestHealthEndpoint(t *testing.T) {
	g := newTestGateway(t)

	resp, err := http.Get(g.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "voicegate", body["service"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestStatusEndpoint(t *testing.T) {
	g := newTestGateway(t)
	ws := g.dial(t)
	readFrame(t, ws)
	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1"}`)
	readFrame(t, ws)

	resp, err := http.Get(g.ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(1), body["activeSessions"])
	assert.Equal(t, float64(1), body["connections"])
	assert.NotEmpty(t, body["uptime"])
}

func TestSessionStartEndpoint(t *testing.T) {
	g := newTestGateway(t)

	resp, err := http.Post(g.ts.URL+"/session/start", "application/json",
		bytes.NewBufferString(`{"agentId":"a1","userId":"u1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "a1", body["agentId"])
	assert.Equal(t, "u1", body["userId"])
	assert.NotEmpty(t, body["sessionId"])
}

func TestSessionStartEndpointValidation(t *testing.T) {
	g := newTestGateway(t)

	resp, err := http.Post(g.ts.URL+"/session/start", "application/json",
		bytes.NewBufferString(`{"userId":"u1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(0), g.provider.CreateCalls.Load())
}

func TestSessionStartEndpointProviderFailure(t *testing.T) {
	g := newTestGateway(t)
	g.provider.CreateFunc = func(ctx context.Context, agentID string, options map[string]any) (provider.Conversation, error) {
		return nil, fmt.Errorf("provider down")
	}

	resp, err := http.Post(g.ts.URL+"/session/start", "application/json",
		bytes.NewBufferString(`{"agentId":"a1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSessionEndEndpoint(t *testing.T) {
	g := newTestGateway(t)
	sess, err := g.sessions.Start(context.Background(), "a1", "", "", nil)
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodDelete, g.ts.URL+"/session/"+sess.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ended", body["status"])
	assert.Equal(t, sess.ID, body["sessionId"])

	// Second delete: session is gone.
	req, _ = http.NewRequest(http.MethodDelete, g.ts.URL+"/session/"+sess.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEmotionTestEndpoint(t *testing.T) {
	g := newTestGateway(t)

	resp, err := http.Post(g.ts.URL+"/emotion/test", "application/json",
		bytes.NewBufferString(`{"text":"Saya sangat senang hari ini"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "senang", body["emotion"])
	assert.Equal(t, "fallback_keyword", body["method"])

	resp, err = http.Post(g.ts.URL+"/emotion/test", "application/json",
		bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionHistoryEndpoints(t *testing.T) {
	g := newTestGatewayWithHistory(t)
	ws := g.dial(t)
	readFrame(t, ws)

	sendFrame(t, ws, `{"type":"start_conversation","agentId":"a1","userId":"u1"}`)
	started := readFrame(t, ws)
	require.Equal(t, "conversation_started", started["type"])
	sessionID := started["sessionId"].(string)

	sendFrame(t, ws, `{"type":"text_input","text":"saya marah"}`)
	require.Equal(t, "text_processed", readFrame(t, ws)["type"])

	sendFrame(t, ws, `{"type":"end_conversation"}`)
	require.Equal(t, "conversation_ended", readFrame(t, ws)["type"])

	resp, err := http.Get(g.ts.URL + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Sessions []map[string]any `json:"sessions"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, sessionID, list.Sessions[0]["sessionId"])
	assert.Equal(t, "a1", list.Sessions[0]["agentId"])
	assert.Equal(t, "u1", list.Sessions[0]["userId"])
	assert.Equal(t, "client_request", list.Sessions[0]["endReason"])
	assert.NotEmpty(t, list.Sessions[0]["endedAt"])

	resp, err = http.Get(g.ts.URL + "/session/" + sessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail struct {
		Session    map[string]any   `json:"session"`
		Utterances []map[string]any `json:"utterances"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	assert.Equal(t, sessionID, detail.Session["sessionId"])
	require.Len(t, detail.Utterances, 1)
	assert.Equal(t, "saya marah", detail.Utterances[0]["text"])
	assert.Equal(t, "marah", detail.Utterances[0]["emotion"])
	assert.Equal(t, "fallback_keyword", detail.Utterances[0]["method"])
}

func TestSessionDetailUnknownSession(t *testing.T) {
	g := newTestGatewayWithHistory(t)

	resp, err := http.Get(g.ts.URL + "/session/never-existed")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionListLimit(t *testing.T) {
	g := newTestGatewayWithHistory(t)

	for range 3 {
		_, err := g.sessions.Start(context.Background(), "a1", "", "", nil)
		require.NoError(t, err)
	}

	resp, err := http.Get(g.ts.URL + "/sessions?limit=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 2, list.Count)

	resp, err = http.Get(g.ts.URL + "/sessions?limit=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionHistoryDisabled(t *testing.T) {
	g := newTestGateway(t)

	resp, err := http.Get(g.ts.URL + "/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(g.ts.URL + "/session/sess-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	g := newTestGateway(t)

	resp, err := http.Get(g.ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
