/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	cfg *Config
	sm  *SessionManager
	mux *httprouter.Router
}

func newTestServer(t *testing.T, prefix string) *testServer {
	t.Helper()

	cfg := newTestConfig()
	cfg.metrics = true
	cfg.prefix = prefix

	metrics := newMetrics()
	sm := newSessionManager(cfg, metrics, 0)
	t.Cleanup(sm.Close)

	errs := make(chan error, 64)

	return &testServer{
		cfg: cfg,
		sm:  sm,
		mux: newRouter(cfg, sm, metrics, errs),
	}
}

func (ts *testServer) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)

	return rr
}

func TestRootRedirectsToNewSession(t *testing.T) {
	ts := newTestServer(t, "")

	for _, target := range []string{"/", "/connect"} {
		rr := ts.do(http.MethodGet, target, nil)

		assert.Equal(t, http.StatusTemporaryRedirect, rr.Code, target)
		assert.Regexp(t, `^/connect/[A-Za-z0-9]{8}$`, rr.Header().Get("Location"), target)
	}
}

func TestSessionPageWithoutResults(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.do(http.MethodGet, "/connect/page1234", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "default-src 'self'", rr.Header().Get("Content-Security-Policy"))
	assert.Contains(t, body, "NFL Direct Connections")
	assert.Contains(t, body, `placeholder="Enter Your First Player Here"`)
	assert.Contains(t, body, `placeholder="Enter Your Second Player Here"`)
	assert.Contains(t, body, "Find The Connection!")
	assert.Contains(t, body, `action="/connect/page1234/find"`)
	assert.Contains(t, body, `<section id="result" hidden>`)
	assert.NotContains(t, body, `class="connection-result"`)
	assert.NotContains(t, body, "Try Another Connection?")
}

func TestFindAndResetWithForms(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.do(http.MethodPost, "/connect/forms123/find", url.Values{
		"player1": {"Alice"},
		"player2": {"Bob"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/connect/forms123", rr.Header().Get("Location"))

	rr = ts.do(http.MethodGet, "/connect/forms123", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, `class="connection-result"`)
	assert.Contains(t, body, "<h2>Direct Connections</h2>")
	assert.Contains(t, body, "These Players are linked through 3 connections")
	assert.Contains(t, body, "Alice is connected to Player 1 through Example Team")
	assert.Contains(t, body, "Player 1 is connected to Player 2 through Example Team")
	assert.Contains(t, body, "Player 2 is connected to Bob through Example Team")
	assert.Contains(t, body, "Try Another Connection?")
	assert.Contains(t, body, `value="Alice"`)
	assert.Contains(t, body, `value="Bob"`)
	assert.NotContains(t, body, `<section id="result" hidden>`)

	rr = ts.do(http.MethodPost, "/connect/forms123/reset", url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	s, err := ts.sm.getSession("forms123")
	require.NoError(t, err)
	assert.Equal(t, NewAppState(), s.snapshot())

	rr = ts.do(http.MethodGet, "/connect/forms123", nil)
	assert.NotContains(t, rr.Body.String(), `class="connection-result"`)
	assert.NotContains(t, rr.Body.String(), `value="Alice"`)
}

func TestFindWithEmptyNames(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.do(http.MethodPost, "/connect/empty123/find", url.Values{})
	require.Equal(t, http.StatusSeeOther, rr.Code)

	s, err := ts.sm.getSession("empty123")
	require.NoError(t, err)

	state := s.snapshot()
	require.Len(t, state.Connections, 3)
	assert.Equal(t, " is connected to Player 1 through Example Team", state.Connections[0])
	assert.Equal(t, "Player 2 is connected to  through Example Team", state.Connections[2])
}

func TestPageEscapesPlayerNames(t *testing.T) {
	ts := newTestServer(t, "")

	ts.do(http.MethodPost, "/connect/escape12/find", url.Values{
		"player1": {"<b>bold</b>"},
		"player2": {`"quoted"`},
	})

	body := ts.do(http.MethodGet, "/connect/escape12", nil).Body.String()
	assert.NotContains(t, body, "<b>bold</b>")
	assert.Contains(t, body, "&lt;b&gt;bold&lt;/b&gt;")
}

func TestPrefixedRoutes(t *testing.T) {
	ts := newTestServer(t, "/nfl")

	rr := ts.do(http.MethodGet, "/nfl/", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "/nfl/connect/"))

	rr = ts.do(http.MethodGet, "/nfl/connect/prefix12", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `action="/nfl/connect/prefix12/find"`)
	assert.Contains(t, rr.Body.String(), `href="/nfl/assets/connections/app.css"`)

	rr = ts.do(http.MethodGet, "/connect/prefix12", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServeAssets(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		path        string
		code        int
		contentType string
	}{
		{"/assets/connections/app.js", http.StatusOK, "text/javascript; charset=utf-8"},
		{"/assets/connections/app.css", http.StatusOK, "text/css; charset=utf-8"},
		{"/assets/connections/index.html", http.StatusNotFound, ""},
		{"/assets/connections/missing.js", http.StatusNotFound, ""},
		{"/favicon.svg", http.StatusOK, "image/svg+xml"},
		{"/favicons/site.webmanifest", http.StatusOK, "application/manifest+json"},
		{"/favicons/nope.png", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := ts.do(http.MethodGet, tt.path, nil)

			assert.Equal(t, tt.code, rr.Code)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, rr.Header().Get("Content-Type"))
				assert.NotZero(t, rr.Body.Len())
			}
		})
	}
}

func TestHousekeepingRoutes(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Ok\n", rr.Body.String())

	rr = ts.do(http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "connections v"+releaseVersion+"\n", rr.Body.String())

	rr = ts.do(http.MethodGet, "/robots.txt", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Disallow: /connect/")
}

func TestMetricsRoute(t *testing.T) {
	ts := newTestServer(t, "")

	ts.do(http.MethodPost, "/connect/metrics1/find", url.Values{"player1": {"A"}, "player2": {"B"}})

	rr := ts.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, `connections_actions_total{action="find"} 1`)
	assert.Contains(t, body, `connections_actions_total{action="input"} 2`)
	assert.Contains(t, body, "connections_sessions_active 1")
}

func TestMetricsRouteDisabled(t *testing.T) {
	cfg := newTestConfig()
	sm := newSessionManager(cfg, nil, 0)
	t.Cleanup(sm.Close)

	mux := newRouter(cfg, sm, newMetrics(), make(chan error, 1))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQRCode(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.do(http.MethodGet, "/connect/qrcode12/qr", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))
}

func TestPanicHandlerRendersErrorPage(t *testing.T) {
	ts := newTestServer(t, "")
	ts.mux.GET("/boom", func(http.ResponseWriter, *http.Request, httprouter.Params) {
		panic("boom")
	})

	rr := ts.do(http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "An error has occurred. Please try again.")
}

func TestWebSocketSession(t *testing.T) {
	ts := newTestServer(t, "")

	srv := httptest.NewServer(ts.mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/connect/sockets1/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func(conn *websocket.Conn) StateMessage {
		t.Helper()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

		var msg StateMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "state", msg.Type)

		return msg
	}

	msg := read(conn)
	assert.False(t, msg.ShowResult)
	assert.Empty(t, msg.Connections)

	for _, value := range []string{"A", "Al", "Alice"} {
		require.NoError(t, conn.WriteJSON(ClientMessage{Type: "input", Field: fieldPlayer1, Value: value}))
		assert.Equal(t, value, read(conn).Player1)
	}

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "input", Field: fieldPlayer2, Value: "Bob"}))
	assert.Equal(t, "Bob", read(conn).Player2)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "find"}))
	msg = read(conn)
	assert.True(t, msg.ShowResult)
	assert.Equal(t, []string{
		"Alice is connected to Player 1 through Example Team",
		"Player 1 is connected to Player 2 through Example Team",
		"Player 2 is connected to Bob through Example Team",
	}, msg.Connections)
	assert.Contains(t, msg.ResultHTML, "These Players are linked through 3 connections")

	// a second tab on the same session starts from the current state
	other, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer other.Close()

	msg = read(other)
	assert.True(t, msg.ShowResult)
	assert.Equal(t, "Alice", msg.Player1)

	require.NoError(t, other.WriteJSON(ClientMessage{Type: "reset"}))

	for _, c := range []*websocket.Conn{conn, other} {
		msg = read(c)
		assert.False(t, msg.ShowResult)
		assert.Empty(t, msg.Player1)
		assert.Empty(t, msg.Player2)
		assert.Empty(t, msg.Connections)
	}
}

func TestWebSocketFindCarriesInputs(t *testing.T) {
	ts := newTestServer(t, "")

	srv := httptest.NewServer(ts.mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/connect/typedfst/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg StateMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Empty(t, msg.Player1)

	// names typed before the socket opened never arrived as input events
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:    "find",
		Players: map[string]string{fieldPlayer1: "Alice", fieldPlayer2: "Bob"},
	}))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.True(t, msg.ShowResult)
	assert.Equal(t, "Alice", msg.Player1)
	assert.Equal(t, "Bob", msg.Player2)
	require.Len(t, msg.Connections, 3)
	assert.Equal(t, "Alice is connected to Player 1 through Example Team", msg.Connections[0])
	assert.Equal(t, "Player 2 is connected to Bob through Example Team", msg.Connections[2])
}
