/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const sessionsPath = "/connect"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocket handler that picks the session based on :sessionid
func serveWSForManager(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")
		if sessionID == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		session, err := sm.getSession(sessionID)
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errorf(cfg, "SESSIONS: Upgrade for %s from %s failed: %v", sessionID, realIP(r), err)
			return
		}

		client := newClient(conn)

		if err := session.attach(client); err != nil {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(session)
	}
}

func (c *Client) readPump(s *Session) {
	defer func() {
		s.detach(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "input", "find", "reset":
			if err := s.post(msg); err != nil {
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// QR handler: generates a PNG QR code for the current session URL using go-qrcode.
func qrHandler(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")
		if sessionID == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:sessionid/qr; strip trailing "/qr" to get the session URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func serveSessionPage(cfg *Config, sm *SessionManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		sessionID := ps.ByName("sessionid")

		session, err := sm.getSession(sessionID)
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		var buf bytes.Buffer
		if err := renderPage(&buf, cfg, sessionID, session.snapshot()); err != nil {
			errorf(cfg, "SERVE: Rendering %s: %v", sessionID, err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		written, err := w.Write(buf.Bytes())
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Session %s (%s) to %s in %s",
			sessionID,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveAction handles the no-JavaScript form posts. The find form carries
// both inputs, which are applied before the action itself.
func serveAction(cfg *Config, sm *SessionManager, action string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")

		session, err := sm.getSession(sessionID)
		if err != nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		msgs := make([]ClientMessage, 0, 3)
		if action == "find" {
			for _, field := range []string{fieldPlayer1, fieldPlayer2} {
				if _, ok := r.PostForm[field]; ok {
					msgs = append(msgs, ClientMessage{Type: "input", Field: field, Value: r.PostForm.Get(field)})
				}
			}
		}
		msgs = append(msgs, ClientMessage{Type: action})

		for _, msg := range msgs {
			if _, err := session.dispatch(r.Context(), msg); err != nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		http.Redirect(w, r, sessionPath(cfg, sessionID), http.StatusSeeOther)
	}
}

// redirectNewSession generates a new random session ID (with server-side
// collision detection) and redirects to it.
func redirectNewSession(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		sessionID := sm.newSessionID()
		logf(cfg, "SESSIONS: Created session %s", sessionID)
		http.Redirect(w, r, sessionPath(cfg, sessionID), http.StatusTemporaryRedirect)
	}
}

// registerConnections sets up routes so that:
//   - /, /connect                      → redirect to a new session
//   - /connect/:sessionid              → HTML page
//   - /connect/:sessionid/find, reset  → form fallback
//   - /connect/:sessionid/ws           → WebSocket for that session
//   - /connect/:sessionid/qr           → PNG QR code for that session URL
func registerConnections(cfg *Config, sm *SessionManager, mux *httprouter.Router, errs chan<- error) {
	path := cfg.prefix + sessionsPath

	mux.GET(cfg.prefix+"/", redirectNewSession(cfg, sm))
	mux.GET(path, redirectNewSession(cfg, sm))

	mux.GET(path+"/:sessionid", serveSessionPage(cfg, sm, errs))
	mux.POST(path+"/:sessionid/find", serveAction(cfg, sm, "find"))
	mux.POST(path+"/:sessionid/reset", serveAction(cfg, sm, "reset"))
	mux.GET(path+"/:sessionid/ws", serveWSForManager(cfg, sm))
	mux.GET(path+"/:sessionid/qr", qrHandler(cfg, errs))
}
