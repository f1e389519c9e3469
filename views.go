/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"embed"
	"html/template"
	"io"
)

//go:embed connections/*
var views embed.FS

var viewTemplates = template.Must(template.ParseFS(views, "connections/index.html"))

const (
	labelPlayer1 = "Enter Your First Player Here"
	labelPlayer2 = "Enter Your Second Player Here"
)

type inputView struct {
	Label string
	Field string
	Value string
}

type resultView struct {
	Player1     string
	Player2     string
	Connections []string
	ResetAction string
}

type pageView struct {
	Favicon    template.HTML
	Prefix     string
	SessionID  string
	FindAction string
	QRPath     string
	Inputs     []inputView
	Result     *resultView
}

func sessionPath(cfg *Config, sessionID string) string {
	return cfg.prefix + sessionsPath + "/" + sessionID
}

// newResultView returns nil when there is nothing to show.
func newResultView(cfg *Config, sessionID string, state AppState) *resultView {
	if !state.HasResults() {
		return nil
	}

	return &resultView{
		Player1:     state.Player1,
		Player2:     state.Player2,
		Connections: state.Connections,
		ResetAction: sessionPath(cfg, sessionID) + "/reset",
	}
}

func newPageView(cfg *Config, sessionID string, state AppState) pageView {
	base := sessionPath(cfg, sessionID)

	return pageView{
		Favicon:    template.HTML(getFavicon(cfg)),
		Prefix:     cfg.prefix,
		SessionID:  sessionID,
		FindAction: base + "/find",
		QRPath:     base + "/qr",
		Inputs: []inputView{
			{Label: labelPlayer1, Field: fieldPlayer1, Value: state.Player1},
			{Label: labelPlayer2, Field: fieldPlayer2, Value: state.Player2},
		},
		Result: newResultView(cfg, sessionID, state),
	}
}

func renderPage(w io.Writer, cfg *Config, sessionID string, state AppState) error {
	return viewTemplates.ExecuteTemplate(w, "page", newPageView(cfg, sessionID, state))
}

// renderResult renders the result panel on its own, for pushing over the
// websocket. It is empty when the state has no connections.
func renderResult(cfg *Config, sessionID string, state AppState) (string, error) {
	rv := newResultView(cfg, sessionID, state)
	if rv == nil {
		return "", nil
	}

	var buf bytes.Buffer
	if err := viewTemplates.ExecuteTemplate(&buf, "connection-result", rv); err != nil {
		return "", err
	}

	return buf.String(), nil
}
