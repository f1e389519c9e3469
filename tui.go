/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const tuiWrap = 80

type tuiStyles struct {
	Title   lipgloss.Style
	Tagline lipgloss.Style
	Input   lipgloss.Style
	Focused lipgloss.Style
	Help    lipgloss.Style
	Result  lipgloss.Style
	Players lipgloss.Style
	Link    lipgloss.Style
}

func defaultTUIStyles() tuiStyles {
	return tuiStyles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F4F4F9")).
			Background(lipgloss.Color("#0B2545")).
			Padding(0, 2),
		Tagline: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8DA9C4")).
			MarginBottom(1),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#8DA9C4")).
			Padding(0, 1),
		Focused: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#D62828")).
			Padding(0, 1),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D")).
			MarginTop(1),
		Result: lipgloss.NewStyle().
			MarginTop(1),
		Players: lipgloss.NewStyle().
			Bold(true).
			PaddingLeft(2),
		Link: lipgloss.NewStyle().
			PaddingLeft(2),
	}
}

// tuiModel is the terminal rendition of the connection finder: the header,
// two player inputs and, once there are connections, the result panel.
type tuiModel struct {
	state    AppState
	inputs   []textinput.Model
	fields   []string
	focus    int
	renderer *glamour.TermRenderer
	styles   tuiStyles
	width    int
}

func newTUIModel() tuiModel {
	labels := []string{labelPlayer1, labelPlayer2}

	inputs := make([]textinput.Model, len(labels))
	for i, label := range labels {
		ti := textinput.New()
		ti.Placeholder = label
		ti.Prompt = "› "
		ti.CharLimit = 256
		ti.Width = tuiWrap - 8
		inputs[i] = ti
	}
	inputs[0].Focus()

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(tuiWrap),
	)

	return tuiModel{
		state:    NewAppState(),
		inputs:   inputs,
		fields:   []string{fieldPlayer1, fieldPlayer2},
		renderer: renderer,
		styles:   defaultTUIStyles(),
		width:    tuiWrap,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		for i := range m.inputs {
			m.inputs[i].Width = max(msg.Width-8, 10)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			cmd := m.focusOn((m.focus + 1) % len(m.inputs))
			return m, cmd
		case "shift+tab", "up":
			cmd := m.focusOn((m.focus + len(m.inputs) - 1) % len(m.inputs))
			return m, cmd
		case "enter":
			m.state = m.state.FindConnection()
			return m, nil
		case "ctrl+r":
			m.state = m.state.Reset()
			for i := range m.inputs {
				m.inputs[i].SetValue("")
			}
			cmd := m.focusOn(0)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	m.state = m.state.withInput(m.fields[m.focus], m.inputs[m.focus].Value())

	return m, cmd
}

func (m *tuiModel) focusOn(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[i].Focus()
}

// resultHeading is the only part of the result panel rendered as markdown.
// Player names never go through glamour, so they show as typed.
const resultHeading = "## Direct Connections\n"

func (m tuiModel) resultView() string {
	if !m.state.HasResults() {
		return ""
	}

	heading := resultHeading
	if m.renderer != nil {
		if out, err := m.renderer.Render(heading); err == nil {
			heading = out
		}
	}

	var sb strings.Builder

	sb.WriteString(strings.TrimRight(heading, "\n"))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Players.Render(m.state.Player1 + " ➡ " + m.state.Player2))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Link.Render(fmt.Sprintf("These Players are linked through %d connections", len(m.state.Connections))))
	sb.WriteString("\n")
	for _, c := range m.state.Connections {
		sb.WriteString(m.styles.Link.Render("• " + c))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (m tuiModel) View() string {
	var sb strings.Builder

	sb.WriteString(m.styles.Title.Render("NFL Direct Connections"))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Tagline.Render("Enter two players and find out how they are linked."))
	sb.WriteString("\n")

	for i, in := range m.inputs {
		style := m.styles.Input
		if i == m.focus {
			style = m.styles.Focused
		}
		sb.WriteString(style.Render(in.View()))
		sb.WriteString("\n")
	}

	if m.state.HasResults() {
		sb.WriteString(m.styles.Result.Render(m.resultView()))
		sb.WriteString("\n")
		sb.WriteString(m.styles.Help.Render("ctrl+r: Try Another Connection? • esc: quit"))
	} else {
		sb.WriteString(m.styles.Help.Render("enter: Find The Connection! • tab: next player • esc: quit"))
	}

	return sb.String()
}
