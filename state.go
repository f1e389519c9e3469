/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import "fmt"

const exampleTeam = "Example Team"

// AppState is everything a connection lookup knows about: the two players
// as typed, and the connections found between them.
type AppState struct {
	Player1     string
	Player2     string
	Connections []string
}

func NewAppState() AppState {
	return AppState{
		Connections: []string{},
	}
}

// FindConnection returns a copy of s populated with the connections between
// Player1 and Player2. Names are used verbatim, even when empty.
func (s AppState) FindConnection() AppState {
	s.Connections = []string{
		fmt.Sprintf("%s is connected to Player 1 through %s", s.Player1, exampleTeam),
		fmt.Sprintf("Player 1 is connected to Player 2 through %s", exampleTeam),
		fmt.Sprintf("Player 2 is connected to %s through %s", s.Player2, exampleTeam),
	}

	return s
}

func (s AppState) Reset() AppState {
	return NewAppState()
}

// HasResults reports whether the result panel should be shown.
func (s AppState) HasResults() bool {
	return len(s.Connections) > 0
}

func (s AppState) Clone() AppState {
	c := s
	c.Connections = make([]string, len(s.Connections))
	copy(c.Connections, s.Connections)

	return c
}

// withInput sets the named field to value. Unknown fields leave s unchanged.
func (s AppState) withInput(field, value string) AppState {
	switch field {
	case fieldPlayer1:
		s.Player1 = value
	case fieldPlayer2:
		s.Player2 = value
	}

	return s
}

const (
	fieldPlayer1 = "player1"
	fieldPlayer2 = "player2"
)
