// internal/game/sync_state.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/ichi/internal/models"
)

// PlayerState is one seat as seen by the requesting user. Hand is only filled
// in for the requester's own seat.
type PlayerState struct {
	Username      string        `json:"username"`
	HandSize      int           `json:"handSize"`
	IsCurrentTurn bool          `json:"isCurrentTurn"`
	Hand          []models.Card `json:"hand,omitempty"`
}

// GameState is the sync payload sent on connect and on request.
type GameState struct {
	GameID        uuid.UUID     `json:"gameId"`
	Started       bool          `json:"started"`
	GameOver      bool          `json:"gameOver"`
	Winner        string        `json:"winner,omitempty"`
	CurrentPlayer string        `json:"currentPlayer,omitempty"`
	TurnVersion   int64         `json:"turnVersion"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
	StockSize     int           `json:"stockSize"`
	DiscardSize   int           `json:"discardSize"`
	DiscardTop    *models.Card  `json:"discardTop,omitempty"`
	Players       []PlayerState `json:"players"`
	HouseRules    HouseRules    `json:"houseRules"`
}

// Snapshot generates a view of the game for forUser.
func (g *GameServer) Snapshot(forUser string) GameState {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := GameState{
		GameID:      g.ID,
		Started:     g.started,
		GameOver:    g.gameOver,
		Winner:      g.winner,
		TurnVersion: g.turnVersion,
		StockSize:   g.deck.Len(),
		DiscardSize: len(g.discard),
		DiscardTop:  g.topDiscardLocked(),
		Players:     make([]PlayerState, 0, len(g.players)),
		HouseRules:  g.HouseRules,
	}
	if g.started {
		state.CurrentPlayer = g.players[g.currentIndex].Username()
	}
	if g.activeLocked() {
		deadline := g.deadline
		state.Deadline = &deadline
	}

	for i, p := range g.players {
		ps := PlayerState{
			Username:      p.Username(),
			HandSize:      p.HandSize(),
			IsCurrentTurn: g.activeLocked() && i == g.currentIndex,
		}
		if p.Username() == forUser {
			ps.Hand = p.Cards()
		}
		state.Players = append(state.Players, ps)
	}
	return state
}
