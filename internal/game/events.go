// internal/game/events.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/ichi/internal/models"
)

// GameEventType is an enum-like type for broadcasting game transitions.
type GameEventType string

const (
	EventTurnStarted     GameEventType = "turn_started"     // a player's turn began, with its deadline
	EventTurnForfeited   GameEventType = "turn_forfeited"   // the deadline passed without a move
	EventStateChanged    GameEventType = "state_changed"    // the turn version moved
	EventMoveApplied     GameEventType = "move_applied"     // a submitted move was accepted
	EventDeckReplenished GameEventType = "deck_replenished" // discard pile shuffled back into the stock
	EventGameEnd         GameEventType = "game_end"
)

// GameEvent holds data about a transition, in the shape relayed to clients.
type GameEvent struct {
	Type        GameEventType  `json:"type"`
	GameID      uuid.UUID      `json:"game_id"`
	Player      string         `json:"player,omitempty"`
	TurnVersion int64          `json:"turn_version"`
	Deadline    *time.Time     `json:"deadline,omitempty"`
	Cards       []models.Card  `json:"cards,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Broadcaster relays game events to whatever transport sits in front of the
// game. Broadcast is called with the game lock held and must not call back
// into the GameServer.
type Broadcaster interface {
	Broadcast(ev GameEvent)
}

// BroadcasterFunc adapts a plain function to a Broadcaster.
type BroadcasterFunc func(ev GameEvent)

func (f BroadcasterFunc) Broadcast(ev GameEvent) { f(ev) }

// OnGameEndFunc is called once when a game finishes.
type OnGameEndFunc func(gameID uuid.UUID, winner string)
