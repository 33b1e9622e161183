// internal/game/rules.go
package game

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/jason-s-yu/ichi/internal/models"
)

// HouseRules defines the per-game knobs a lobby can override.
type HouseRules struct {
	TurnTimerSec      int  `json:"turnTimerSec"`      // seconds a player has to move; default 30
	PenaltyDrawCount  int  `json:"penaltyDrawCount"`  // cards drawn by a player whose turn timed out
	InitialHandSize   int  `json:"initialHandSize"`   // cards dealt to each player on Start
	CancelStaleTimers bool `json:"cancelStaleTimers"` // stop a superseded turn timer instead of letting it fire as a no-op
}

// DefaultHouseRules returns the rules a game starts with.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		TurnTimerSec:      30,
		PenaltyDrawCount:  1,
		InitialHandSize:   7,
		CancelStaleTimers: true,
	}
}

// Bounds on client-supplied rules.
const (
	MinTurnTimerSec     = 1
	MaxTurnTimerSec     = 3600
	MaxPenaltyDrawCount = 20
	MaxInitialHandSize  = 20
)

// TurnDuration converts TurnTimerSec into a duration, clamped to
// [MinTurnTimerSec, MaxTurnTimerSec] so the deadline always lies ahead.
func (rules HouseRules) TurnDuration() time.Duration {
	sec := rules.TurnTimerSec
	if sec < MinTurnTimerSec {
		sec = MinTurnTimerSec
	}
	if sec > MaxTurnTimerSec {
		sec = MaxTurnTimerSec
	}
	return time.Duration(sec) * time.Second
}

// Validate checks every numeric rule against its bounds.
func (rules HouseRules) Validate() error {
	if err := checkRange("turnTimerSec", rules.TurnTimerSec, MinTurnTimerSec, MaxTurnTimerSec); err != nil {
		return err
	}
	if err := checkRange("penaltyDrawCount", rules.PenaltyDrawCount, 0, MaxPenaltyDrawCount); err != nil {
		return err
	}
	return checkRange("initialHandSize", rules.InitialHandSize, 1, MaxInitialHandSize)
}

func checkRange(key string, n, minVal, maxVal int) error {
	if n < minVal || n > maxVal {
		return fmt.Errorf("%s must be between %d and %d, got %d", key, minVal, maxVal, n)
	}
	return nil
}

// Update will update the house rules with the new rules provided.
// If a rule is not set or defined, it will be ignored, and the old value will persist.
func (rules *HouseRules) Update(newRules map[string]interface{}) error {
	assignBool := func(field *bool, key string) error {
		if val, exists := newRules[key]; exists && val != nil {
			b, ok := val.(bool)
			if !ok {
				return fmt.Errorf("invalid type for %s", key)
			}
			*field = b
		}
		return nil
	}

	assignInt := func(field *int, key string, minVal, maxVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var n int
		// JSON numbers decode as float64; range-check before converting
		switch v := val.(type) {
		case float64:
			if v != math.Trunc(v) {
				return fmt.Errorf("%s must be a whole number", key)
			}
			if v < float64(minVal) || v > float64(maxVal) {
				return fmt.Errorf("%s must be between %d and %d", key, minVal, maxVal)
			}
			n = int(v)
		case int:
			n = v
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if err := checkRange(key, n, minVal, maxVal); err != nil {
			return err
		}
		*field = n
		return nil
	}

	// work on a copy so a bad key leaves the rules as they were
	next := *rules
	if err := assignInt(&next.TurnTimerSec, "turnTimerSec", MinTurnTimerSec, MaxTurnTimerSec); err != nil {
		return err
	}
	if err := assignInt(&next.PenaltyDrawCount, "penaltyDrawCount", 0, MaxPenaltyDrawCount); err != nil {
		return err
	}
	if err := assignInt(&next.InitialHandSize, "initialHandSize", 1, MaxInitialHandSize); err != nil {
		return err
	}
	if err := assignBool(&next.CancelStaleTimers, "cancelStaleTimers"); err != nil {
		return err
	}
	*rules = next
	return nil
}

// ParseRules converts a map of rules to a HouseRules struct, starting from current.
func ParseRules(rules map[string]interface{}, current HouseRules) (HouseRules, error) {
	houseRules := current
	err := houseRules.Update(rules)
	return houseRules, err
}

// MoveKind names what a player does on their turn.
type MoveKind string

const (
	MovePlay MoveKind = "play" // put Cards from the hand on the discard pile
	MoveDraw MoveKind = "draw" // take Count cards (at least one) from the stock
)

// Move is a player's submission for the current turn.
type Move struct {
	Kind  MoveKind      `json:"kind"`
	Cards []models.Card `json:"cards,omitempty"`
	Count int           `json:"count,omitempty"`

	// TurnVersion, when non-zero, is the turn the client saw when it sent
	// the move. A move stamped for an earlier turn is refused.
	TurnVersion int64 `json:"turn_version,omitempty"`
}

// TurnView is the read-only state handed to a RulesOracle.
type TurnView struct {
	Player      string
	Hand        []models.Card
	TopDiscard  *models.Card
	DeckSize    int
	TurnVersion int64
}

// RulesOracle decides whether a move is legal. Returning any error rejects the
// move; the server reports it as ErrIllegalMove.
type RulesOracle interface {
	CheckMove(view TurnView, move Move) error
}

// RulesFunc adapts a function to a RulesOracle.
type RulesFunc func(view TurnView, move Move) error

func (f RulesFunc) CheckMove(view TurnView, move Move) error { return f(view, move) }

// AnyMove accepts every well-formed move. Game-specific legality lives elsewhere.
var AnyMove RulesOracle = RulesFunc(func(TurnView, Move) error { return nil })

// Replenisher decides which discarded cards go back into an exhausted stock.
// It must not modify discard; restock and keep are new slices.
type Replenisher interface {
	Replenish(discard []models.Card) (restock, keep []models.Card)
}

// ReshuffleDiscard keeps the top discard in place and shuffles the rest back
// into the stock.
type ReshuffleDiscard struct {
	Rand *rand.Rand
}

func (r ReshuffleDiscard) Replenish(discard []models.Card) (restock, keep []models.Card) {
	if len(discard) <= 1 {
		return nil, append([]models.Card(nil), discard...)
	}
	top := len(discard) - 1
	restock = append([]models.Card(nil), discard[:top]...)
	keep = []models.Card{discard[top]}

	swap := func(i, j int) { restock[i], restock[j] = restock[j], restock[i] }
	if r.Rand != nil {
		r.Rand.Shuffle(len(restock), swap)
	} else {
		rand.Shuffle(len(restock), swap)
	}
	return restock, keep
}
