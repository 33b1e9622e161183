package game

import (
	"errors"

	"github.com/jason-s-yu/ichi/internal/models"
)

// Turn errors. All of them leave the game untouched.
var (
	ErrNotYourTurn      = errors.New("not your turn")
	ErrIllegalMove      = errors.New("illegal move")
	ErrStaleMove        = errors.New("move is for a superseded turn")
	ErrGameNotActive    = errors.New("game is not active")
	ErrGameStarted      = errors.New("game already started")
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrDuplicatePlayer  = errors.New("duplicate username")
	ErrNotEnoughPlayers = errors.New("not enough players")

	// ErrEmptyDeck is re-exported so callers of SubmitMove need only this package.
	ErrEmptyDeck = models.ErrEmptyDeck
)
