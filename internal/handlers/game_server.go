// internal/handlers/game_server.go
package handlers

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/ichi/internal/auth"
	"github.com/jason-s-yu/ichi/internal/game"
	"github.com/jason-s-yu/ichi/internal/middleware"
	"github.com/sirupsen/logrus"
)

// GameServer is a high-level struct that holds the GameStore plus the
// per-game hubs, and wires new games to the transport and the historian.
type GameServer struct {
	Logger    *logrus.Logger
	GameStore *game.GameStore
	Signer    *auth.Signer
	Publisher game.ActionPublisher // nil disables action history
	Defaults  game.HouseRules

	// EndedGameTTL is how long a finished game stays around so clients can
	// still sync the final state.
	EndedGameTTL time.Duration

	mu   sync.Mutex
	hubs map[uuid.UUID]*Hub
}

func NewGameServer(logger *logrus.Logger, signer *auth.Signer, defaults game.HouseRules) *GameServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GameServer{
		Logger:       logger,
		GameStore:    game.NewGameStore(),
		Signer:       signer,
		Defaults:     defaults,
		EndedGameTTL: time.Minute,
		hubs:         make(map[uuid.UUID]*Hub),
	}
}

// CreateGame builds a game for usernames with the given rule overrides on top
// of the defaults, registers it, and optionally starts it.
func (gs *GameServer) CreateGame(usernames []string, overrides map[string]interface{}, start bool) (*game.GameServer, error) {
	rules, err := game.ParseRules(overrides, gs.Defaults)
	if err != nil {
		return nil, fmt.Errorf("house rules: %w", err)
	}
	g, err := game.NewGameServer(nil, usernames...)
	if err != nil {
		return nil, err
	}
	g.ApplyHouseRules(rules)
	g.Logger = gs.Logger.WithField("game", g.ID)
	if gs.Publisher != nil {
		g.Publisher = gs.Publisher
	}

	hub := NewHub(g.ID, gs.Logger)
	hub.Attach(g)
	g.Broadcaster = hub

	// runs under the game lock, so removal happens later on its own goroutine
	g.OnGameEnd = func(gameID uuid.UUID, winner string) {
		gs.Logger.WithFields(logrus.Fields{"game": gameID, "winner": winner}).Info("Game finished")
		time.AfterFunc(gs.EndedGameTTL, func() { gs.RemoveGame(gameID) })
	}

	gs.mu.Lock()
	gs.hubs[g.ID] = hub
	gs.mu.Unlock()
	gs.GameStore.AddGame(g)

	if start {
		if err := g.Start(); err != nil {
			gs.RemoveGame(g.ID)
			return nil, fmt.Errorf("start game: %w", err)
		}
	}
	return g, nil
}

// Hub returns the fan-out hub for a live game.
func (gs *GameServer) Hub(gameID uuid.UUID) (*Hub, bool) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	h, ok := gs.hubs[gameID]
	return h, ok
}

// RemoveGame closes the game, then its hub once the last events are written.
func (gs *GameServer) RemoveGame(gameID uuid.UUID) {
	gs.GameStore.DeleteGame(gameID)

	gs.mu.Lock()
	hub, ok := gs.hubs[gameID]
	delete(gs.hubs, gameID)
	gs.mu.Unlock()
	if ok {
		hub.Close()
	}
}

// Shutdown closes every game and hub.
func (gs *GameServer) Shutdown() {
	gs.GameStore.CloseAll()

	gs.mu.Lock()
	hubs := gs.hubs
	gs.hubs = make(map[uuid.UUID]*Hub)
	gs.mu.Unlock()
	for _, h := range hubs {
		h.Close()
	}
}

// Routes mounts every endpoint behind the request logger.
func (gs *GameServer) Routes() http.Handler {
	logged := middleware.LogMiddleware(gs.Logger)

	mux := http.NewServeMux()
	mux.Handle("/auth/guest", logged(GuestHandler(gs)))
	mux.Handle("/game/create", logged(CreateGameHandler(gs)))
	mux.Handle("/game/ws/", logged(GameWSHandler(gs.Logger, gs)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "games": gs.GameStore.Len()})
	})
	return mux
}
