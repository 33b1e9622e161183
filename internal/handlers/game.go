// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

type createGameRequest struct {
	Players    []string               `json:"players"`
	HouseRules map[string]interface{} `json:"houseRules,omitempty"`
	Start      bool                   `json:"start"`
}

// CreateGameHandler handles POST /game/create. The caller must be
// authenticated and must hold one of the seats.
func CreateGameHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		username, ok := gs.authenticate(r)
		if !ok {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		var req createGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}
		seated := false
		for _, p := range req.Players {
			if p == username {
				seated = true
				break
			}
		}
		if !seated {
			http.Error(w, "creator must be one of the players", http.StatusBadRequest)
			return
		}

		g, err := gs.CreateGame(req.Players, req.HouseRules, req.Start)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gs.Logger.WithFields(logrus.Fields{
			"game":    g.ID,
			"creator": username,
			"players": len(req.Players),
		}).Info("Game created")

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"game_id":    g.ID,
			"players":    g.Players(),
			"houseRules": g.Snapshot(username).HouseRules,
		})
	}
}
