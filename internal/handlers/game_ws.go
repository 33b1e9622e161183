// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/ichi/internal/game"
	"github.com/jason-s-yu/ichi/internal/middleware"
	"github.com/jason-s-yu/ichi/internal/models"
	"github.com/sirupsen/logrus"
)

// GameMessage represents the structure for incoming WebSocket messages during the game phase.
type GameMessage struct {
	Type string `json:"type"`

	// Cards are the cards put down by a "play".
	Cards []models.Card `json:"cards,omitempty"`

	// Count is how many cards a "draw" takes; zero means one.
	Count int `json:"count,omitempty"`

	// TurnVersion is the turn the client is acting on. Zero skips the check.
	TurnVersion int64 `json:"turn_version,omitempty"`
}

// GameWSHandler upgrades the HTTP connection to WebSocket for a specific game instance.
// The caller must present a token for one of the game's seats.
func GameWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract Game ID from URL path: /game/ws/{game_id}
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/game/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "Missing game_id in path (/game/ws/{game_id})", http.StatusBadRequest)
			return
		}
		gameID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "Invalid game_id format", http.StatusBadRequest)
			return
		}

		g, ok := gs.GameStore.GetGame(gameID)
		if !ok {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}
		hub, ok := gs.Hub(gameID)
		if !ok {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}

		username, ok := gs.authenticate(r)
		if !ok {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if !g.HasPlayer(username) {
			http.Error(w, "You are not a player in this game", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for game %s: %v", gameID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			logger.Warnf("Client for game %s connected with invalid subprotocol: %s", gameID, c.Subprotocol())
			c.Close(BadSubprotocolError, "Client must use the 'game' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path, username)

		hub.Register(username, c)
		defer hub.Unregister(username, c)
		hub.SendSync(username, g.Snapshot(username))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		err = readGameMessages(ctx, c, g, hub, username, logger)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, username, err)
	}
}

// readGameMessages reads client messages until the connection closes and
// routes each to the game. Replies go through the hub so they stay ordered
// with the game's own events.
func readGameMessages(ctx context.Context, c *websocket.Conn, g *game.GameServer, hub *Hub, username string, logger *logrus.Logger) error {
	log := logger.WithFields(logrus.Fields{"game": g.ID, "player": username})
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if msgType != websocket.MessageText {
			log.Warnf("Received non-text message type %d. Ignoring.", msgType)
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("Invalid JSON received: %v", err)
			sendWsError(hub, username, "bad_request", "Invalid JSON format.")
			continue
		}

		log.Debugf("Received action '%s'", msg.Type)

		switch msg.Type {
		case "start":
			err = g.Start()
		case "play":
			err = g.SubmitMove(username, game.Move{Kind: game.MovePlay, Cards: msg.Cards, TurnVersion: msg.TurnVersion})
		case "draw":
			err = g.SubmitMove(username, game.Move{Kind: game.MoveDraw, Count: msg.Count, TurnVersion: msg.TurnVersion})
		case "sync":
			hub.SendSync(username, g.Snapshot(username))
		case "ping":
			hub.Send(username, map[string]string{"type": "pong"})
		default:
			sendWsError(hub, username, "bad_request", fmt.Sprintf("Unknown action type: %s", msg.Type))
			continue
		}
		if err != nil {
			log.WithError(err).Debugf("Rejected %s", msg.Type)
			sendWsError(hub, username, errorCode(err), err.Error())
		}
	}
}

// errorCode maps game errors onto the stable codes clients switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrStaleMove):
		return "stale_move"
	case errors.Is(err, game.ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, game.ErrEmptyDeck):
		return "empty_deck"
	case errors.Is(err, game.ErrGameNotActive):
		return "game_not_active"
	case errors.Is(err, game.ErrGameStarted):
		return "game_started"
	case errors.Is(err, game.ErrUnknownPlayer):
		return "unknown_player"
	default:
		return "internal"
	}
}

// sendWsError sends a structured error message to one client.
func sendWsError(hub *Hub, username, code, errorMsg string) {
	hub.Send(username, map[string]interface{}{
		"type":    "error",
		"code":    code,
		"message": errorMsg,
	})
}
