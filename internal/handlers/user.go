package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

const maxUsernameLen = 32

type guestRequest struct {
	Username string `json:"username"`
}

// GuestHandler issues a token for a display name. There are no accounts: the
// name in the token is the player's identity for the life of the process.
func GuestHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req guestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}
		username := strings.TrimSpace(req.Username)
		if username == "" || len(username) > maxUsernameLen {
			http.Error(w, "username must be 1-32 characters", http.StatusBadRequest)
			return
		}

		token, err := gs.Signer.CreateJWT(username)
		if err != nil {
			gs.Logger.WithError(err).Error("failed to create guest token")
			http.Error(w, "failed to create token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     authCookieName,
			Value:    token,
			HttpOnly: true,
			Path:     "/",
		})
		writeJSON(w, http.StatusOK, map[string]string{
			"username": username,
			"token":    token,
		})
	}
}

// authenticate resolves the request's token to a username.
func (gs *GameServer) authenticate(r *http.Request) (string, bool) {
	token := requestToken(r)
	if token == "" {
		return "", false
	}
	username, err := gs.Signer.AuthenticateJWT(token)
	if err != nil {
		gs.Logger.WithError(err).Debug("rejected auth token")
		return "", false
	}
	return username, true
}
