// internal/handlers/game_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/ichi/internal/auth"
	"github.com/jason-s-yu/ichi/internal/game"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*GameServer, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	signer, err := auth.NewSigner(time.Hour)
	require.NoError(t, err)

	gs := NewGameServer(logger, signer, game.DefaultHouseRules())
	srv := httptest.NewServer(gs.Routes())
	t.Cleanup(func() {
		gs.Shutdown()
		srv.Close()
	})
	return gs, srv
}

func guestToken(t *testing.T, srv *httptest.Server, username string) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/auth/guest", "application/json",
		strings.NewReader(fmt.Sprintf(`{"username":%q}`, username)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body["token"])

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == authCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "token is also set as a cookie")
	assert.Equal(t, body["token"], cookie.Value)
	return body["token"]
}

func createGame(t *testing.T, srv *httptest.Server, token string, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/game/create", bytes.NewBufferString(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Cookie", authCookieName+"="+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func dialGame(ctx context.Context, srv *httptest.Server, gameID, token string) (*websocket.Conn, *http.Response, error) {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/ws/" + gameID
	return websocket.Dial(ctx, u, &websocket.DialOptions{
		Subprotocols: []string{"game"},
		HTTPHeader:   http.Header{"Cookie": {authCookieName + "=" + token}},
	})
}

func readUntil(t *testing.T, ctx context.Context, c *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %s", msgType)
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func send(t *testing.T, ctx context.Context, c *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(msg)))
}

func TestGameWebsocketFlow(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceTok := guestToken(t, srv, "alice")
	bobTok := guestToken(t, srv, "bob")

	resp, created := createGame(t, srv, aliceTok,
		`{"players":["alice","bob"],"houseRules":{"turnTimerSec":60},"start":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gameID := created["game_id"].(string)
	rules := created["houseRules"].(map[string]interface{})
	assert.EqualValues(t, 60, rules["turnTimerSec"])

	ca, _, err := dialGame(ctx, srv, gameID, aliceTok)
	require.NoError(t, err)
	defer ca.Close(websocket.StatusNormalClosure, "")
	cb, _, err := dialGame(ctx, srv, gameID, bobTok)
	require.NoError(t, err)
	defer cb.Close(websocket.StatusNormalClosure, "")

	sync := readUntil(t, ctx, ca, "sync")
	state := sync["state"].(map[string]interface{})
	assert.Equal(t, "alice", state["currentPlayer"])
	players := state["players"].([]interface{})
	require.Len(t, players, 2)
	aliceSeat := players[0].(map[string]interface{})
	bobSeat := players[1].(map[string]interface{})
	assert.Len(t, aliceSeat["hand"], 7, "own hand is visible")
	assert.Nil(t, bobSeat["hand"], "other hands are hidden")
	readUntil(t, ctx, cb, "sync")

	send(t, ctx, cb, `{"type":"draw"}`)
	errMsg := readUntil(t, ctx, cb, "error")
	assert.Equal(t, "not_your_turn", errMsg["code"])

	send(t, ctx, ca, `{"type":"draw"}`)
	applied := readUntil(t, ctx, cb, "move_applied")
	assert.Equal(t, "alice", applied["player"])
	assert.Nil(t, applied["cards"], "drawn cards are not broadcast")
	next := readUntil(t, ctx, cb, "turn_started")
	assert.Equal(t, "bob", next["player"])
	assert.EqualValues(t, 2, next["turn_version"])

	refresh := readUntil(t, ctx, ca, "sync")
	state = refresh["state"].(map[string]interface{})
	aliceSeat = state["players"].([]interface{})[0].(map[string]interface{})
	assert.EqualValues(t, 8, aliceSeat["handSize"])

	send(t, ctx, ca, `{"type":"ping"}`)
	readUntil(t, ctx, ca, "pong")

	send(t, ctx, ca, `{"type":"shuffle"}`)
	errMsg = readUntil(t, ctx, ca, "error")
	assert.Equal(t, "bad_request", errMsg["code"])
}

func TestStartOverWebsocket(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceTok := guestToken(t, srv, "alice")
	_, created := createGame(t, srv, aliceTok, `{"players":["alice","bob"]}`)
	gameID := created["game_id"].(string)

	ca, _, err := dialGame(ctx, srv, gameID, aliceTok)
	require.NoError(t, err)
	defer ca.Close(websocket.StatusNormalClosure, "")

	state := readUntil(t, ctx, ca, "sync")["state"].(map[string]interface{})
	assert.Equal(t, false, state["started"])

	send(t, ctx, ca, `{"type":"start"}`)
	started := readUntil(t, ctx, ca, "turn_started")
	assert.Equal(t, "alice", started["player"])

	send(t, ctx, ca, `{"type":"start"}`)
	errMsg := readUntil(t, ctx, ca, "error")
	assert.Equal(t, "game_started", errMsg["code"])

	send(t, ctx, ca, `{"type":"sync"}`)
	state = readUntil(t, ctx, ca, "sync")["state"].(map[string]interface{})
	hand := state["players"].([]interface{})[0].(map[string]interface{})["hand"].([]interface{})
	require.Len(t, hand, 7)
	card, err := json.Marshal(hand[0])
	require.NoError(t, err)

	send(t, ctx, ca, fmt.Sprintf(`{"type":"play","cards":[%s]}`, card))
	applied := readUntil(t, ctx, ca, "move_applied")
	assert.Len(t, applied["cards"], 1, "played cards are public")
	next := readUntil(t, ctx, ca, "turn_started")
	assert.Equal(t, "bob", next["player"])

	send(t, ctx, ca, fmt.Sprintf(`{"type":"play","cards":[%s]}`, card))
	errMsg = readUntil(t, ctx, ca, "error")
	assert.Equal(t, "not_your_turn", errMsg["code"])
}

func TestStaleTurnVersionOverWebsocket(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceTok := guestToken(t, srv, "alice")
	_, created := createGame(t, srv, aliceTok, `{"players":["alice","bob"],"start":true}`)
	gameID := created["game_id"].(string)

	ca, _, err := dialGame(ctx, srv, gameID, aliceTok)
	require.NoError(t, err)
	defer ca.Close(websocket.StatusNormalClosure, "")
	readUntil(t, ctx, ca, "sync")

	send(t, ctx, ca, `{"type":"draw","turn_version":7}`)
	errMsg := readUntil(t, ctx, ca, "error")
	assert.Equal(t, "stale_move", errMsg["code"])

	send(t, ctx, ca, `{"type":"draw","turn_version":1}`)
	applied := readUntil(t, ctx, ca, "move_applied")
	assert.Equal(t, "alice", applied["player"])
	next := readUntil(t, ctx, ca, "turn_started")
	assert.Equal(t, "bob", next["player"])
}

func TestNewerConnectionReplacesOlder(t *testing.T) {
	gs, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceTok := guestToken(t, srv, "alice")
	_, created := createGame(t, srv, aliceTok, `{"players":["alice","bob"],"start":true}`)
	gameID := created["game_id"].(string)

	first, _, err := dialGame(ctx, srv, gameID, aliceTok)
	require.NoError(t, err)
	readUntil(t, ctx, first, "sync")

	second, _, err := dialGame(ctx, srv, gameID, aliceTok)
	require.NoError(t, err)
	defer second.Close(websocket.StatusNormalClosure, "")
	readUntil(t, ctx, second, "sync")

	_, _, err = first.Read(ctx)
	assert.Equal(t, ReplacedError, websocket.CloseStatus(err))

	hub, ok := gs.Hub(uuid.MustParse(gameID))
	require.True(t, ok)
	assert.Equal(t, 1, hub.Connected())
}

func TestWebsocketRejections(t *testing.T) {
	_, srv := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceTok := guestToken(t, srv, "alice")
	carolTok := guestToken(t, srv, "carol")
	_, created := createGame(t, srv, aliceTok, `{"players":["alice","bob"]}`)
	gameID := created["game_id"].(string)

	_, resp, err := dialGame(ctx, srv, gameID, carolTok)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = dialGame(ctx, srv, gameID, "garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dialGame(ctx, srv, uuid.NewString(), aliceTok)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateGameValidation(t *testing.T) {
	_, srv := newTestServer(t)
	aliceTok := guestToken(t, srv, "alice")

	resp, _ := createGame(t, srv, "", `{"players":["alice","bob"]}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = createGame(t, srv, aliceTok, `{"players":["bob","carol"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "creator must be seated")

	resp, _ = createGame(t, srv, aliceTok, `{"players":["alice"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "one player is not a game")

	resp, _ = createGame(t, srv, aliceTok, `{"players":["alice","bob"],"houseRules":{"turnTimerSec":0}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = createGame(t, srv, aliceTok, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGuestHandlerValidation(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/auth/guest", "application/json", strings.NewReader(`{"username":"  "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/auth/guest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRemoveGame(t *testing.T) {
	gs, _ := newTestServer(t)
	g, err := gs.CreateGame([]string{"alice", "bob"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, gs.GameStore.Len())

	gs.RemoveGame(g.ID)
	assert.Equal(t, 0, gs.GameStore.Len())
	_, ok := gs.Hub(g.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, g.SubmitMove("alice", game.Move{Kind: game.MoveDraw}), game.ErrGameNotActive)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "not_your_turn", errorCode(fmt.Errorf("wrapped: %w", game.ErrNotYourTurn)))
	assert.Equal(t, "illegal_move", errorCode(game.ErrIllegalMove))
	assert.Equal(t, "stale_move", errorCode(fmt.Errorf("%w: move for turn 1, current turn 3", game.ErrStaleMove)))
	assert.Equal(t, "empty_deck", errorCode(fmt.Errorf("draw 3: %w", game.ErrEmptyDeck)))
	assert.Equal(t, "internal", errorCode(io.EOF))
}

func TestExtractCookieToken(t *testing.T) {
	assert.Equal(t, "abc", extractCookieToken("theme=dark; auth_token=abc; lang=en", "auth_token"))
	assert.Equal(t, "abc", extractCookieToken("auth_token=abc", "auth_token"))
	assert.Empty(t, extractCookieToken("theme=dark", "auth_token"))
}
