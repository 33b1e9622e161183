// internal/game/server.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/ichi/internal/cache"
	"github.com/jason-s-yu/ichi/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	minPlayers = 2
	maxPlayers = 10
)

// ActionPublisher ships action records to the historian.
type ActionPublisher interface {
	PublishGameAction(ctx context.Context, record cache.GameActionRecord) error
}

// GameServer owns one game session: turn order, the stock, the discard pile,
// the turn version and the watchdog for the current turn.
//
// StartTurn, SubmitMove and TimerExpire each run under a single mutex from
// start to finish, so the turn version and current player are never observed
// half-updated. The turn version grows by exactly one on every transition; a
// watchdog armed for an older version is stale and its expiry is ignored.
type GameServer struct {
	ID uuid.UUID

	HouseRules   HouseRules
	TurnDuration time.Duration

	// Collaborators. Set these before Start or the first StartTurn.
	Rules       RulesOracle
	Replenisher Replenisher
	Broadcaster Broadcaster
	Publisher   ActionPublisher
	OnGameEnd   OnGameEndFunc
	Logger      *logrus.Entry

	mu           sync.Mutex
	players      []*models.Player
	deck         *models.Deck
	discard      []models.Card
	currentIndex int
	turnVersion  int64
	deadline     time.Time
	watchdog     *TurnWatchdog
	actionIndex  int

	started  bool
	gameOver bool
	closed   bool
	winner   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewGameServer builds a game for the given usernames, in turn order. A nil
// deck gets a freshly shuffled Ichi deck.
func NewGameServer(deck *models.Deck, usernames ...string) (*GameServer, error) {
	if len(usernames) < minPlayers {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrNotEnoughPlayers, minPlayers, len(usernames))
	}
	if len(usernames) > maxPlayers {
		return nil, fmt.Errorf("too many players: max %d, got %d", maxPlayers, len(usernames))
	}

	seen := make(map[string]bool, len(usernames))
	players := make([]*models.Player, 0, len(usernames))
	for _, name := range usernames {
		if name == "" {
			return nil, errors.New("username must not be empty")
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, name)
		}
		seen[name] = true
		players = append(players, models.NewPlayer(name))
	}

	if deck == nil {
		deck = models.NewIchiDeck(nil)
	}

	id := uuid.New()
	rules := DefaultHouseRules()
	ctx, cancel := context.WithCancel(context.Background())
	return &GameServer{
		ID:           id,
		HouseRules:   rules,
		TurnDuration: rules.TurnDuration(),
		Rules:        AnyMove,
		Replenisher:  ReshuffleDiscard{},
		Logger:       logrus.NewEntry(logrus.StandardLogger()).WithField("game", id),
		players:      players,
		deck:         deck,
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}, nil
}

// ApplyHouseRules replaces the house rules and the turn duration derived from them.
func (g *GameServer) ApplyHouseRules(rules HouseRules) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.HouseRules = rules
	g.TurnDuration = rules.TurnDuration()
}

// Start deals the opening hands, turns one card onto the discard pile and
// begins the first player's turn.
func (g *GameServer) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.gameOver {
		return ErrGameNotActive
	}
	if g.started {
		return ErrGameStarted
	}

	handSize := g.HouseRules.InitialHandSize
	needed := handSize*len(g.players) + 1
	if g.deck.Len() < needed {
		return fmt.Errorf("%w: dealing needs %d cards, deck has %d", ErrEmptyDeck, needed, g.deck.Len())
	}
	for _, p := range g.players {
		cards, err := g.deck.DrawN(handSize)
		if err != nil {
			return err
		}
		for _, c := range cards {
			p.AddCard(c)
		}
	}
	first, err := g.deck.Draw()
	if err != nil {
		return err
	}
	g.discard = append(g.discard, first)

	g.Logger.WithFields(logrus.Fields{
		"players":  len(g.players),
		"handSize": handSize,
		"discard":  first.String(),
	}).Info("Game started")
	g.logAction("", "game_start", map[string]interface{}{
		"players":    g.usernamesLocked(),
		"handSize":   handSize,
		"topDiscard": first,
	})

	g.started = true
	g.startTurnLocked(0)
	return nil
}

// StartTurn begins playerID's turn, superseding any turn in progress. It is
// the entry point for an external driver; Start and every accepted move or
// forfeiture call the same logic internally.
func (g *GameServer) StartTurn(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.gameOver {
		return ErrGameNotActive
	}
	idx := g.indexOfLocked(playerID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	g.started = true
	g.startTurnLocked(idx)
	return nil
}

// SubmitMove applies move for playerID if it is their turn and the rules
// accept it, then hands the turn to the next player. On any error nothing
// changes.
func (g *GameServer) SubmitMove(playerID string, move Move) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.activeLocked() {
		return ErrGameNotActive
	}
	current := g.players[g.currentIndex]
	if current.Username() != playerID {
		if g.indexOfLocked(playerID) < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
		return fmt.Errorf("%w: it is %s's turn", ErrNotYourTurn, current.Username())
	}
	if move.TurnVersion != 0 && move.TurnVersion != g.turnVersion {
		return fmt.Errorf("%w: move for turn %d, current turn %d", ErrStaleMove, move.TurnVersion, g.turnVersion)
	}

	if g.Rules != nil {
		if err := g.Rules.CheckMove(g.viewLocked(current), move); err != nil {
			if errors.Is(err, ErrIllegalMove) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrIllegalMove, err)
		}
	}

	ev := GameEvent{Type: EventMoveApplied, Player: playerID}
	payload := map[string]interface{}{"kind": move.Kind}

	switch move.Kind {
	case MovePlay:
		if len(move.Cards) == 0 {
			return fmt.Errorf("%w: a play needs at least one card", ErrIllegalMove)
		}
		if !current.Holds(move.Cards) {
			return fmt.Errorf("%w: %s does not hold %v", ErrIllegalMove, playerID, move.Cards)
		}
		current.Play(move.Cards)
		g.discard = append(g.discard, move.Cards...)
		ev.Cards = append([]models.Card(nil), move.Cards...)
		payload["cards"] = move.Cards

	case MoveDraw:
		n := move.Count
		if n <= 0 {
			n = 1
		}
		cards, err := g.takeCardsLocked(n)
		if err != nil {
			return fmt.Errorf("draw %d: %w", n, err)
		}
		for _, c := range cards {
			current.AddCard(c)
		}
		// drawn cards stay private; only the count is public
		payload["count"] = n

	default:
		return fmt.Errorf("%w: unknown move kind %q", ErrIllegalMove, move.Kind)
	}

	ev.TurnVersion = g.turnVersion
	ev.Payload = map[string]any{"handSize": current.HandSize()}
	if n, ok := payload["count"]; ok {
		ev.Payload["count"] = n
	}
	g.fireEvent(ev)
	g.logAction(playerID, string(EventMoveApplied), payload)

	if move.Kind == MovePlay && current.HandSize() == 0 {
		g.endGameLocked(playerID)
		return nil
	}
	g.advanceLocked()
	return nil
}

// TimerExpire is called by a turn's watchdog when its deadline passes. If
// version is no longer the current turn version the call does nothing. It
// reports whether the current player was forfeited.
func (g *GameServer) TimerExpire(version int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.activeLocked() || version != g.turnVersion {
		g.Logger.WithFields(logrus.Fields{
			"timerTurn":   version,
			"currentTurn": g.turnVersion,
		}).Debug("Stale turn timer fired, ignoring")
		return false
	}

	current := g.players[g.currentIndex]
	penalty := g.drawPenaltyLocked(current)

	g.Logger.WithFields(logrus.Fields{
		"turn":    g.turnVersion,
		"player":  current.Username(),
		"penalty": len(penalty),
	}).Info("Player timed out, forfeiting turn")

	g.fireEvent(GameEvent{
		Type:        EventTurnForfeited,
		Player:      current.Username(),
		TurnVersion: g.turnVersion,
		Payload:     map[string]any{"penalty": len(penalty), "handSize": current.HandSize()},
	})
	g.logAction(current.Username(), string(EventTurnForfeited), map[string]interface{}{
		"penalty": len(penalty),
	})

	g.advanceLocked()
	return true
}

// Close stops every watchdog and waits for them to exit. The game rejects all
// further moves.
func (g *GameServer) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.cancel()
	g.mu.Unlock()

	g.wg.Wait()
	g.Logger.Debug("Game closed")
}

// TurnVersion returns the current turn version. Zero means no turn has started.
func (g *GameServer) TurnVersion() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turnVersion
}

// CurrentPlayer returns the username whose turn it is, or "" before the first turn.
func (g *GameServer) CurrentPlayer() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return ""
	}
	return g.players[g.currentIndex].Username()
}

// Deadline returns when the current turn expires.
func (g *GameServer) Deadline() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deadline
}

// Players returns the usernames in turn order.
func (g *GameServer) Players() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usernamesLocked()
}

// HasPlayer reports whether username is seated in this game.
func (g *GameServer) HasPlayer(username string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.indexOfLocked(username) >= 0
}

// GameOver reports whether the game has a winner, and who.
func (g *GameServer) GameOver() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gameOver, g.winner
}

// startTurnLocked makes idx the current player and arms the watchdog for the
// new turn version. Assumes lock is held.
func (g *GameServer) startTurnLocked(idx int) {
	g.currentIndex = idx
	g.turnVersion++
	g.deadline = g.now().Add(g.TurnDuration)

	if g.watchdog != nil && g.HouseRules.CancelStaleTimers {
		g.watchdog.Cancel()
	}
	g.watchdog = g.armWatchdogLocked(g.turnVersion, g.deadline)

	player := g.players[idx].Username()
	deadline := g.deadline
	g.Logger.WithFields(logrus.Fields{
		"turn":     g.turnVersion,
		"player":   player,
		"deadline": deadline,
	}).Debug("Turn started")

	g.fireEvent(GameEvent{
		Type:        EventTurnStarted,
		Player:      player,
		TurnVersion: g.turnVersion,
		Deadline:    &deadline,
	})
	g.fireEvent(GameEvent{
		Type:        EventStateChanged,
		TurnVersion: g.turnVersion,
	})
	g.logAction(player, string(EventTurnStarted), map[string]interface{}{
		"deadline": deadline.UnixMilli(),
	})
}

// armWatchdogLocked starts a watchdog goroutine tied to the game's lifetime.
// Assumes lock is held.
func (g *GameServer) armWatchdogLocked(version int64, deadline time.Time) *TurnWatchdog {
	w := NewTurnWatchdog(g.ctx, func(v int64) { g.TimerExpire(v) }, deadline, version)
	w.now = g.now
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		w.Run()
	}()
	return w
}

// advanceLocked passes the turn to the next seat. Assumes lock is held.
func (g *GameServer) advanceLocked() {
	g.startTurnLocked((g.currentIndex + 1) % len(g.players))
}

// takeCardsLocked draws n cards from the stock, refilling it from the discard
// pile first when it is short. Nothing changes if n cards cannot be found.
// Assumes lock is held.
func (g *GameServer) takeCardsLocked(n int) ([]models.Card, error) {
	if g.deck.Len() < n {
		if g.Replenisher == nil {
			return nil, fmt.Errorf("%w: want %d, have %d", ErrEmptyDeck, n, g.deck.Len())
		}
		restock, keep := g.Replenisher.Replenish(g.discard)
		if g.deck.Len()+len(restock) < n {
			return nil, fmt.Errorf("%w: want %d, have %d in stock and %d reusable", ErrEmptyDeck, n, g.deck.Len(), len(restock))
		}
		g.applyRestockLocked(restock, keep)
	}
	return g.deck.DrawN(n)
}

// applyRestockLocked moves restock into the stock and leaves keep as the
// discard pile. Assumes lock is held.
func (g *GameServer) applyRestockLocked(restock, keep []models.Card) {
	g.deck.Replenish(restock...)
	g.discard = keep

	g.Logger.WithField("stockSize", g.deck.Len()).Info("Stock empty, reshuffled discard pile")
	g.fireEvent(GameEvent{
		Type:        EventDeckReplenished,
		TurnVersion: g.turnVersion,
		Payload:     map[string]any{"stockSize": g.deck.Len()},
	})
	g.logAction("", string(EventDeckReplenished), map[string]interface{}{"stockSize": g.deck.Len()})
}

// drawPenaltyLocked gives a timed-out player their penalty cards. When the
// stock cannot cover the full penalty, even after one reshuffle of the
// discard pile, the player draws what is left. Assumes lock is held.
func (g *GameServer) drawPenaltyLocked(p *models.Player) []models.Card {
	want := g.HouseRules.PenaltyDrawCount
	if want <= 0 {
		return nil
	}
	if g.deck.Len() < want && g.Replenisher != nil {
		if restock, keep := g.Replenisher.Replenish(g.discard); len(restock) > 0 {
			g.applyRestockLocked(restock, keep)
		}
	}
	n := want
	if n > g.deck.Len() {
		n = g.deck.Len()
		g.Logger.WithField("player", p.Username()).Warnf("Penalty cut to %d card(s), stock exhausted", n)
	}
	if n == 0 {
		return nil
	}
	cards, err := g.deck.DrawN(n)
	if err != nil {
		g.Logger.WithError(err).Error("penalty draw failed")
		return nil
	}
	for _, c := range cards {
		p.AddCard(c)
	}
	return cards
}

// endGameLocked records the winner and stops the turn timer. Assumes lock is held.
func (g *GameServer) endGameLocked(winner string) {
	g.gameOver = true
	g.winner = winner
	if g.watchdog != nil {
		g.watchdog.Cancel()
	}

	g.Logger.WithFields(logrus.Fields{
		"turn":   g.turnVersion,
		"winner": winner,
	}).Info("Game over")
	g.fireEvent(GameEvent{
		Type:        EventGameEnd,
		Player:      winner,
		TurnVersion: g.turnVersion,
	})
	g.logAction(winner, string(EventGameEnd), map[string]interface{}{"winner": winner})

	if g.OnGameEnd != nil {
		g.OnGameEnd(g.ID, winner)
	}
}

func (g *GameServer) activeLocked() bool {
	return g.started && !g.gameOver && !g.closed
}

func (g *GameServer) indexOfLocked(username string) int {
	for i, p := range g.players {
		if p.Username() == username {
			return i
		}
	}
	return -1
}

func (g *GameServer) usernamesLocked() []string {
	names := make([]string, len(g.players))
	for i, p := range g.players {
		names[i] = p.Username()
	}
	return names
}

func (g *GameServer) viewLocked(p *models.Player) TurnView {
	return TurnView{
		Player:      p.Username(),
		Hand:        p.Cards(),
		TopDiscard:  g.topDiscardLocked(),
		DeckSize:    g.deck.Len(),
		TurnVersion: g.turnVersion,
	}
}

func (g *GameServer) topDiscardLocked() *models.Card {
	if len(g.discard) == 0 {
		return nil
	}
	top := g.discard[len(g.discard)-1]
	return &top
}

// fireEvent hands ev to the broadcaster. Assumes lock is held.
func (g *GameServer) fireEvent(ev GameEvent) {
	ev.GameID = g.ID
	if g.Broadcaster == nil {
		g.Logger.Debugf("No broadcaster, dropping %s event", ev.Type)
		return
	}
	g.Broadcaster.Broadcast(ev)
}

// logAction sends the action details to the historian via the publisher.
// Assumes lock is held.
func (g *GameServer) logAction(actor string, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if g.Publisher == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		TurnVersion:   g.turnVersion,
		Actor:         actor,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     g.now().UnixMilli(),
	}
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.Publisher.PublishGameAction(ctx, rec); err != nil {
			g.Logger.WithError(err).Warnf("Failed to publish action %d (%s)", rec.ActionIndex, rec.ActionType)
		}
	}(record)
}
