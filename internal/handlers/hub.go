// internal/handlers/hub.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/ichi/internal/game"
	"github.com/sirupsen/logrus"
)

const writeTimeout = 3 * time.Second

// Snapshotter produces the per-player sync payload.
type Snapshotter interface {
	Snapshot(forUser string) game.GameState
}

// outbound is one queued write. An empty to means everyone.
type outbound struct {
	to    string
	data  []byte
	event *game.GameEvent
}

// Hub fans one game's events out to its websocket connections. Broadcast only
// appends to a queue, so it is safe to call with the game lock held; a single
// pump goroutine writes everything in the order it was queued.
type Hub struct {
	gameID uuid.UUID
	logger *logrus.Entry

	mu     sync.Mutex
	game   Snapshotter
	conns  map[string]*websocket.Conn
	queue  []outbound
	closed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub starts the pump for gameID.
func NewHub(gameID uuid.UUID, logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Hub{
		gameID: gameID,
		logger: logger.WithField("game", gameID),
		conns:  make(map[string]*websocket.Conn),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.pump()
	return h
}

// Attach sets the game used for private hand refreshes.
func (h *Hub) Attach(g Snapshotter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.game = g
}

// Broadcast queues ev for every connected player.
func (h *Hub) Broadcast(ev game.GameEvent) {
	h.enqueue(outbound{data: game.EventToBytes(ev), event: &ev})
}

// Send queues msg for one player only.
func (h *Hub) Send(username string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal private message")
		return
	}
	h.enqueue(outbound{to: username, data: data})
}

// SendSync queues a sync snapshot for one player.
func (h *Hub) SendSync(username string, state game.GameState) {
	h.enqueue(outbound{to: username, data: syncMessage(state)})
}

func (h *Hub) enqueue(o outbound) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, o)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Register binds conn to username. An older connection for the same seat is closed.
func (h *Hub) Register(username string, conn *websocket.Conn) {
	h.mu.Lock()
	old := h.conns[username]
	h.conns[username] = conn
	h.mu.Unlock()

	if old != nil && old != conn {
		old.Close(ReplacedError, "replaced by a newer connection")
	}
}

// Unregister drops conn if it is still the live connection for username.
func (h *Hub) Unregister(username string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[username] == conn {
		delete(h.conns, username)
	}
}

// Connected reports how many players have a live connection.
func (h *Hub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close stops the pump after it drains what is queued, then closes every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*websocket.Conn)
	h.mu.Unlock()
	for _, c := range conns {
		c.Close(websocket.StatusNormalClosure, "game closed")
	}
}

func (h *Hub) pump() {
	defer h.wg.Done()
	for {
		select {
		case <-h.wake:
			h.drain()
		case <-h.done:
			h.drain()
			return
		}
	}
}

func (h *Hub) drain() {
	for {
		h.mu.Lock()
		batch := h.queue
		h.queue = nil
		h.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, o := range batch {
			h.deliver(o)
		}
	}
}

func (h *Hub) deliver(o outbound) {
	if o.to != "" {
		h.write(o.to, o.data)
		return
	}

	h.mu.Lock()
	names := make([]string, 0, len(h.conns))
	for name := range h.conns {
		names = append(names, name)
	}
	g := h.game
	h.mu.Unlock()

	for _, name := range names {
		h.write(name, o.data)
	}

	// the acting player's hand changed; push them a private refresh
	if o.event != nil && g != nil && o.event.Player != "" {
		switch o.event.Type {
		case game.EventMoveApplied, game.EventTurnForfeited:
			h.write(o.event.Player, syncMessage(g.Snapshot(o.event.Player)))
		}
	}
}

func (h *Hub) write(username string, data []byte) {
	h.mu.Lock()
	conn := h.conns[username]
	h.mu.Unlock()
	if conn == nil || data == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		h.logger.WithError(err).WithField("player", username).Warn("Failed to write message")
	}
}

// syncMessage wraps a snapshot in the sync envelope.
func syncMessage(state game.GameState) []byte {
	data, err := json.Marshal(map[string]interface{}{
		"type":  "sync",
		"state": state,
	})
	if err != nil {
		logrus.WithError(err).Error("failed to marshal sync state")
		return nil
	}
	return data
}
