package game

import (
	"sync"

	"github.com/google/uuid"
)

// GameStore keeps the live games of this process in memory.
type GameStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]*GameServer
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[uuid.UUID]*GameServer),
	}
}

func (s *GameStore) AddGame(game *GameServer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[game.ID] = game
}

func (s *GameStore) GetGame(id uuid.UUID) (*GameServer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, exists := s.games[id]
	return g, exists
}

// DeleteGame removes the game and stops its timers.
func (s *GameStore) DeleteGame(id uuid.UUID) {
	s.mu.Lock()
	g, ok := s.games[id]
	delete(s.games, id)
	s.mu.Unlock()

	if ok {
		g.Close()
	}
}

// CloseAll stops every game, for shutdown.
func (s *GameStore) CloseAll() {
	s.mu.Lock()
	games := make([]*GameServer, 0, len(s.games))
	for id, g := range s.games {
		games = append(games, g)
		delete(s.games, id)
	}
	s.mu.Unlock()

	for _, g := range games {
		g.Close()
	}
}

// Len returns how many games are held.
func (s *GameStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}
