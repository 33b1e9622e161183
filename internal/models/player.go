package models

// Hand is the ordered set of cards a player holds. Insertion order is kept.
type Hand struct {
	cards []Card
}

// Add appends card to the end of the hand.
func (h *Hand) Add(card Card) {
	h.cards = append(h.cards, card)
}

// Size returns the number of cards in the hand.
func (h *Hand) Size() int {
	return len(h.cards)
}

// Cards returns a copy of the hand in insertion order. Mutating the result
// does not affect the hand.
func (h *Hand) Cards() []Card {
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

// Contains reports whether every card in cards can be taken from the hand,
// counting duplicates.
func (h *Hand) Contains(cards []Card) bool {
	_, ok := h.without(cards)
	return ok
}

// RemoveAll takes cards out of the hand. If any card is missing the hand is
// left unchanged and false is returned.
func (h *Hand) RemoveAll(cards []Card) bool {
	rest, ok := h.without(cards)
	if !ok {
		return false
	}
	h.cards = rest
	return true
}

func (h *Hand) without(cards []Card) ([]Card, bool) {
	rest := make([]Card, len(h.cards))
	copy(rest, h.cards)
	for _, c := range cards {
		idx := -1
		for i, held := range rest {
			if held == c {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, false
		}
		rest = append(rest[:idx], rest[idx+1:]...)
	}
	return rest, true
}

// Player is a participant in one game session, keyed by username.
type Player struct {
	username string
	hand     Hand
}

// NewPlayer creates a player with an empty hand.
func NewPlayer(username string) *Player {
	return &Player{username: username}
}

// Username returns the player's session-unique name.
func (p *Player) Username() string {
	return p.username
}

// AddCard puts card at the end of the player's hand.
func (p *Player) AddCard(card Card) {
	p.hand.Add(card)
}

// HandSize returns how many cards the player holds.
func (p *Player) HandSize() int {
	return p.hand.Size()
}

// Cards returns a snapshot of the player's hand.
func (p *Player) Cards() []Card {
	return p.hand.Cards()
}

// Play removes cards from the player's hand, all or nothing.
func (p *Player) Play(cards []Card) bool {
	return p.hand.RemoveAll(cards)
}

// Holds reports whether the player has all of cards in hand.
func (p *Player) Holds(cards []Card) bool {
	return p.hand.Contains(cards)
}
