// internal/models/deck.go
package models

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
)

// ErrEmptyDeck is returned when a draw asks for more cards than the deck holds.
var ErrEmptyDeck = errors.New("deck is empty")

// Deck is an ordered stack of cards. The top of the deck is the end of the slice.
// A Deck is not safe for concurrent use; the game server owning it serializes access.
type Deck struct {
	cards []Card
}

// NewDeck builds a deck from the given cards. The last card is the top.
func NewDeck(cards ...Card) *Deck {
	d := &Deck{cards: make([]Card, len(cards))}
	copy(d.cards, cards)
	return d
}

// NewIchiDeck builds the 108 card Ichi deck and shuffles it with r.
// A nil r uses the package-level source.
func NewIchiDeck(r *rand.Rand) *Deck {
	colors := []Color{ColorRed, ColorYellow, ColorGreen, ColorBlue}
	var cards []Card
	for _, color := range colors {
		cards = append(cards, NewCard("0", color))
		for i := 0; i < 2; i++ {
			for n := 1; n <= 9; n++ {
				cards = append(cards, NewCard(Rank(strconv.Itoa(n)), color))
			}
			cards = append(cards,
				NewCard(RankSkip, color),
				NewCard(RankReverse, color),
				NewCard(RankDrawTwo, color),
			)
		}
	}
	for i := 0; i < 4; i++ {
		cards = append(cards, NewCard(RankWild, ColorWild), NewCard(RankWildDrawFour, ColorWild))
	}

	d := &Deck{cards: cards}
	d.Shuffle(r)
	return d
}

// Shuffle reorders the deck in place.
func (d *Deck) Shuffle(r *rand.Rand) {
	swap := func(i, j int) { d.cards[i], d.cards[j] = d.cards[j], d.cards[i] }
	if r == nil {
		rand.Shuffle(len(d.cards), swap)
		return
	}
	r.Shuffle(len(d.cards), swap)
}

// Len returns the number of cards left in the deck.
func (d *Deck) Len() int {
	return len(d.cards)
}

// Draw removes and returns the top card. On an empty deck it returns
// ErrEmptyDeck and leaves the deck untouched.
func (d *Deck) Draw() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrEmptyDeck
	}
	top := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return top, nil
}

// DrawN draws n cards, top first. Either all n cards are drawn or none are.
func (d *Deck) DrawN(n int) ([]Card, error) {
	if n < 0 {
		return nil, fmt.Errorf("cannot draw %d cards", n)
	}
	if n > len(d.cards) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrEmptyDeck, n, len(d.cards))
	}
	drawn := make([]Card, 0, n)
	for i := 0; i < n; i++ {
		drawn = append(drawn, d.cards[len(d.cards)-1-i])
	}
	d.cards = d.cards[:len(d.cards)-n]
	return drawn, nil
}

// Replenish slides cards underneath the current stock so existing cards keep
// their place at the top.
func (d *Deck) Replenish(cards ...Card) {
	if len(cards) == 0 {
		return
	}
	merged := make([]Card, 0, len(cards)+len(d.cards))
	merged = append(merged, cards...)
	merged = append(merged, d.cards...)
	d.cards = merged
}
