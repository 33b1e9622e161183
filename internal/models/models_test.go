package models

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeckDrawTakesTop(t *testing.T) {
	bottom := NewCard("1", ColorRed)
	top := NewCard(RankSkip, ColorBlue)
	d := NewDeck(bottom, top)

	c, err := d.Draw()
	require.NoError(t, err)
	assert.Equal(t, top, c)
	assert.Equal(t, 1, d.Len())
}

func TestDeckDrawEmpty(t *testing.T) {
	d := NewDeck()

	_, err := d.Draw()
	assert.ErrorIs(t, err, ErrEmptyDeck)
	assert.Equal(t, 0, d.Len(), "failed draw must not change the deck")
}

func TestDeckDrawNIsAllOrNothing(t *testing.T) {
	d := NewDeck(NewCard("1", ColorRed), NewCard("2", ColorRed))

	_, err := d.DrawN(3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyDeck))
	assert.Equal(t, 2, d.Len())

	cards, err := d.DrawN(2)
	require.NoError(t, err)
	assert.Equal(t, []Card{NewCard("2", ColorRed), NewCard("1", ColorRed)}, cards)
	assert.Equal(t, 0, d.Len())
}

func TestDeckReplenishKeepsTop(t *testing.T) {
	top := NewCard("9", ColorGreen)
	d := NewDeck(top)
	d.Replenish(NewCard("1", ColorRed), NewCard("2", ColorRed))

	assert.Equal(t, 3, d.Len())
	c, err := d.Draw()
	require.NoError(t, err)
	assert.Equal(t, top, c)
}

func TestNewIchiDeck(t *testing.T) {
	d := NewIchiDeck(rand.New(rand.NewSource(1)))
	require.Equal(t, 108, d.Len())

	counts := map[Card]int{}
	for d.Len() > 0 {
		c, err := d.Draw()
		require.NoError(t, err)
		counts[c]++
	}
	assert.Equal(t, 1, counts[NewCard("0", ColorRed)])
	assert.Equal(t, 2, counts[NewCard("7", ColorYellow)])
	assert.Equal(t, 4, counts[NewCard(RankWildDrawFour, ColorWild)])
}

func TestHandAddAppends(t *testing.T) {
	p := NewPlayer("alice")
	first := NewCard("3", ColorBlue)
	second := NewCard(RankReverse, ColorRed)

	p.AddCard(first)
	before := p.HandSize()
	p.AddCard(second)

	assert.Equal(t, before+1, p.HandSize())
	cards := p.Cards()
	assert.Equal(t, second, cards[len(cards)-1])
	assert.Equal(t, "alice", p.Username())
}

func TestHandCardsIsSnapshot(t *testing.T) {
	p := NewPlayer("bob")
	p.AddCard(NewCard("5", ColorGreen))

	view := p.Cards()
	view[0] = NewCard(RankWild, ColorWild)
	_ = append(view, NewCard("1", ColorRed))

	assert.Equal(t, []Card{NewCard("5", ColorGreen)}, p.Cards())
}

func TestPlayerPlay(t *testing.T) {
	p := NewPlayer("carol")
	red5 := NewCard("5", ColorRed)
	blue5 := NewCard("5", ColorBlue)
	p.AddCard(red5)
	p.AddCard(blue5)
	p.AddCard(red5)

	assert.False(t, p.Play([]Card{red5, red5, red5}), "only two red fives are held")
	assert.Equal(t, 3, p.HandSize())

	assert.True(t, p.Play([]Card{red5, red5}))
	assert.Equal(t, []Card{blue5}, p.Cards())
}

func TestPlayerHoldsCountsDuplicates(t *testing.T) {
	p := NewPlayer("dave")
	red5 := NewCard("5", ColorRed)
	skip := NewCard(RankSkip, ColorGreen)
	p.AddCard(red5)
	p.AddCard(skip)
	p.AddCard(red5)

	assert.True(t, p.Holds([]Card{red5, red5}))
	assert.True(t, p.Holds([]Card{skip, red5}))
	assert.True(t, p.Holds(nil))
	assert.False(t, p.Holds([]Card{red5, red5, red5}))
	assert.False(t, p.Holds([]Card{NewCard("5", ColorBlue)}))
	assert.Equal(t, []Card{red5, skip, red5}, p.Cards(), "checking never changes the hand")
}

func TestCardEquality(t *testing.T) {
	assert.Equal(t, NewCard("4", ColorYellow), Card{Rank: "4", Color: ColorYellow})
	assert.NotEqual(t, NewCard("4", ColorYellow), NewCard("4", ColorRed))
	assert.Equal(t, "yellow 4", NewCard("4", ColorYellow).String())
	assert.Equal(t, "wild", NewCard(RankWild, ColorWild).String())
}
