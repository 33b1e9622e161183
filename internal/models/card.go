// internal/models/card.go
package models

// Color is the color of an Ichi card. Wild cards carry ColorWild.
type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorWild   Color = "wild"
)

// Rank is the face of an Ichi card: a digit or an action.
type Rank string

const (
	RankSkip         Rank = "skip"
	RankReverse      Rank = "reverse"
	RankDrawTwo      Rank = "draw2"
	RankWild         Rank = "wild"
	RankWildDrawFour Rank = "wild4"
)

// Card is an immutable value. Two cards with the same rank and color are equal.
type Card struct {
	Rank  Rank  `json:"rank"`
	Color Color `json:"color"`
}

// NewCard returns a card of the given rank and color.
func NewCard(rank Rank, color Color) Card {
	return Card{Rank: rank, Color: color}
}

func (c Card) String() string {
	if c.Color == ColorWild {
		return string(c.Rank)
	}
	return string(c.Color) + " " + string(c.Rank)
}
