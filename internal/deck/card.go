// Package deck provides playing cards and a dealable deck.
package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit.
type Suit int

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

// String returns the wire glyph for the suit ("c", "d", "h", "s").
func (s Suit) String() string {
	switch s {
	case Clubs:
		return "c"
	case Diamonds:
		return "d"
	case Hearts:
		return "h"
	case Spades:
		return "s"
	default:
		return "?"
	}
}

// Rank represents a card rank. Ace is high (14); the wheel straight is
// handled by the evaluator, not here.
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// String returns the wire glyph for the rank ("2".."9", "T", "J", "Q", "K", "A").
func (r Rank) String() string {
	switch {
	case r >= Two && r <= Nine:
		return string(rune('0' + int(r)))
	case r == Ten:
		return "T"
	case r == Jack:
		return "J"
	case r == Queen:
		return "Q"
	case r == King:
		return "K"
	case r == Ace:
		return "A"
	default:
		return "?"
	}
}

// Card is a value type identified by rank and suit.
type Card struct {
	Rank Rank
	Suit Suit
}

// String returns the two-character wire form, e.g. "As" or "Th".
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// MarshalText implements encoding.TextMarshaler so cards serialize to their
// wire form inside JSON payloads.
func (c Card) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Parse converts a two-character wire form back into a Card.
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("deck: invalid card %q", s)
	}

	var rank Rank
	switch r := s[0]; {
	case r >= '2' && r <= '9':
		rank = Rank(r - '0')
	case r == 'T':
		rank = Ten
	case r == 'J':
		rank = Jack
	case r == 'Q':
		rank = Queen
	case r == 'K':
		rank = King
	case r == 'A':
		rank = Ace
	default:
		return Card{}, fmt.Errorf("deck: invalid rank in %q", s)
	}

	var suit Suit
	switch s[1] {
	case 'c':
		suit = Clubs
	case 'd':
		suit = Diamonds
	case 'h':
		suit = Hearts
	case 's':
		suit = Spades
	default:
		return Card{}, fmt.Errorf("deck: invalid suit in %q", s)
	}

	return Card{Rank: rank, Suit: suit}, nil
}

// MustParse is Parse for compile-time-known card strings; it panics on error
// and exists mainly for tests.
func MustParse(s string) Card {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseAll parses a space-separated list of cards, e.g. "As Kh 2d".
func ParseAll(s string) ([]Card, error) {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := Parse(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Format renders cards in wire form separated by spaces.
func Format(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
