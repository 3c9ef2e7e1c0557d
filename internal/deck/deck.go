package deck

import (
	"fmt"
	rand "math/rand/v2"

	"github.com/lox/homegame/internal/randutil"
)

// Deck is an ordered sequence of the 52 distinct cards. Dealing pops from the
// front; Burn discards the front card without returning it.
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// New creates an unshuffled deck with a CSPRNG-seeded shuffle source.
func New() *Deck {
	return NewWithRand(randutil.NewCrypto())
}

// NewWithRand creates an unshuffled deck that shuffles with the provided
// source. Tests use a seeded source for reproducible deals.
func NewWithRand(rng *rand.Rand) *Deck {
	d := &Deck{rng: rng}
	d.Reset()
	return d
}

// FromCards rebuilds a deck from a previously dealt-down remainder, e.g. when
// restoring a table snapshot mid-hand. Shuffles use a fresh CSPRNG seed.
func FromCards(cards []Card) *Deck {
	return &Deck{
		cards: append([]Card(nil), cards...),
		rng:   randutil.NewCrypto(),
	}
}

// Cards returns a copy of the remaining cards in order.
func (d *Deck) Cards() []Card {
	return append([]Card(nil), d.cards...)
}

// Reset restores the full ordered 52 cards. Called at the start of every hand
// before shuffling.
func (d *Deck) Reset() {
	if d.cards == nil {
		d.cards = make([]Card, 0, 52)
	}
	d.cards = d.cards[:0]
	for suit := Clubs; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, Card{Rank: rank, Suit: suit})
		}
	}
}

// Shuffle randomizes the order of the remaining cards.
func (d *Deck) Shuffle() {
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the top card.
func (d *Deck) Deal() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, fmt.Errorf("deck: empty")
	}
	c := d.cards[0]
	d.cards = d.cards[1:]
	return c, nil
}

// DealN removes and returns the top n cards.
func (d *Deck) DealN(n int) ([]Card, error) {
	if n > len(d.cards) {
		return nil, fmt.Errorf("deck: cannot deal %d cards, %d remaining", n, len(d.cards))
	}
	out := make([]Card, n)
	copy(out, d.cards[:n])
	d.cards = d.cards[n:]
	return out, nil
}

// Burn discards the top card.
func (d *Deck) Burn() error {
	_, err := d.Deal()
	return err
}

// Remaining reports how many cards are left.
func (d *Deck) Remaining() int {
	return len(d.cards)
}
