package evaluator

import (
	"testing"

	"github.com/lox/homegame/internal/deck"
)

func eval(t *testing.T, cards string) HandResult {
	t.Helper()
	parsed, err := deck.ParseAll(cards)
	if err != nil {
		t.Fatalf("ParseAll(%q): %v", cards, err)
	}
	result, err := Evaluate(parsed)
	if err != nil {
		t.Fatalf("Evaluate(%q): %v", cards, err)
	}
	return result
}

func TestCategories(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cards string
		want  Category
	}{
		{"As Kd 9h 7c 2s", HighCard},
		{"As Ad 9h 7c 2s", Pair},
		{"As Ad 9h 9c 2s", TwoPair},
		{"As Ad Ah 7c 2s", ThreeOfAKind},
		{"9s 8d 7h 6c 5s", Straight},
		{"As Qs 9s 7s 2s", Flush},
		{"As Ad Ah 7c 7s", FullHouse},
		{"As Ad Ah Ac 2s", FourOfAKind},
		{"9s 8s 7s 6s 5s", StraightFlush},
		{"As Ks Qs Js Ts", RoyalFlush},
	}

	for _, tc := range cases {
		if got := eval(t, tc.cards).Category; got != tc.want {
			t.Errorf("Evaluate(%q).Category = %v, want %v", tc.cards, got, tc.want)
		}
	}
}

func TestBestFiveOfSeven(t *testing.T) {
	t.Parallel()

	// Hole cards make a flush only when combined with three board spades.
	result := eval(t, "As 2s Ks 9s 4s Ad Ac")
	if result.Category != Flush {
		t.Errorf("Category = %v, want %v", result.Category, Flush)
	}

	// Board pairs plus pocket pair form a full house, not two pair.
	result = eval(t, "Ah Ad Kc Ks 2d 7h As")
	if result.Category != FullHouse {
		t.Errorf("Category = %v, want %v", result.Category, FullHouse)
	}
}

func TestWheelStraight(t *testing.T) {
	t.Parallel()

	wheel := eval(t, "Ah 2d 3c 4s 5h")
	if wheel.Category != Straight {
		t.Fatalf("wheel Category = %v, want %v", wheel.Category, Straight)
	}
	if wheel.Tiebreaks[0] != 5 {
		t.Errorf("wheel high card = %d, want 5", wheel.Tiebreaks[0])
	}

	six := eval(t, "2h 3d 4c 5s 6h")
	if Compare(six, wheel) <= 0 {
		t.Error("six-high straight should beat the wheel")
	}
}

func TestAceHighStraight(t *testing.T) {
	t.Parallel()

	broadway := eval(t, "Ah Kd Qc Js Th")
	if broadway.Category != Straight {
		t.Fatalf("Category = %v, want %v", broadway.Category, Straight)
	}
	if broadway.Tiebreaks[0] != int(deck.Ace) {
		t.Errorf("high card = %d, want %d", broadway.Tiebreaks[0], int(deck.Ace))
	}
}

func TestKickersBreakTies(t *testing.T) {
	t.Parallel()

	high := eval(t, "As Ad Kh 7c 2s")
	low := eval(t, "Ah Ac Qh 7d 2c")
	if Compare(high, low) <= 0 {
		t.Error("ace pair with king kicker should beat queen kicker")
	}

	chopA := eval(t, "As Ad Kh 7c 2s")
	chopB := eval(t, "Ah Ac Kd 7d 2c")
	if Compare(chopA, chopB) != 0 {
		t.Error("identical ranks in different suits should chop")
	}
}

func TestTwoPairOrdering(t *testing.T) {
	t.Parallel()

	acesUp := eval(t, "As Ad 3h 3c Ks")
	kingsUp := eval(t, "Ks Kd Qh Qc As")
	if Compare(acesUp, kingsUp) <= 0 {
		t.Error("aces up should beat kings up")
	}
}

func TestTieGroups(t *testing.T) {
	t.Parallel()

	hands := map[string]HandResult{
		"alice": eval(t, "As Ad Kh 7c 2s"),
		"bob":   eval(t, "Ah Ac Kd 7d 2c"),
		"carol": eval(t, "Ks Kd Qh 7h 2h"),
		"dave":  eval(t, "9s 8d 7s 6c 5d"),
	}

	groups := TieGroups(hands)
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	if len(groups[0]) != 2 || groups[0][0] != "alice" || groups[0][1] != "bob" {
		t.Errorf("groups[0] = %v, want [alice bob]", groups[0])
	}
	if groups[1][0] != "dave" {
		t.Errorf("groups[1] = %v, want [dave]", groups[1])
	}
	if groups[2][0] != "carol" {
		t.Errorf("groups[2] = %v, want [carol]", groups[2])
	}
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	t.Parallel()

	cards, _ := deck.ParseAll("As Kd 9h 7c")
	if _, err := Evaluate(cards); err == nil {
		t.Error("Evaluate with 4 cards should fail")
	}

	cards, _ = deck.ParseAll("As Kd 9h 7c 2s 3s 4s 5s")
	if _, err := Evaluate(cards); err == nil {
		t.Error("Evaluate with 8 cards should fail")
	}
}

func TestStraightFlushBeatsQuads(t *testing.T) {
	t.Parallel()

	sf := eval(t, "9s 8s 7s 6s 5s")
	quads := eval(t, "As Ad Ah Ac Ks")
	if Compare(sf, quads) <= 0 {
		t.Error("straight flush should beat four of a kind")
	}
}
