package ranking

import (
	"testing"

	"github.com/google/uuid"
)

func TestRankOrdersByPointsDescending(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	ranked := Rank([]Standing{
		{UserID: a, Points: 10},
		{UserID: b, Points: 30},
		{UserID: c, Points: 20},
	})

	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked rows, got %d", len(ranked))
	}
	if ranked[0].UserID != b || ranked[1].UserID != c || ranked[2].UserID != a {
		t.Fatalf("unexpected order: %v", ranked)
	}
	for i, r := range ranked {
		if r.Rank != i+1 {
			t.Errorf("row %d has rank %d, want %d", i, r.Rank, i+1)
		}
	}
}

func TestRankTieBreakIsDeterministic(t *testing.T) {
	u1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	u2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	first := Rank([]Standing{{UserID: u2, Points: 50}, {UserID: u1, Points: 50}})
	second := Rank([]Standing{{UserID: u1, Points: 50}, {UserID: u2, Points: 50}})

	if first[0].UserID != u1 || second[0].UserID != u1 {
		t.Fatal("tie must be broken by lexicographic user id regardless of input order")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("ranking is not reproducible: %v vs %v", first, second)
		}
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	in := []Standing{{UserID: a, Points: 1}, {UserID: b, Points: 2}}
	Rank(in)
	if in[0].UserID != a || in[1].UserID != b {
		t.Fatal("Rank must not reorder its input slice")
	}
}

func TestRankEmpty(t *testing.T) {
	if got := Rank(nil); len(got) != 0 {
		t.Fatalf("Rank(nil) = %v, want empty", got)
	}
}

func TestMovement(t *testing.T) {
	if got := Movement(5, 2); got != 3 {
		t.Errorf("Movement(5, 2) = %d, want 3", got)
	}
	if got := Movement(2, 5); got != -3 {
		t.Errorf("Movement(2, 5) = %d, want -3", got)
	}
	if got := Movement(4, 4); got != 0 {
		t.Errorf("Movement(4, 4) = %d, want 0", got)
	}
}
