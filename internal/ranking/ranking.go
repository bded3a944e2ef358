package ranking

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
)

// Standing is one user's computed score before ranking.
type Standing struct {
	UserID uuid.UUID
	Points int64
}

// Ranked is a standing with its assigned rank.
type Ranked struct {
	Standing
	Rank int
}

// Rank orders standings by points descending and assigns ranks 1..N.
// Ties on points are broken by lexicographic user id so the ordering is
// reproducible across calls with identical inputs.
func Rank(standings []Standing) []Ranked {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)

	slices.SortFunc(sorted, func(a, b Standing) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID.String(), b.UserID.String())
	})

	ranked := make([]Ranked, len(sorted))
	for i, s := range sorted {
		ranked[i] = Ranked{Standing: s, Rank: i + 1}
	}
	return ranked
}

// Movement is the rank delta between two periods; positive means the user
// climbed the board.
func Movement(previousRank, currentRank int) int {
	return previousRank - currentRank
}
