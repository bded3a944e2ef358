package points

// Weights for the global points formula. They are exported so the API can
// serve them to the "how points work" explainer screen.
const (
	WorkoutWeight = 3
	StreakWeight  = 5
	GroupWeight   = 2
	FriendWeight  = 1
)

// Ceiling caps every term and the final sum. Inputs large enough to reach it
// saturate instead of wrapping around.
const Ceiling int64 = 1_000_000_000_000

// Formula mirrors the weight constants for JSON display.
type Formula struct {
	WorkoutWeight int `json:"workout_weight"`
	StreakWeight  int `json:"streak_weight"`
	GroupWeight   int `json:"group_weight"`
	FriendWeight  int `json:"friend_weight"`
}

func Constants() Formula {
	return Formula{
		WorkoutWeight: WorkoutWeight,
		StreakWeight:  StreakWeight,
		GroupWeight:   GroupWeight,
		FriendWeight:  FriendWeight,
	}
}

// Calculate maps a user's activity counters to their score. Negative inputs
// are treated as zero so the function is total.
func Calculate(workoutsCount, streak, groupsCount, friendsCount int) int64 {
	total := term(workoutsCount, WorkoutWeight)
	total = saturatingAdd(total, term(streak, StreakWeight))
	total = saturatingAdd(total, term(groupsCount, GroupWeight))
	total = saturatingAdd(total, term(friendsCount, FriendWeight))
	return total
}

func term(count, weight int) int64 {
	if count < 0 {
		count = 0
	}
	v := int64(count) * int64(weight)
	if v < 0 || v > Ceiling {
		return Ceiling
	}
	return v
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	if sum < 0 || sum > Ceiling {
		return Ceiling
	}
	return sum
}
