package activity

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the read-only view of a user's activity counters consumed by
// the points calculator and contest scoring. The profile data itself is
// owned elsewhere.
type Snapshot struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	WorkoutsCount int       `json:"workouts_count" db:"workouts_count"`
	Streak        int       `json:"streak" db:"streak"`
	GroupsCount   int       `json:"groups_count" db:"groups_count"`
	FriendsCount  int       `json:"friends_count" db:"friends_count"`
}

type LogWorkoutRequest struct {
	// Date defaults to today when zero.
	Date time.Time `json:"date"`
}

type LogWorkoutResponse struct {
	WorkoutsCount int `json:"workouts_count"`
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`
	DuelsUpdated  int `json:"duels_updated"`
	Contributions int `json:"contributions_recorded"`
}
