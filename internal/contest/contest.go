package contest

import "time"

// Status is the shared lifecycle state for duels and competitions.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
)

// Open reports whether the contest still occupies the "one open contest per
// pair" slot.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusActive
}

// Terminal reports whether the contest can never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeclined || s == StatusCancelled
}

// Valid reports whether s is one of the five known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a contest may move from one state to another.
// Pending fans out to active, declined or cancelled; active only ever
// completes; terminal states allow nothing.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusActive || to == StatusDeclined || to == StatusCancelled
	case StatusActive:
		return to == StatusCompleted
	}
	return false
}

// DurationDays holds the allowed duel lengths.
var DurationDays = []int{3, 7, 14, 30}

// CompetitionDurationDays is the fixed window for group competitions.
const CompetitionDurationDays = 7

func ValidDuration(days int) bool {
	for _, d := range DurationDays {
		if d == days {
			return true
		}
	}
	return false
}

// EndsAt computes the contest deadline from its activation time.
func EndsAt(startedAt time.Time, durationDays int) time.Time {
	return startedAt.AddDate(0, 0, durationDays)
}

// Expired reports whether the deadline has passed. The deadline itself counts
// as expired.
func Expired(endsAt, now time.Time) bool {
	return !now.Before(endsAt)
}

// WinnerIndex compares final scores and returns 1 or 2 for the winning side,
// or 0 on a tie. There is no tie-break beyond equal scores.
func WinnerIndex(score1, score2 int64) int {
	switch {
	case score1 > score2:
		return 1
	case score2 > score1:
		return 2
	}
	return 0
}
