package leaderboard

import (
	"time"

	"github.com/google/uuid"
)

type Scope string

const (
	ScopeFriends Scope = "friends"
	ScopeGroups  Scope = "groups"
	ScopeGlobal  Scope = "global"
)

func (s Scope) Valid() bool {
	return s == ScopeFriends || s == ScopeGroups || s == ScopeGlobal
}

type Entry struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Username      string    `json:"username" db:"username"`
	ImageURL      *string   `json:"image_url" db:"image_url"`
	Points        int64     `json:"points"`
	Rank          int       `json:"rank"`
	WorkoutsCount int       `json:"workouts_count" db:"workouts_count"`
	Streak        int       `json:"streak" db:"streak"`
	GroupsCount   int       `json:"groups_count" db:"groups_count"`
	FriendsCount  int       `json:"friends_count" db:"friends_count"`
	// Movement is previous rank minus current rank; nil when there is no
	// previous-period snapshot to compare against.
	Movement *int `json:"movement,omitempty"`
}

type Leaderboard struct {
	Scope        Scope    `json:"scope"`
	PeriodKey    string   `json:"period_key"`
	Entries      []*Entry `json:"entries"`
	UserPosition *Entry   `json:"user_position"`
	TotalUsers   int      `json:"total_users"`
}

// Snapshot is the stored rank/points record for one user, scope and period,
// used only to compute rank movement between periods.
type Snapshot struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Scope     Scope     `json:"scope" db:"scope"`
	PeriodKey string    `json:"period_key" db:"period_key"`
	Rank      int       `json:"rank" db:"rank"`
	Points    int64     `json:"points" db:"points"`
	TakenAt   time.Time `json:"taken_at" db:"taken_at"`
}
