package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"fitFeudAPI/internal/events"
)

// setupTestDB connects to the test database or skips the test when no
// database is configured. Fixtures are tagged with unique ids so parallel
// runs do not collide.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set, skipping database test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

func newTestBus(t *testing.T) *events.Bus {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return bus
}

func createTestUser(t *testing.T, db *pgxpool.Pool, name string) (uuid.UUID, string) {
	t.Helper()

	id := uuid.New()
	clerkID := fmt.Sprintf("test_clerk_%s", id)
	username := fmt.Sprintf("%s_%s", name, id.String()[:8])

	_, err := db.Exec(context.Background(), `
		INSERT INTO users (id, clerk_id, username, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		id, clerkID, username, username+"@example.com")
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id, clerkID
}

func createTestGroup(t *testing.T, db *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(context.Background(), `
		INSERT INTO groups (id, name, created_at)
		VALUES ($1, $2, NOW())`,
		id, fmt.Sprintf("%s_%s", name, id.String()[:8]))
	if err != nil {
		t.Fatalf("Failed to create test group: %v", err)
	}

	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM matchmaking_queue WHERE group_id = $1`, id)
		db.Exec(context.Background(), `DELETE FROM competition_contributions WHERE group_id = $1`, id)
		db.Exec(context.Background(), `DELETE FROM competitions WHERE group1_id = $1 OR group2_id = $1`, id)
		db.Exec(context.Background(), `DELETE FROM groups WHERE id = $1`, id)
	})
	return id
}

func addGroupMember(t *testing.T, db *pgxpool.Pool, groupID, userID uuid.UUID, role string) {
	t.Helper()

	_, err := db.Exec(context.Background(), `
		INSERT INTO group_members (group_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, NOW())`,
		groupID, userID, role)
	if err != nil {
		t.Fatalf("Failed to add group member: %v", err)
	}

	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	})
}

// forceExpired rewinds a contest deadline so finalization paths can run
// without waiting out the duration.
func forceExpired(t *testing.T, db *pgxpool.Pool, table string, id uuid.UUID) {
	t.Helper()

	tag, err := db.Exec(context.Background(),
		fmt.Sprintf(`UPDATE %s SET ends_at = NOW() - INTERVAL '1 hour' WHERE id = $1`, table), id)
	if err != nil {
		t.Fatalf("Failed to expire %s row: %v", table, err)
	}
	if tag.RowsAffected() != 1 {
		t.Fatalf("Expected to expire 1 %s row, got %d", table, tag.RowsAffected())
	}
}

func logWorkoutsOnDays(t *testing.T, db *pgxpool.Pool, svc *ActivityService, userID uuid.UUID, days ...int) {
	t.Helper()

	for _, offset := range days {
		date := time.Now().AddDate(0, 0, -offset)
		if _, err := svc.LogWorkoutForUser(context.Background(), userID, date); err != nil {
			t.Fatalf("Failed to log workout %d days back: %v", offset, err)
		}
	}
	t.Cleanup(func() {
		db.Exec(context.Background(), `DELETE FROM workouts WHERE user_id = $1`, userID)
		db.Exec(context.Background(), `DELETE FROM streaks WHERE user_id = $1`, userID)
	})
}
