package db_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukaiqi/educhat/internal/db"
	"github.com/lukaiqi/educhat/internal/models"
)

func newTestUser(username, email, role string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: "hashed",
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMemoryUsersUniqueness(t *testing.T) {
	repo := db.NewMemoryUsers()
	ctx := context.Background()

	if err := repo.CreateUser(ctx, newTestUser("alice", "alice@example.com", models.RoleStudent)); err != nil {
		t.Fatalf("create user: %v", err)
	}

	err := repo.CreateUser(ctx, newTestUser("Alice", "other@example.com", models.RoleStudent))
	if !errors.Is(err, db.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	err = repo.CreateUser(ctx, newTestUser("bob", "ALICE@example.com", models.RoleStudent))
	if !errors.Is(err, db.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestMemoryUsersLookupAndUpdate(t *testing.T) {
	repo := db.NewMemoryUsers()
	ctx := context.Background()

	user := newTestUser("alice", "alice@example.com", models.RoleStudent)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	byEmail, err := repo.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("lookup by email: %v", err)
	}
	if byEmail.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, byEmail.ID)
	}

	byEmail.Institution = "Night School"
	byEmail.PasswordHash = "tampered"
	if err := repo.UpdateUser(ctx, byEmail); err != nil {
		t.Fatalf("update user: %v", err)
	}

	stored, err := repo.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.Institution != "Night School" {
		t.Fatalf("expected institution update, got %q", stored.Institution)
	}
	if stored.PasswordHash != "hashed" {
		t.Fatalf("profile updates must not touch the password hash, got %q", stored.PasswordHash)
	}

	if _, err := repo.GetUser(ctx, "missing"); !errors.Is(err, db.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryUsersStats(t *testing.T) {
	repo := db.NewMemoryUsers()
	ctx := context.Background()

	teacher := newTestUser("teach", "teach@example.com", models.RoleTeacher)
	teacher.CreatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	teacher.UpdatedAt = teacher.CreatedAt
	if err := repo.CreateUser(ctx, teacher); err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	if err := repo.CreateUser(ctx, newTestUser("student", "student@example.com", models.RoleStudent)); err != nil {
		t.Fatalf("create student: %v", err)
	}

	now := time.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := now.Add(-7 * 24 * time.Hour)

	stats, err := repo.Stats(ctx, todayStart, weekStart)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 2 || stats.TeacherCount != 1 || stats.StudentCount != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.NewThisWeek != 1 {
		t.Fatalf("expected 1 new user this week, got %d", stats.NewThisWeek)
	}
}

// TestPostgresUsersRoundTrip exercises the real repository against a running
// Postgres. Set TEST_POSTGRES_DSN to enable it.
func TestPostgresUsersRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	pg := &db.Postgres{Pool: pool}
	if err := pg.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	repo := db.NewUsers(pg)
	user := newTestUser("it_"+uuid.NewString()[:8], uuid.NewString()[:8]+"@example.com", models.RoleStudent)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	defer func() {
		if err := repo.DeleteUser(ctx, user.ID); err != nil {
			t.Errorf("cleanup failed: %v", err)
		}
	}()

	stored, err := repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("lookup by email: %v", err)
	}
	if stored.Username != user.Username {
		t.Fatalf("expected username %q, got %q", user.Username, stored.Username)
	}

	dup := newTestUser(user.Username, "dup@example.com", models.RoleStudent)
	if err := repo.CreateUser(ctx, dup); !errors.Is(err, db.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}
