package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukaiqi/educhat/internal/models"
)

var (
	ErrUserNotFound  = errors.New("db: user not found")
	ErrUsernameTaken = errors.New("db: username already taken")
	ErrEmailTaken    = errors.New("db: email already registered")
)

const userColumns = "id, username, email, password_hash, role, institution, profile_image, is_admin, created_at, updated_at"

// Users is the Postgres-backed account repository.
type Users struct {
	pool *pgxpool.Pool
}

func NewUsers(pg *Postgres) *Users {
	return &Users{pool: pg.Pool}
}

func (r *Users) CreateUser(ctx context.Context, user *models.User) error {
	query := "INSERT INTO users (" + userColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"
	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.Role, user.Institution, user.ProfileImage, user.IsAdmin,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert user: %w", mapUniqueViolation(err))
	}
	return nil
}

func (r *Users) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.queryOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

func (r *Users) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.queryOne(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(email) = LOWER($1)", email)
}

func (r *Users) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.queryOne(ctx, "SELECT "+userColumns+" FROM users WHERE LOWER(username) = LOWER($1)", username)
}

func (r *Users) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	query := `UPDATE users
		SET username = $2, email = $3, role = $4, institution = $5, profile_image = $6, updated_at = $7
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.Role, user.Institution, user.ProfileImage, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update user: %w", mapUniqueViolation(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchUser bumps updated_at, recording account activity for the admin
// active-today statistic.
func (r *Users) TouchUser(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: touch user: %w", err)
	}
	return nil
}

func (r *Users) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list users: %w", err)
	}

	return users, nil
}

func (r *Users) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UserStats aggregates the account-side numbers for the admin dashboard.
type UserStats struct {
	TotalUsers   int64
	ActiveToday  int64
	NewThisWeek  int64
	TeacherCount int64
	StudentCount int64
}

func (r *Users) Stats(ctx context.Context, todayStart, weekStart time.Time) (*UserStats, error) {
	stats := &UserStats{}
	query := `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE updated_at >= $1),
		COUNT(*) FILTER (WHERE created_at >= $2),
		COUNT(*) FILTER (WHERE role = 'teacher'),
		COUNT(*) FILTER (WHERE role = 'student')
	FROM users`
	err := r.pool.QueryRow(ctx, query, todayStart, weekStart).Scan(
		&stats.TotalUsers, &stats.ActiveToday, &stats.NewThisWeek,
		&stats.TeacherCount, &stats.StudentCount,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: user stats: %w", err)
	}
	return stats, nil
}

func (r *Users) queryOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("postgres: query user: %w", err)
	}
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Role, &user.Institution, &user.ProfileImage, &user.IsAdmin,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return ErrUsernameTaken
		case "users_email_key":
			return ErrEmailTaken
		}
	}
	return err
}
