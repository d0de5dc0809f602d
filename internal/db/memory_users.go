package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lukaiqi/educhat/internal/models"
)

// MemoryUsers is an in-memory account repository with the same contract as
// Users. It backs unit tests and credential-less development runs.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]*models.User)}
}

func (r *MemoryUsers) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return ErrUsernameTaken
		}
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrEmailTaken
		}
	}

	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *MemoryUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if strings.EqualFold(user.Username, username) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *MemoryUsers) UpdateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}

	user.UpdatedAt = time.Now().UTC()
	clone := *user
	clone.PasswordHash = existing.PasswordHash
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryUsers) TouchUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[id]; ok {
		user.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *MemoryUsers) ListUsers(_ context.Context) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]models.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (r *MemoryUsers) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUsers) Stats(_ context.Context, todayStart, weekStart time.Time) (*UserStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &UserStats{}
	for _, user := range r.users {
		stats.TotalUsers++
		if !user.UpdatedAt.Before(todayStart) {
			stats.ActiveToday++
		}
		if !user.CreatedAt.Before(weekStart) {
			stats.NewThisWeek++
		}
		switch user.Role {
		case models.RoleTeacher:
			stats.TeacherCount++
		case models.RoleStudent:
			stats.StudentCount++
		}
	}
	return stats, nil
}
