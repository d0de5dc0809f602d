package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lukaiqi/educhat/internal/db"
	"github.com/lukaiqi/educhat/internal/models"
)

func (h *Handler) handleAdminListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.logServerError(c, "admin list users failed", err)
		writeError(c, http.StatusInternalServerError, "failed to fetch users", err)
		return
	}

	sanitized := make([]models.User, 0, len(users))
	for _, user := range users {
		sanitized = append(sanitized, user.Sanitize())
	}

	c.JSON(http.StatusOK, sanitized)
}

func (h *Handler) handleAdminDeleteUser(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")

	if err := h.users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			writeError(c, http.StatusNotFound, "user not found", err)
			return
		}
		h.logServerError(c, "admin delete user failed", err)
		writeError(c, http.StatusInternalServerError, "failed to delete user", err)
		return
	}

	// The account is gone; its conversations must not linger.
	if err := h.store.DeleteByOwner(ctx, userID); err != nil {
		h.logServerError(c, "cascade delete conversations failed", err)
		writeError(c, http.StatusInternalServerError, "failed to delete user's conversations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (h *Handler) handleAdminStats(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := now.Add(-7 * 24 * time.Hour)

	stats, err := h.users.Stats(ctx, todayStart, weekStart)
	if err != nil {
		h.logServerError(c, "admin stats failed", err)
		writeError(c, http.StatusInternalServerError, "failed to fetch stats", err)
		return
	}

	totalChats, err := h.store.Count(ctx)
	if err != nil {
		h.logServerError(c, "admin stats failed", err)
		writeError(c, http.StatusInternalServerError, "failed to fetch stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalUsers":   stats.TotalUsers,
		"activeToday":  stats.ActiveToday,
		"newThisWeek":  stats.NewThisWeek,
		"totalChats":   totalChats,
		"teacherCount": stats.TeacherCount,
		"studentCount": stats.StudentCount,
	})
}
