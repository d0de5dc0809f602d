package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lukaiqi/educhat/internal/auth"
	"github.com/lukaiqi/educhat/internal/models"
)

const contextUserKey = "currentUser"

// requireAuth resolves the bearer token to a user and attaches it to the
// request context. Every downstream handler receives an explicit requester
// identity; nothing reads ambient global state.
func (h *Handler) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		writeError(c, http.StatusUnauthorized, "authorization required", auth.ErrInvalidToken)
		c.Abort()
		return
	}

	user, err := h.authService.Authenticate(c.Request.Context(), strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(c, http.StatusUnauthorized, "invalid or expired token", err)
		} else {
			h.logServerError(c, "authentication failed", err)
			writeError(c, http.StatusInternalServerError, "failed to authenticate", err)
		}
		c.Abort()
		return
	}

	c.Set(contextUserKey, user)
	c.Next()
}

func (h *Handler) requireAdmin(c *gin.Context) {
	user := currentUser(c)
	if user == nil || !user.IsAdmin {
		writeError(c, http.StatusForbidden, "admin access required", errors.New("api: admin access required"))
		c.Abort()
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) *models.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}
