package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lukaiqi/educhat/internal/auth"
	"github.com/lukaiqi/educhat/internal/chat"
	"github.com/lukaiqi/educhat/internal/db"
	"github.com/lukaiqi/educhat/internal/models"
)

// UserDirectory is the slice of the account repository the HTTP layer needs
// beyond authentication: profile updates and admin management.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, id string) error
	Stats(ctx context.Context, todayStart, weekStart time.Time) (*db.UserStats, error)
}

type Handler struct {
	authService *auth.Service
	users       UserDirectory
	store       chat.ConversationStore
	pipeline    *chat.Pipeline
	logger      *zap.SugaredLogger
}

func NewHandler(authService *auth.Service, users UserDirectory, store chat.ConversationStore, pipeline *chat.Pipeline, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		authService: authService,
		users:       users,
		store:       store,
		pipeline:    pipeline,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.handleRegister)
	authGroup.POST("/login", h.handleLogin)
	authGroup.GET("/user", h.requireAuth, h.handleCurrentUser)
	authGroup.POST("/logout", h.requireAuth, h.handleLogout)

	conversations := apiGroup.Group("/conversations", h.requireAuth)
	conversations.GET("", h.handleListConversations)
	conversations.POST("", h.handleCreateConversation)
	conversations.GET("/:id/messages", h.handleListMessages)
	conversations.POST("/:id/messages", h.handleSendMessage)
	conversations.DELETE("/:id", h.handleDeleteConversation)

	apiGroup.POST("/messages", h.requireAuth, h.handleSendToNewOrExisting)

	apiGroup.PUT("/user/profile", h.requireAuth, h.handleUpdateProfile)

	admin := apiGroup.Group("/admin", h.requireAuth, h.requireAdmin)
	admin.GET("/users", h.handleAdminListUsers)
	admin.DELETE("/users/:userId", h.handleAdminDeleteUser)
	admin.GET("/stats", h.handleAdminStats)
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	Institution string `json:"institution"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), auth.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		Institution: req.Institution,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameRequired),
			errors.Is(err, auth.ErrEmailRequired),
			errors.Is(err, auth.ErrPasswordTooWeak),
			errors.Is(err, auth.ErrInvalidRole):
			writeError(c, http.StatusBadRequest, err.Error(), err)
		case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrEmailExists):
			writeError(c, http.StatusConflict, err.Error(), err)
		default:
			h.logServerError(c, "register failed", err)
			writeError(c, http.StatusInternalServerError, "failed to register user", err)
		}
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(result))
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, err.Error(), err)
			return
		}
		h.logServerError(c, "login failed", err)
		writeError(c, http.StatusInternalServerError, "failed to login", err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

func (h *Handler) handleCurrentUser(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, user.Sanitize())
}

func (h *Handler) handleLogout(c *gin.Context) {
	// Tokens are stateless; logout is a client-side discard.
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

type profileRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Institution  string `json:"institution"`
	ProfileImage string `json:"profileImage"`
}

func (h *Handler) handleUpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	user := currentUser(c)
	if req.Username != "" {
		user.Username = req.Username
	}
	if req.Email != "" {
		user.Email = req.Email
	}
	if req.Institution != "" {
		user.Institution = req.Institution
	}
	user.ProfileImage = req.ProfileImage

	if err := h.users.UpdateUser(c.Request.Context(), user); err != nil {
		switch {
		case errors.Is(err, db.ErrUsernameTaken), errors.Is(err, db.ErrEmailTaken):
			writeError(c, http.StatusConflict, "username or email already in use", err)
		case errors.Is(err, db.ErrUserNotFound):
			writeError(c, http.StatusNotFound, "user not found", err)
		default:
			h.logServerError(c, "profile update failed", err)
			writeError(c, http.StatusInternalServerError, "failed to update profile", err)
		}
		return
	}

	c.JSON(http.StatusOK, user.Sanitize())
}

func newAuthResponse(result *auth.AuthResult) gin.H {
	return gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
		"user":      result.User,
	}
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func (h *Handler) logServerError(c *gin.Context, message string, err error) {
	if h.logger != nil {
		h.logger.Errorw(message, "path", c.FullPath(), "error", err)
	}
}
