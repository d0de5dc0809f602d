package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lukaiqi/educhat/internal/chat"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type combinedSendRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

func (h *Handler) handleListConversations(c *gin.Context) {
	user := currentUser(c)

	summaries, err := h.store.List(c.Request.Context(), user.ID)
	if err != nil {
		h.logServerError(c, "list conversations failed", err)
		writeError(c, http.StatusInternalServerError, "failed to fetch conversations", err)
		return
	}

	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	user := currentUser(c)
	conversation, err := h.store.Create(c.Request.Context(), user.ID, req.Title)
	if err != nil {
		h.logServerError(c, "create conversation failed", err)
		writeError(c, http.StatusInternalServerError, "failed to create conversation", err)
		return
	}

	c.JSON(http.StatusCreated, conversation.Summary())
}

func (h *Handler) handleListMessages(c *gin.Context) {
	user := currentUser(c)

	messages, err := h.store.ListMessages(c.Request.Context(), c.Param("id"), user.ID)
	if err != nil {
		h.writeConversationError(c, "fetch messages", err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

func (h *Handler) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	user := currentUser(c)
	result, err := h.pipeline.Send(c.Request.Context(), c.Param("id"), user.ID, req.Content)
	if err != nil {
		h.writeConversationError(c, "send message", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleSendToNewOrExisting runs a send, creating the conversation first when
// the caller does not name one.
func (h *Handler) handleSendToNewOrExisting(c *gin.Context) {
	var req combinedSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	user := currentUser(c)
	ctx := c.Request.Context()

	if req.ConversationID != "" {
		result, err := h.pipeline.Send(ctx, req.ConversationID, user.ID, req.Content)
		if err != nil {
			h.writeConversationError(c, "send message", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"conversationId":   req.ConversationID,
			"userMessage":      result.UserMessage,
			"assistantMessage": result.AssistantMessage,
		})
		return
	}

	conversation, result, err := h.pipeline.SendNew(ctx, user.ID, req.Content)
	if err != nil {
		h.writeConversationError(c, "send message", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"conversationId":   conversation.ID,
		"userMessage":      result.UserMessage,
		"assistantMessage": result.AssistantMessage,
	})
}

func (h *Handler) handleDeleteConversation(c *gin.Context) {
	user := currentUser(c)

	if err := h.store.Delete(c.Request.Context(), c.Param("id"), user.ID); err != nil {
		h.writeConversationError(c, "delete conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) writeConversationError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		writeError(c, http.StatusNotFound, "conversation not found", err)
	case errors.Is(err, chat.ErrEmptyContent), errors.Is(err, chat.ErrContentTooLong):
		writeError(c, http.StatusBadRequest, err.Error(), err)
	default:
		h.logServerError(c, action+" failed", err)
		writeError(c, http.StatusInternalServerError, "failed to "+action, err)
	}
}
