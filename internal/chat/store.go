package chat

import (
	"context"
	"errors"

	"github.com/lukaiqi/educhat/internal/models"
)

// DefaultTitle is the placeholder assigned until the first exchange derives a
// real title.
const DefaultTitle = "New Chat"

var (
	// ErrNotFound covers both a missing conversation and one owned by a
	// different user, so the API never leaks whether someone else's
	// conversation exists.
	ErrNotFound = errors.New("chat: conversation not found")
)

// ConversationStore persists conversations and their ordered message lists.
// Operations that take a requesterID enforce ownership as part of the
// contract.
type ConversationStore interface {
	// Create provisions an empty conversation. A blank title falls back to
	// DefaultTitle.
	Create(ctx context.Context, ownerID, title string) (*models.Conversation, error)

	// List returns the requester's conversation summaries ordered by
	// updatedAt descending, without message bodies.
	List(ctx context.Context, ownerID string) ([]models.ConversationSummary, error)

	// Get returns the full conversation, or ErrNotFound when it is missing
	// or owned by someone else.
	Get(ctx context.Context, id, requesterID string) (*models.Conversation, error)

	// AppendMessage appends a turn and bumps the conversation's updatedAt in
	// the same logical write.
	AppendMessage(ctx context.Context, id, role, content string) (*models.Message, error)

	// Rename sets the title and bumps updatedAt. Renaming to the current
	// title is a no-op; a missing conversation is ErrNotFound.
	Rename(ctx context.Context, id, title string) error

	// Delete removes the conversation and every contained message.
	Delete(ctx context.Context, id, requesterID string) error

	// ListMessages returns the canonical replay order: createdAt ascending.
	ListMessages(ctx context.Context, id, requesterID string) ([]models.Message, error)

	// DeleteByOwner removes all conversations owned by ownerID. Used when an
	// account is deleted.
	DeleteByOwner(ctx context.Context, ownerID string) error

	// Count reports the total number of conversations across all owners.
	Count(ctx context.Context) (int64, error)
}
