package models

import "time"

// Message roles within a conversation.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Message is a single turn inside a conversation. Messages are immutable once
// appended and are replayed to the model in creation order.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}
