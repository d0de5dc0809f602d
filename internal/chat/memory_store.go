package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lukaiqi/educhat/internal/models"
)

// MemoryStore is an in-memory ConversationStore used by tests and
// credential-less development runs. Messages live inside their conversation,
// mirroring the document layout of the Mongo store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*models.Conversation)}
}

func (s *MemoryStore) Create(_ context.Context, ownerID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	now := time.Now().UTC()
	conversation := &models.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		Messages:  make([]models.Message, 0, 8),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.conversations[conversation.ID] = conversation
	s.mu.Unlock()

	return cloneConversation(conversation), nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]models.ConversationSummary, 0)
	for _, conversation := range s.conversations {
		if conversation.OwnerID == ownerID {
			summaries = append(summaries, conversation.Summary())
		}
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})

	return summaries, nil
}

func (s *MemoryStore) Get(_ context.Context, id, requesterID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation, err := s.lookupLocked(id, requesterID)
	if err != nil {
		return nil, err
	}

	return cloneConversation(conversation), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, id, role, content string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	message := models.Message{
		ID:             uuid.NewString(),
		ConversationID: id,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}

	conversation.Messages = append(conversation.Messages, message)
	conversation.UpdatedAt = now

	return &message, nil
}

func (s *MemoryStore) Rename(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}

	conversation.Title = title
	conversation.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id, requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupLocked(id, requesterID); err != nil {
		return err
	}

	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, id, requesterID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conversation, err := s.lookupLocked(id, requesterID)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, len(conversation.Messages))
	copy(messages, conversation.Messages)
	return messages, nil
}

func (s *MemoryStore) DeleteByOwner(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, conversation := range s.conversations {
		if conversation.OwnerID == ownerID {
			delete(s.conversations, id)
		}
	}
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.conversations)), nil
}

func (s *MemoryStore) lookupLocked(id, requesterID string) (*models.Conversation, error) {
	conversation, ok := s.conversations[id]
	if !ok || conversation.OwnerID != requesterID {
		return nil, ErrNotFound
	}
	return conversation, nil
}

func cloneConversation(conversation *models.Conversation) *models.Conversation {
	clone := *conversation
	clone.Messages = make([]models.Message, len(conversation.Messages))
	copy(clone.Messages, conversation.Messages)
	return &clone
}
