package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lukaiqi/educhat/internal/llm"
	"github.com/lukaiqi/educhat/internal/models"
)

const (
	// MaxContentLength bounds a single user message, matching the input
	// limit enforced in the web client.
	MaxContentLength = 2000

	maxTitleRunes = 50

	// SystemPrompt is the fixed instruction prefixed to every model call.
	SystemPrompt = "You are an educational AI assistant. Provide clear, helpful explanations suitable for students and teachers. Focus on learning and understanding."

	// FallbackReply is stored as the assistant turn whenever the provider
	// call fails, so a user message is never left without a reply.
	FallbackReply = "I apologize, but I'm having trouble connecting to the AI service right now. Please try again later."
)

var (
	ErrEmptyContent   = errors.New("chat: message content is empty")
	ErrContentTooLong = fmt.Errorf("chat: message content exceeds %d characters", MaxContentLength)
)

// SendResult carries the two turns persisted by a completed send.
type SendResult struct {
	UserMessage      models.Message `json:"userMessage"`
	AssistantMessage models.Message `json:"assistantMessage"`
}

// Pipeline runs the message-send flow: validate, append the user turn,
// replay the persisted history to the model, append the reply or the
// fallback, and derive the title on the first exchange. Sends on the same
// conversation are serialized by a per-conversation lock; sends on different
// conversations are independent.
type Pipeline struct {
	store        ConversationStore
	gateway      llm.Gateway
	modelTimeout time.Duration
	logger       *zap.SugaredLogger

	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	sync.Mutex
	refs int
}

func NewPipeline(store ConversationStore, gateway llm.Gateway, modelTimeout time.Duration, logger *zap.SugaredLogger) *Pipeline {
	if modelTimeout <= 0 {
		modelTimeout = 30 * time.Second
	}
	return &Pipeline{
		store:        store,
		gateway:      gateway,
		modelTimeout: modelTimeout,
		logger:       logger,
		locks:        make(map[string]*conversationLock),
	}
}

// Send appends a user turn to an existing conversation and completes the
// exchange. Nothing is persisted when validation or the ownership check
// fails.
func (p *Pipeline) Send(ctx context.Context, conversationID, requesterID, content string) (*SendResult, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}

	unlock := p.lockConversation(conversationID)
	defer unlock()

	if _, err := p.store.Get(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	return p.completeTurn(ctx, conversationID, requesterID, content)
}

// SendNew validates the content, creates a fresh conversation for the
// requester and runs the same exchange on it. It replaces the client-side
// create-then-send two-step, so callers never have to guess the new id.
func (p *Pipeline) SendNew(ctx context.Context, requesterID, content string) (*models.Conversation, *SendResult, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, nil, err
	}

	conversation, err := p.store.Create(ctx, requesterID, "")
	if err != nil {
		return nil, nil, err
	}

	unlock := p.lockConversation(conversation.ID)
	defer unlock()

	result, err := p.completeTurn(ctx, conversation.ID, requesterID, content)
	if err != nil {
		return nil, nil, err
	}

	return conversation, result, nil
}

func (p *Pipeline) completeTurn(ctx context.Context, conversationID, requesterID, content string) (*SendResult, error) {
	userMessage, err := p.store.AppendMessage(ctx, conversationID, models.MessageRoleUser, content)
	if err != nil {
		return nil, err
	}

	// The persisted history, not a running buffer, is what the model sees.
	// That keeps the prompt in lockstep with what the store holds,
	// including the turn just appended.
	history, err := p.store.ListMessages(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	countAfterUserTurn := len(history)

	turns := make([]llm.Turn, 0, len(history)+1)
	turns = append(turns, llm.Turn{Role: "system", Content: SystemPrompt})
	for _, message := range history {
		turns = append(turns, llm.Turn{Role: message.Role, Content: message.Content})
	}

	modelCtx, cancel := context.WithTimeout(ctx, p.modelTimeout)
	reply, completeErr := p.gateway.Complete(modelCtx, turns)
	cancel()

	assistantContent := reply
	if completeErr != nil {
		// Provider failures degrade the reply, never the request: the
		// user turn is already committed and must get an assistant turn.
		if p.logger != nil {
			p.logger.Warnw("model call failed, storing fallback reply",
				"conversation_id", conversationID,
				"error", completeErr,
			)
		}
		assistantContent = FallbackReply
	}

	assistantMessage, err := p.store.AppendMessage(ctx, conversationID, models.MessageRoleAssistant, assistantContent)
	if err != nil {
		return nil, err
	}

	// First exchange: the conversation held exactly one message right after
	// the user append, so derive the title from that message. The count
	// guard, not a flag, keeps this to a single occurrence per
	// conversation; concurrent first sends settle by last write wins.
	if countAfterUserTurn == 1 {
		if err := p.store.Rename(ctx, conversationID, deriveTitle(content)); err != nil {
			return nil, err
		}
	}

	return &SendResult{
		UserMessage:      *userMessage,
		AssistantMessage: *assistantMessage,
	}, nil
}

func (p *Pipeline) lockConversation(id string) func() {
	p.mu.Lock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &conversationLock{}
		p.locks[id] = lock
	}
	lock.refs++
	p.mu.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		p.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

func deriveTitle(content string) string {
	if utf8.RuneCountInString(content) <= maxTitleRunes {
		return content
	}

	runes := []rune(content)
	return string(runes[:maxTitleRunes]) + "..."
}
