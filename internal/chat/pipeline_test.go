package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lukaiqi/educhat/internal/chat"
	"github.com/lukaiqi/educhat/internal/llm"
	"github.com/lukaiqi/educhat/internal/models"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls [][]llm.Turn
	reply string
	err   error
}

func (g *fakeGateway) Complete(_ context.Context, history []llm.Turn) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	captured := make([]llm.Turn, len(history))
	copy(captured, history)
	g.calls = append(g.calls, captured)

	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *fakeGateway) lastCall(t *testing.T) []llm.Turn {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		t.Fatalf("expected at least one gateway call")
	}
	return g.calls[len(g.calls)-1]
}

func newTestPipeline(gateway llm.Gateway) (*chat.Pipeline, *chat.MemoryStore) {
	store := chat.NewMemoryStore()
	return chat.NewPipeline(store, gateway, time.Second, nil), store
}

func mustCreate(t *testing.T, store *chat.MemoryStore, ownerID string) *models.Conversation {
	t.Helper()
	conversation, err := store.Create(context.Background(), ownerID, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conversation
}

func TestSendAppendsAlternatingTurns(t *testing.T) {
	gateway := &fakeGateway{reply: "sure, here is an explanation"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")

	inputs := []string{"what is gravity?", "and friction?", "thanks, one more: inertia?"}
	for _, input := range inputs {
		result, err := pipeline.Send(ctx, conversation.ID, "owner-1", input)
		if err != nil {
			t.Fatalf("send returned error: %v", err)
		}
		if result.UserMessage.Content != input {
			t.Fatalf("expected user message %q, got %q", input, result.UserMessage.Content)
		}
		if result.AssistantMessage.Content != gateway.reply {
			t.Fatalf("expected assistant reply %q, got %q", gateway.reply, result.AssistantMessage.Content)
		}
	}

	messages, err := store.ListMessages(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2*len(inputs) {
		t.Fatalf("expected %d messages, got %d", 2*len(inputs), len(messages))
	}
	for i, message := range messages {
		wantRole := models.MessageRoleUser
		if i%2 == 1 {
			wantRole = models.MessageRoleAssistant
		}
		if message.Role != wantRole {
			t.Fatalf("message %d: expected role %s, got %s", i, wantRole, message.Role)
		}
	}
	for i, input := range inputs {
		if messages[2*i].Content != input {
			t.Fatalf("user turn %d out of order: got %q", i, messages[2*i].Content)
		}
	}
}

func TestModelReceivesPersistedHistoryInOrder(t *testing.T) {
	gateway := &fakeGateway{reply: "ok"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")

	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", "first question"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", "second question"); err != nil {
		t.Fatalf("send: %v", err)
	}

	turns := gateway.lastCall(t)
	if turns[0].Role != "system" || turns[0].Content != chat.SystemPrompt {
		t.Fatalf("expected system prompt first, got %+v", turns[0])
	}
	// system + user, assistant, user
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	last := turns[len(turns)-1]
	if last.Role != models.MessageRoleUser || last.Content != "second question" {
		t.Fatalf("expected final turn to be the new user message, got %+v", last)
	}
}

func TestTitleDerivedFromFirstMessage(t *testing.T) {
	gateway := &fakeGateway{reply: "photosynthesis converts light into chemical energy"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")

	content := "What is photosynthesis and how does it work in plants during summer months extensively?"
	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", content); err != nil {
		t.Fatalf("send: %v", err)
	}

	wantTitle := string([]rune(content)[:50]) + "..."
	got, err := store.Get(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.Title != wantTitle {
		t.Fatalf("expected title %q, got %q", wantTitle, got.Title)
	}

	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", "a follow-up question"); err != nil {
		t.Fatalf("second send: %v", err)
	}

	got, err = store.Get(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.Title != wantTitle {
		t.Fatalf("title changed on second send: got %q", got.Title)
	}
}

func TestShortFirstMessageKeptWholeAsTitle(t *testing.T) {
	gateway := &fakeGateway{reply: "hello!"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")

	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", "What is gravity?"); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := store.Get(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.Title != "What is gravity?" {
		t.Fatalf("expected untruncated title, got %q", got.Title)
	}
}

func TestFallbackPreservesBothTurns(t *testing.T) {
	gateway := &fakeGateway{err: llm.ErrProviderUnavailable}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")

	result, err := pipeline.Send(ctx, conversation.ID, "owner-1", "is anyone there?")
	if err != nil {
		t.Fatalf("send must not fail on provider errors, got: %v", err)
	}
	if result.UserMessage.Content != "is anyone there?" {
		t.Fatalf("user message lost: %+v", result.UserMessage)
	}
	if result.AssistantMessage.Content != chat.FallbackReply {
		t.Fatalf("expected fallback reply, got %q", result.AssistantMessage.Content)
	}

	messages, err := store.ListMessages(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected exactly 2 persisted messages, got %d", len(messages))
	}
}

func TestGatewayTimeoutFallsBack(t *testing.T) {
	gateway := &blockingGateway{}
	store := chat.NewMemoryStore()
	pipeline := chat.NewPipeline(store, gateway, 20*time.Millisecond, nil)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")

	result, err := pipeline.Send(ctx, conversation.ID, "owner-1", "slow provider")
	if err != nil {
		t.Fatalf("send must not fail on timeout, got: %v", err)
	}
	if result.AssistantMessage.Content != chat.FallbackReply {
		t.Fatalf("expected fallback reply after timeout, got %q", result.AssistantMessage.Content)
	}
}

type blockingGateway struct{}

func (g *blockingGateway) Complete(ctx context.Context, _ []llm.Turn) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestOwnershipIsolation(t *testing.T) {
	gateway := &fakeGateway{reply: "hi"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "user-a")

	if _, err := pipeline.Send(ctx, conversation.ID, "user-b", "let me in"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign requester, got %v", err)
	}

	messages, err := store.ListMessages(ctx, conversation.ID, "user-a")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("rejected send must not persist anything, found %d messages", len(messages))
	}

	if err := store.Delete(ctx, conversation.ID, "user-b"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting foreign conversation, got %v", err)
	}
	if _, err := store.Get(ctx, conversation.ID, "user-b"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound getting foreign conversation, got %v", err)
	}
}

func TestCascadeDelete(t *testing.T) {
	gateway := &fakeGateway{reply: "gone soon"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")
	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", "remember this"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := store.Delete(ctx, conversation.ID, "owner-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.ListMessages(ctx, conversation.ID, "owner-1"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestConcurrentFirstSendsDeriveOneValidTitle(t *testing.T) {
	gateway := &fakeGateway{reply: "answer"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")

	contents := []string{"tell me about volcanoes", "explain the water cycle"}
	var wg sync.WaitGroup
	for _, content := range contents {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", content); err != nil {
				t.Errorf("concurrent send: %v", err)
			}
		}(content)
	}
	wg.Wait()

	got, err := store.Get(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.Title != contents[0] && got.Title != contents[1] {
		t.Fatalf("title must equal one of the first messages, got %q", got.Title)
	}

	messages, err := store.ListMessages(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages after two sends, got %d", len(messages))
	}
	// Serialized sends must not interleave user/assistant pairs.
	for i, message := range messages {
		wantRole := models.MessageRoleUser
		if i%2 == 1 {
			wantRole = models.MessageRoleAssistant
		}
		if message.Role != wantRole {
			t.Fatalf("message %d: expected role %s, got %s", i, wantRole, message.Role)
		}
	}
}

func TestContentValidation(t *testing.T) {
	gateway := &fakeGateway{reply: "never reached"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation := mustCreate(t, store, "owner-1")

	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", "   "); !errors.Is(err, chat.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	oversized := strings.Repeat("a", chat.MaxContentLength+1)
	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", oversized); !errors.Is(err, chat.ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}

	messages, err := store.ListMessages(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("rejected sends must not append, found %d messages", len(messages))
	}

	atLimit := strings.Repeat("b", chat.MaxContentLength)
	if _, err := pipeline.Send(ctx, conversation.ID, "owner-1", atLimit); err != nil {
		t.Fatalf("content at the limit must be accepted, got %v", err)
	}
}

func TestSendNewCreatesConversationAndCompletesTurn(t *testing.T) {
	gateway := &fakeGateway{reply: "welcome"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	conversation, result, err := pipeline.SendNew(ctx, "owner-1", "hello from nowhere")
	if err != nil {
		t.Fatalf("send new: %v", err)
	}
	if conversation.ID == "" {
		t.Fatalf("expected a conversation id")
	}
	if result.AssistantMessage.Content != "welcome" {
		t.Fatalf("expected assistant reply, got %q", result.AssistantMessage.Content)
	}

	got, err := store.Get(ctx, conversation.ID, "owner-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.Title != "hello from nowhere" {
		t.Fatalf("expected derived title, got %q", got.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}

	summaries, err := store.List(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected exactly one conversation, got %d", len(summaries))
	}
}

func TestSendNewRejectsInvalidContentWithoutCreating(t *testing.T) {
	gateway := &fakeGateway{reply: "never"}
	pipeline, store := newTestPipeline(gateway)
	ctx := context.Background()

	if _, _, err := pipeline.SendNew(ctx, "owner-1", ""); !errors.Is(err, chat.ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	summaries, err := store.List(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("rejected send must not create a conversation, got %d", len(summaries))
	}
}
