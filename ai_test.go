package hxcommunity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (fb *fakeBackend) lastAIRequest(t *testing.T) chatCompletionRequest {
	t.Helper()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.NotEmpty(t, fb.aiRequests)
	return fb.aiRequests[len(fb.aiRequests)-1]
}

func TestAIComplete(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client(WithAIModel("test-model"))

	reply := c.AI.Complete(context.Background(), []AIMessage{{Role: "user", Content: "hi"}})
	assert.Equal(t, "Hi there!", reply)

	req := fb.lastAIRequest(t)
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, 1000, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: AssistantSystemPrompt}, req.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "hi"}, req.Messages[1])
}

func TestAIComplete_Failures(t *testing.T) {
	fb := newFakeBackend(t)
	ctx := context.Background()
	msgs := []AIMessage{{Role: "user", Content: "hi"}}

	fb.mu.Lock()
	fb.aiStatus = http.StatusTooManyRequests
	fb.mu.Unlock()
	assert.Equal(t, ReplyUnprocessable, fb.client().AI.Complete(ctx, msgs))

	fb.mu.Lock()
	fb.aiStatus, fb.aiReply = 0, ""
	fb.mu.Unlock()
	assert.Equal(t, ReplyUnprocessable, fb.client().AI.Complete(ctx, msgs), "empty choice is malformed")

	offline := fb.client(WithTransport(errTransport{err: errors.New("offline")}))
	assert.Equal(t, ReplyUnreachable, offline.AI.Complete(ctx, msgs))

	unauthorized := fb.client(WithAIEndpoint(fb.srv.URL+"/ai", "wrong"))
	assert.Equal(t, ReplyUnprocessable, unauthorized.AI.Complete(ctx, msgs))
}

func TestAIRewrite(t *testing.T) {
	fb := newFakeBackend(t)
	fb.mu.Lock()
	fb.aiReply = "Greetings, esteemed colleague."
	fb.mu.Unlock()
	c := fb.client()

	out := c.AI.Rewrite(context.Background(), "hey dude", ToneProfessional)
	assert.Equal(t, "Greetings, esteemed colleague.", out)
	req := fb.lastAIRequest(t)
	assert.Contains(t, req.Messages[0].Content, "professional tone")
	assert.Equal(t, "hey dude", req.Messages[1].Content)
	assert.Equal(t, 500, req.MaxTokens)

	offline := fb.client(WithTransport(errTransport{err: errors.New("offline")}))
	assert.Equal(t, "hey dude", offline.AI.Rewrite(context.Background(), "hey dude", ToneFunny))
}

func newTestAssistant(t *testing.T, c *Client) (*Assistant, *AppState) {
	t.Helper()
	state, _, _ := newTestState(t)
	a := NewAssistant(state, c.AI)
	a.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return a, state
}

func TestAssistant_NewChat(t *testing.T) {
	fb := newFakeBackend(t)
	a, state := newTestAssistant(t, fb.client())

	chat := a.NewChat()
	assert.Equal(t, DefaultChatTitle, chat.Title)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, WelcomeMessage, chat.Messages[0].Content)
	assert.Equal(t, "2024-05-01T10:00:00.000Z", chat.CreatedAt)
	assert.Equal(t, chat.ID, state.CurrentAIChat())
	assert.Len(t, state.AIChats(), 1)
}

func TestAssistant_AskTitlesAndAppends(t *testing.T) {
	fb := newFakeBackend(t)
	a, state := newTestAssistant(t, fb.client())
	chat := a.NewChat()

	question := "How do I set up push notifications for my community app?"
	reply, err := a.Ask(context.Background(), chat.ID, question)
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", reply.Content)

	got, _ := state.AIChat(chat.ID)
	assert.Equal(t, "How do I set up push notificat...", got.Title)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)

	_, err = a.Ask(context.Background(), chat.ID, "second question")
	require.NoError(t, err)
	got, _ = state.AIChat(chat.ID)
	assert.Equal(t, "How do I set up push notificat...", got.Title, "title is set once")
}

func TestAssistant_AskSendsRecentContext(t *testing.T) {
	fb := newFakeBackend(t)
	a, state := newTestAssistant(t, fb.client())
	chat := a.NewChat()
	state.UpdateAIChat(chat.ID, func(c *ChatSession) {
		for i := 0; i < 14; i++ {
			c.Messages = append(c.Messages, AIMessage{Role: "user", Content: fmt.Sprintf("m%d", i)})
		}
	})

	_, err := a.Ask(context.Background(), chat.ID, "latest")
	require.NoError(t, err)

	req := fb.lastAIRequest(t)
	require.Len(t, req.Messages, 1+chatContextSize+1)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "m4", req.Messages[1].Content)
	assert.Equal(t, "latest", req.Messages[len(req.Messages)-1].Content)
}

func TestAssistant_AskErrors(t *testing.T) {
	fb := newFakeBackend(t)
	a, _ := newTestAssistant(t, fb.client())

	_, err := a.Ask(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, ErrNotFound)
	chat := a.NewChat()
	_, err = a.Ask(context.Background(), chat.ID, "  ")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestAssistant_OfflineReplyIsStored(t *testing.T) {
	fb := newFakeBackend(t)
	a, state := newTestAssistant(t, fb.client(WithTransport(errTransport{err: errors.New("offline")})))
	chat := a.NewChat()

	reply, err := a.Ask(context.Background(), chat.ID, "hello?")
	require.NoError(t, err)
	assert.Equal(t, ReplyUnreachable, reply.Content)
	got, _ := state.AIChat(chat.ID)
	assert.Equal(t, ReplyUnreachable, got.Messages[len(got.Messages)-1].Content)

	a.Delete(chat.ID)
	assert.Empty(t, state.AIChats())
}
