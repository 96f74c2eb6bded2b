package hxcommunity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultChatTitle = "New Chat"
	WelcomeMessage   = "Hello! I'm Dechris AI, created by the Havenova-x team. I'm here to help you with anything you need. How can I assist you today?"

	chatContextSize = 10
	chatTitleRunes  = 30
)

// Assistant keeps AI chat sessions in AppState and talks to the chat API.
type Assistant struct {
	state *AppState
	ai    *AIClient
	now   func() time.Time
}

func NewAssistant(state *AppState, ai *AIClient) *Assistant {
	return &Assistant{state: state, ai: ai, now: time.Now}
}

// NewChat starts a session holding the welcome message and makes it current.
func (a *Assistant) NewChat() ChatSession {
	ts := isoTimestamp(a.now())
	chat := ChatSession{
		ID:        uuid.NewString(),
		Title:     DefaultChatTitle,
		Messages:  []AIMessage{{Role: "assistant", Content: WelcomeMessage, Timestamp: ts}},
		CreatedAt: ts,
	}
	a.state.AddAIChat(chat)
	a.state.SetCurrentAIChat(chat.ID)
	return chat
}

// Ask appends text to the session, sends the last messages as context and
// appends the reply. The first user message also names the session.
func (a *Assistant) Ask(ctx context.Context, chatID, text string) (AIMessage, error) {
	if strings.TrimSpace(text) == "" {
		return AIMessage{}, ErrEmptyContent
	}
	chat, ok := a.state.AIChat(chatID)
	if !ok {
		return AIMessage{}, ErrNotFound
	}

	userMsg := AIMessage{Role: "user", Content: text, Timestamp: isoTimestamp(a.now())}
	prior := chat.Messages
	if len(prior) > chatContextSize {
		prior = prior[len(prior)-chatContextSize:]
	}
	firstQuestion := !hasUserMessage(chat.Messages)

	a.state.UpdateAIChat(chatID, func(c *ChatSession) {
		c.Messages = append(c.Messages, userMsg)
		if firstQuestion && c.Title == DefaultChatTitle {
			c.Title = chatTitle(text)
		}
	})

	reply := a.ai.Complete(ctx, append(append([]AIMessage{}, prior...), userMsg))
	aiMsg := AIMessage{Role: "assistant", Content: reply, Timestamp: isoTimestamp(a.now())}
	a.state.UpdateAIChat(chatID, func(c *ChatSession) {
		c.Messages = append(c.Messages, aiMsg)
	})
	return aiMsg, nil
}

// Delete removes a session.
func (a *Assistant) Delete(chatID string) {
	a.state.RemoveAIChat(chatID)
}

// Rewrite restyles a draft; see AIClient.Rewrite.
func (a *Assistant) Rewrite(ctx context.Context, text string, tone Tone) string {
	return a.ai.Rewrite(ctx, text, tone)
}

func hasUserMessage(msgs []AIMessage) bool {
	for _, m := range msgs {
		if m.Role == "user" {
			return true
		}
	}
	return false
}

func chatTitle(text string) string {
	return TruncateText(text, chatTitleRunes)
}
