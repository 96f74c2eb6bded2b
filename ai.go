package hxcommunity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AssistantSystemPrompt is prepended to every assistant conversation.
const AssistantSystemPrompt = "You are Dechris AI, created by the Havenova-x team led by their founder Dechris. " +
	"You are a helpful, intelligent, and friendly AI assistant. Keep responses clean, concise, and engaging. " +
	"If users ask to contact Havenova-x, provide the email: havenova.x@gmail.com. " +
	"Always address users by their name when provided."

// Replies used when the chat API cannot produce an answer.
const (
	ReplyUnprocessable = "Sorry, I could not process that request."
	ReplyUnreachable   = "Sorry, I am having trouble connecting right now."
)

// Tone selects the rewrite style.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneFunny        Tone = "funny"
	TonePoetic       Tone = "poetic"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// AIClient calls the OpenAI-shaped chat-completion endpoint.
type AIClient struct{ c *Client }

func (a *AIClient) complete(ctx context.Context, req chatCompletionRequest) (string, error) {
	header := http.Header{}
	if a.c.aiKey != "" {
		header.Set("Authorization", "Bearer "+a.c.aiKey)
	}
	data, err := a.c.postJSON(ctx, a.c.aiURL, req, header)
	if err != nil {
		return "", err
	}
	resp, err := decodeJSON[chatCompletionResponse](data)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: no choices in completion", ErrMalformedPayload)
	}
	return resp.Choices[0].Message.Content, nil
}

// Complete sends the system prompt followed by msgs and returns the
// assistant's reply. It never fails; on error one of the Reply* strings is
// returned instead.
func (a *AIClient) Complete(ctx context.Context, msgs []AIMessage) string {
	req := chatCompletionRequest{
		Model:       a.c.aiModel,
		Messages:    []chatMessage{{Role: "system", Content: AssistantSystemPrompt}},
		Temperature: 0.7,
		MaxTokens:   1000,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	reply, err := a.complete(ctx, req)
	if err == nil {
		return reply
	}
	a.c.logger.Warn().Err(err).Msg("assistant request failed")

	var he *HTTPError
	if errors.As(err, &he) || errors.Is(err, ErrMalformedPayload) {
		return ReplyUnprocessable
	}
	return ReplyUnreachable
}

// Rewrite restyles text in the given tone. The input is returned unchanged
// when the request fails.
func (a *AIClient) Rewrite(ctx context.Context, text string, tone Tone) string {
	req := chatCompletionRequest{
		Model: a.c.aiModel,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf("You are a text rewriting assistant. Rewrite the user's text in a %s tone while keeping the same meaning. Only return the rewritten text, no explanations.", tone)},
			{Role: "user", Content: text},
		},
		Temperature: 0.8,
		MaxTokens:   500,
	}
	reply, err := a.complete(ctx, req)
	if err != nil {
		a.c.logger.Warn().Err(err).Msg("rewrite request failed")
		return text
	}
	return reply
}
