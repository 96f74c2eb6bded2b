// Package hxcommunity is the Go SDK for the HX community backend.
//
// Reads go through the spreadsheet's public gviz query endpoint, writes go
// through the script-hosted action endpoint, media goes to an anonymous
// upload host and the assistant talks to an OpenAI-shaped chat API. The SDK
// adds an offline cache worker (an http.RoundTripper), a persisted
// key-value store and an optimistic state container on top.
//
// Example:
//
//	client := hxcommunity.NewClient(hxcommunity.WithConfig(cfg))
//
//	posts := client.Feed.List(ctx)
//	res := client.Actions.Like(ctx, posts[0].PID, "alice")
//	if !res.OK() {
//		log.Println(res.Message)
//	}
package hxcommunity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ============================================================================
// Client
// ============================================================================

// Client talks to every remote collaborator. Sub-clients share its
// http.Client, so a worker installed with WithTransport sees all traffic.
type Client struct {
	sheetURL   string
	scriptURL  string
	uploadURL  string
	aiURL      string
	aiKey      string
	aiModel    string
	httpClient *http.Client
	logger     zerolog.Logger
	debug      bool
	now        func() time.Time

	Feed     *FeedClient
	Users    *UsersClient
	Messages *MessagesClient
	Actions  *ActionsClient
	Media    *MediaClient
	AI       *AIClient
}

type ClientOption func(*Client)

// WithConfig applies every endpoint and timeout setting from cfg.
func WithConfig(cfg *Config) ClientOption {
	return func(c *Client) {
		c.sheetURL = cfg.SheetURL()
		c.scriptURL = cfg.ScriptURL
		c.uploadURL = cfg.UploadURL
		c.aiURL = cfg.AIURL
		c.aiKey = cfg.AIAPIKey
		c.aiModel = cfg.AIModel
		if cfg.HTTPTimeout > 0 {
			c.httpClient.Timeout = cfg.HTTPTimeout
		}
	}
}

func WithSheetURL(u string) ClientOption {
	return func(c *Client) { c.sheetURL = strings.TrimRight(u, "/") }
}

func WithScriptURL(u string) ClientOption {
	return func(c *Client) { c.scriptURL = u }
}

func WithUploadURL(u string) ClientOption {
	return func(c *Client) { c.uploadURL = u }
}

// WithAIEndpoint sets the chat-completion URL and its bearer key.
func WithAIEndpoint(u, apiKey string) ClientOption {
	return func(c *Client) {
		c.aiURL = u
		c.aiKey = apiKey
	}
}

func WithAIModel(model string) ClientOption {
	return func(c *Client) { c.aiModel = model }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithTransport routes every request through rt, typically a *Registration.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) { c.httpClient.Transport = rt }
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithDebugLogging dumps requests and responses at debug level. It is also
// switched on by HXCOMMUNITY_DEBUG=true or DEBUG=true.
func WithDebugLogging(enabled bool) ClientOption {
	return func(c *Client) { c.debug = enabled }
}

// NewClient creates a client with the built-in endpoints, then applies opts.
func NewClient(opts ...ClientOption) *Client {
	def := DefaultConfig()
	c := &Client{
		sheetURL:  def.SheetURL(),
		scriptURL: def.ScriptURL,
		uploadURL: def.UploadURL,
		aiURL:     def.AIURL,
		aiModel:   def.AIModel,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: log.Logger.With().Str("component", "client").Logger(),
		debug:  debugLoggingRequested(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.debug && c.httpClient.Transport == nil {
		c.httpClient.Transport = NewDebugTransport(nil, c.logger)
	}

	c.Feed = &FeedClient{c}
	c.Users = &UsersClient{c}
	c.Messages = &MessagesClient{c}
	c.Actions = &ActionsClient{c}
	c.Media = &MediaClient{c}
	c.AI = &AIClient{c}
	return c
}

// HTTPClient returns the client used for every remote call.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, u string, body io.Reader, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Op: method + " " + req.URL.Host, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (c *Client) postJSON(ctx context.Context, u string, body interface{}, header http.Header) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	return c.doRequest(ctx, http.MethodPost, u, bytes.NewReader(b), header)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}
