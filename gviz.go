package hxcommunity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Sheet names in the backing spreadsheet.
const (
	SheetPosts    = "Posts"
	SheetUsers    = "Users"
	SheetMessages = "Messages"
)

const (
	feedQuery  = "SELECT * ORDER BY A DESC LIMIT 100"
	usersQuery = "SELECT username, pic, role, bio, followers, following"
)

// Row is one table row keyed by column label, or by column id when the
// label is empty. Null cells are nil.
type Row map[string]interface{}

type gvizResponse struct {
	Status string    `json:"status"`
	Table  gvizTable `json:"table"`
}

type gvizTable struct {
	Cols []gvizCol `json:"cols"`
	Rows []gvizRow `json:"rows"`
}

type gvizCol struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type gvizRow struct {
	C []*gvizCell `json:"c"`
}

type gvizCell struct {
	V interface{} `json:"v"`
	F string      `json:"f,omitempty"`
}

// parseGViz strips the setResponse(...) callback wrapper and unpivots the
// table into rows.
func parseGViz(body []byte) ([]Row, error) {
	start := bytes.IndexByte(body, '(')
	end := bytes.LastIndexByte(body, ')')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: missing gviz callback wrapper", ErrMalformedPayload)
	}

	var resp gvizResponse
	if err := json.Unmarshal(body[start+1:end], &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("%w: gviz query returned an error status", ErrMalformedPayload)
	}

	names := make([]string, len(resp.Table.Cols))
	for i, col := range resp.Table.Cols {
		names[i] = col.Label
		if names[i] == "" {
			names[i] = col.ID
		}
	}

	rows := make([]Row, 0, len(resp.Table.Rows))
	for _, r := range resp.Table.Rows {
		row := make(Row, len(names))
		for i, name := range names {
			var v interface{}
			if i < len(r.C) && r.C[i] != nil {
				v = r.C[i].V
			}
			row[name] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) gvizURL(sheet, query string) string {
	params := url.Values{}
	params.Set("sheet", sheet)
	params.Set("tqx", "out:json")
	if query != "" {
		params.Set("tq", query)
	}
	return c.sheetURL + "?" + params.Encode()
}

// queryRows runs one gviz query and returns its unpivoted rows.
func (c *Client) queryRows(ctx context.Context, sheet, query string) ([]Row, error) {
	body, err := c.doRequest(ctx, "GET", c.gvizURL(sheet, query), nil, nil)
	if err != nil {
		listQueriesTotal.WithLabelValues(sheet, "error").Inc()
		return nil, err
	}
	rows, err := parseGViz(body)
	if err != nil {
		listQueriesTotal.WithLabelValues(sheet, "error").Inc()
		return nil, err
	}
	listQueriesTotal.WithLabelValues(sheet, "ok").Inc()
	return rows, nil
}

// quoteLiteral renders s as a gviz query string literal. The query language
// has no escape sequence, so the quote character is picked to fit and the
// other one is dropped from s when both occur.
func quoteLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", "") + "'"
}

// ============================================================================
// Feed
// ============================================================================

type FeedClient struct{ c *Client }

// Fetch returns the newest 100 posts, newest first.
func (f *FeedClient) Fetch(ctx context.Context) ([]Post, error) {
	rows, err := f.c.queryRows(ctx, SheetPosts, feedQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	return mapRows[Post](rows, postSchema, f.c.now())
}

// List is Fetch with the failure policy applied: any error is logged and an
// empty list is returned.
func (f *FeedClient) List(ctx context.Context) []Post {
	posts, err := f.Fetch(ctx)
	if err != nil {
		f.c.logger.Warn().Err(err).Str("sheet", SheetPosts).Msg("feed query failed")
		return []Post{}
	}
	return posts
}

// ============================================================================
// Users
// ============================================================================

type UsersClient struct{ c *Client }

// Fetch returns the public profile columns of every user.
func (u *UsersClient) Fetch(ctx context.Context) ([]User, error) {
	rows, err := u.c.queryRows(ctx, SheetUsers, usersQuery)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	return mapRows[User](rows, userSchema, u.c.now())
}

// List is Fetch with errors logged and swallowed.
func (u *UsersClient) List(ctx context.Context) []User {
	users, err := u.Fetch(ctx)
	if err != nil {
		u.c.logger.Warn().Err(err).Str("sheet", SheetUsers).Msg("users query failed")
		return []User{}
	}
	return users
}

// Lookup returns the full row for username. It returns ErrNotFound when no
// row matches.
func (u *UsersClient) Lookup(ctx context.Context, username string) (*User, error) {
	rows, err := u.c.queryRows(ctx, SheetUsers, "SELECT * WHERE B = "+quoteLiteral(username))
	if err != nil {
		return nil, fmt.Errorf("fetch user %q: %w", username, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	users, err := mapRows[User](rows[:1], userSchema, u.c.now())
	if err != nil {
		return nil, err
	}
	user := users[0]
	if user.Username == "" {
		user.Username = username
	}
	return &user, nil
}

// Get returns the user or nil when the user is absent or the query fails.
func (u *UsersClient) Get(ctx context.Context, username string) *User {
	user, err := u.Lookup(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			u.c.logger.Warn().Err(err).Str("username", username).Msg("user query failed")
		}
		return nil
	}
	return user
}

// SocialStats returns follower, following and post counts, all zero when the
// user cannot be loaded.
func (u *UsersClient) SocialStats(ctx context.Context, username string) SocialStats {
	user := u.Get(ctx, username)
	if user == nil {
		return SocialStats{}
	}
	return SocialStats{Followers: user.Followers, Following: user.Following, Posts: user.Posts}
}

// ============================================================================
// Messages
// ============================================================================

type MessagesClient struct{ c *Client }

// FetchConversation returns up to the newest 100 messages exchanged between
// a and b in either direction, oldest first.
func (m *MessagesClient) FetchConversation(ctx context.Context, a, b string) ([]Message, error) {
	qa, qb := quoteLiteral(a), quoteLiteral(b)
	query := fmt.Sprintf("SELECT * WHERE (B = %s AND C = %s) OR (B = %s AND C = %s) ORDER BY A DESC LIMIT 100", qa, qb, qb, qa)
	rows, err := m.c.queryRows(ctx, SheetMessages, query)
	if err != nil {
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	msgs, err := mapRows[Message](rows, messageSchema, m.c.now())
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Conversation is FetchConversation with errors logged and swallowed.
func (m *MessagesClient) Conversation(ctx context.Context, a, b string) []Message {
	msgs, err := m.FetchConversation(ctx, a, b)
	if err != nil {
		m.c.logger.Warn().Err(err).Str("sheet", SheetMessages).Msg("messages query failed")
		return []Message{}
	}
	return msgs
}
