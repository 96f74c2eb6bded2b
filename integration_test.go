//go:build integration

package hxcommunity

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests read from the hosted backend and never write to it.
// Run with: HX_INTEGRATION=1 go test -tags integration ./...

func integrationClient(t *testing.T) *Client {
	t.Helper()
	if os.Getenv("HX_INTEGRATION") == "" {
		t.Skip("HX_INTEGRATION not set")
	}
	cfg, err := LoadConfig()
	require.NoError(t, err)
	return NewClient(WithConfig(cfg))
}

func TestIntegration_FeedAndUsers(t *testing.T) {
	c := integrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	posts, err := c.Feed.Fetch(ctx)
	require.NoError(t, err)
	t.Logf("feed: %d posts", len(posts))
	for _, p := range posts {
		assert.NotEmpty(t, p.PID)
	}

	users, err := c.Users.Fetch(ctx)
	require.NoError(t, err)
	t.Logf("users: %d", len(users))
	if len(users) == 0 {
		return
	}

	u, err := c.Users.Lookup(ctx, users[0].Username)
	require.NoError(t, err)
	assert.Equal(t, users[0].Username, u.Username)

	stats := c.Users.SocialStats(ctx, users[0].Username)
	assert.GreaterOrEqual(t, stats.Followers, 0)
}

func TestIntegration_LoginRejectsUnknownUser(t *testing.T) {
	c := integrationClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res := c.Actions.Login(ctx, "hx-integration-nobody", "not-a-password")
	assert.False(t, res.OK())
	assert.NotEmpty(t, res.Message)
}
