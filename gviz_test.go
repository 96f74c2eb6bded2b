package hxcommunity

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGViz(t *testing.T) {
	body := []byte(`/*O_o*/
google.visualization.Query.setResponse({"version":"0.6","status":"ok","table":{"cols":[{"id":"A","label":"pid","type":"number"},{"id":"B","label":"","type":"string"}],"rows":[{"c":[{"v":1.0},{"v":"ada"}]},{"c":[null,{"v":"(x)"}]}]}});`)

	rows, err := parseGViz(body)
	require.NoError(t, err)
	want := []Row{
		{"pid": 1.0, "B": "ada"},
		{"pid": nil, "B": "(x)"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestParseGViz_Errors(t *testing.T) {
	for name, body := range map[string]string{
		"no wrapper":   `{"table":{}}`,
		"bad json":     `setResponse({"table":);`,
		"error status": `setResponse({"status":"error","errors":[{"reason":"invalid_query"}]});`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseGViz([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestFeedFetch_NormalizesColumns(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setSheet(SheetPosts,
		[]string{"PID", "Author", "Content", "Media", "MediaType", "Likes", "Comments", "Timestamp", "Role", "Pic"},
		[]interface{}{float64(42), "ada", "hello", nil, nil, float64(7), "3", "Date(2024,0,15,9,30,0)", nil, ""},
		[]interface{}{"43", "bob", nil, "https://x/y.mp4", "video", nil, nil, nil, "Admin", "p.png"},
	)
	c := fb.client()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	posts, err := c.Feed.Fetch(context.Background())
	require.NoError(t, err)

	want := []Post{
		{PID: "42", Author: "ada", Content: "hello", MediaType: "image", Likes: 7, CommentCount: 3, Timestamp: "2024-01-15T09:30:00.000Z", Role: "User"},
		{PID: "43", Author: "bob", Media: "https://x/y.mp4", MediaType: "video", Timestamp: "2024-06-01T12:00:00.000Z", Role: "Admin", Pic: "p.png"},
	}
	if diff := cmp.Diff(want, posts); diff != "" {
		t.Fatalf("posts mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Posts: " + feedQuery}, fb.recordedQueries())
}

func TestFeedList_SwallowsErrors(t *testing.T) {
	fb := newFakeBackend(t)
	fb.failSheet(SheetPosts, http.StatusInternalServerError)
	c := fb.client()

	_, err := c.Feed.Fetch(context.Background())
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusInternalServerError, he.StatusCode)

	posts := c.Feed.List(context.Background())
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

func TestUsersLookup(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setSheet(SheetUsers,
		[]string{"email", "username", "pic", "role", "bio", "followers", "following"},
		[]interface{}{"a@x", "ada", "a.png", "Owner", "hi", float64(10), float64(2)},
	)
	c := fb.client()

	u, err := c.Users.Lookup(context.Background(), "ada")
	require.NoError(t, err)
	assert.Equal(t, User{Username: "ada", Email: "a@x", Pic: "a.png", Bio: "hi", Role: RoleOwner, Followers: 10, Following: 2}, *u)
	assert.Equal(t, []string{"Users: SELECT * WHERE B = 'ada'"}, fb.recordedQueries())

	stats := c.Users.SocialStats(context.Background(), "ada")
	assert.Equal(t, SocialStats{Followers: 10, Following: 2}, stats)

	fb.setSheet(SheetUsers, []string{"username"})
	_, err = c.Users.Lookup(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, c.Users.Get(context.Background(), "nobody"))
	assert.Equal(t, SocialStats{}, c.Users.SocialStats(context.Background(), "nobody"))
}

func TestMessagesConversation_OldestFirst(t *testing.T) {
	fb := newFakeBackend(t)
	fb.setSheet(SheetMessages,
		[]string{"timestamp", "sender", "receiver", "content", "id"},
		[]interface{}{"2024-01-03T00:00:00.000Z", "bob", "ada", "third", "m3"},
		[]interface{}{"2024-01-02T00:00:00.000Z", "ada", "bob", "second", "m2"},
		[]interface{}{"2024-01-01T00:00:00.000Z", "bob", "ada", "first", "m1"},
	)
	c := fb.client()

	msgs, err := c.Messages.FetchConversation(context.Background(), "ada", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})

	q := fb.recordedQueries()[0]
	assert.Contains(t, q, "(B = 'ada' AND C = 'bob') OR (B = 'bob' AND C = 'ada')")
	assert.Contains(t, q, "ORDER BY A DESC LIMIT 100")

	fb.failSheet(SheetMessages, http.StatusBadGateway)
	assert.Empty(t, c.Messages.Conversation(context.Background(), "ada", "bob"))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'ada'", quoteLiteral("ada"))
	assert.Equal(t, `"o'neil"`, quoteLiteral("o'neil"))
	assert.Equal(t, `'ab"c'`, quoteLiteral(`a'b"c`))
}

func TestCellCoercion(t *testing.T) {
	n, ok := toInt("12abc")
	assert.True(t, ok)
	assert.Equal(t, 12, n)
	_, ok = toInt("abc")
	assert.False(t, ok)
	n, _ = toInt(float64(3.9))
	assert.Equal(t, 3, n)

	s, _ := toString(float64(42))
	assert.Equal(t, "42", s)
	s, _ = toString(1.5)
	assert.Equal(t, "1.5", s)
	s, _ = toString("Date(2023,11,31)")
	assert.Equal(t, "2023-12-31T00:00:00.000Z", s)

	assert.True(t, toBool("TRUE"))
	assert.False(t, toBool("no"))
	assert.True(t, isBlank("  "))
	assert.False(t, isBlank(float64(0)))
}
