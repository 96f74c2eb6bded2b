package hxcommunity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_PayloadShape(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client()

	res := c.Actions.CreatePost(context.Background(), "ada", "hello", "", "")
	require.True(t, res.OK())

	acts := fb.recordedActions()
	require.Len(t, acts, 1)
	assert.Equal(t, map[string]interface{}{"action": "post", "uid": "ada", "content": "hello"}, acts[0],
		"empty optional fields are left out")
}

func TestDispatch_HashesPasswords(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client()

	c.Actions.Login(context.Background(), "ada", "secret")
	acts := fb.recordedActions()
	require.Len(t, acts, 1)
	assert.Equal(t, "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b", acts[0]["password"])
	assert.Equal(t, HashPassword("secret"), acts[0]["password"])
}

func TestDispatch_MissingCredentialsSkipsNetwork(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client()

	res := c.Actions.Login(context.Background(), "", "pw")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, ErrMissingCredentials.Error(), res.Message)

	res = c.Actions.Signup(context.Background(), "ada", "a@x", "", "")
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, fb.recordedActions())
}

func TestDispatch_DecodesObfuscatedData(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client()
	ctx := context.Background()

	t.Run("plain data is wrapped", func(t *testing.T) {
		fb.reply(ActionLike, http.StatusOK, map[string]interface{}{
			"status": "Success",
			"data":   mustObfuscate(t, map[string]int{"likes": 8}),
		})
		res := c.Actions.Like(ctx, "42", "ada")
		require.True(t, res.OK())
		var got struct{ Likes int }
		require.NoError(t, res.Decode(&got))
		assert.Equal(t, 8, got.Likes)
	})

	t.Run("decoded status replaces the envelope", func(t *testing.T) {
		fb.reply(ActionLike, http.StatusOK, map[string]interface{}{
			"status": "Success",
			"data":   mustObfuscate(t, map[string]string{"status": "Error", "message": "Already liked"}),
		})
		res := c.Actions.Like(ctx, "42", "ada")
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, "Already liked", res.Message)
	})

	t.Run("falsy decoded value keeps the raw envelope", func(t *testing.T) {
		enc := mustObfuscate(t, false)
		fb.reply(ActionLike, http.StatusOK, map[string]interface{}{"status": "Success", "data": enc})
		res := c.Actions.Like(ctx, "42", "ada")
		require.True(t, res.OK())
		var raw string
		require.NoError(t, json.Unmarshal(res.Data, &raw))
		assert.Equal(t, enc, raw)
	})

	t.Run("undecodable data keeps the raw envelope", func(t *testing.T) {
		fb.reply(ActionLike, http.StatusOK, map[string]interface{}{"status": "Success", "data": "plain text"})
		res := c.Actions.Like(ctx, "42", "ada")
		require.True(t, res.OK())
		assert.JSONEq(t, `"plain text"`, string(res.Data))
	})
}

func TestDispatch_FailuresBecomeNetworkError(t *testing.T) {
	fb := newFakeBackend(t)
	ctx := context.Background()

	fb.reply(ActionLike, http.StatusInternalServerError, "boom")
	res := fb.client().Actions.Like(ctx, "1", "ada")
	assert.Equal(t, &APIResponse{Status: StatusError, Message: "Network error"}, res)

	fb.reply(ActionLike, http.StatusOK, "<html>not json</html>")
	res = fb.client().Actions.Like(ctx, "1", "ada")
	assert.Equal(t, "Network error", res.Message)

	offline := fb.client(WithTransport(errTransport{err: errors.New("offline")}))
	res = offline.Actions.Like(ctx, "1", "ada")
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "Network error", res.Message)
}

func TestDispatch_ServerErrorStatusPassesThrough(t *testing.T) {
	fb := newFakeBackend(t)
	fb.reply(ActionDeletePost, http.StatusOK, map[string]string{"status": "Error", "message": "Not your post"})

	res := fb.client().Actions.DeletePost(context.Background(), "9", "ada")
	assert.False(t, res.OK())
	var de *DispatchError
	require.ErrorAs(t, res.Err(), &de)
	assert.Equal(t, "Not your post", de.Message)
}

func TestDispatch_MessageAndSocialFields(t *testing.T) {
	fb := newFakeBackend(t)
	c := fb.client()
	ctx := context.Background()

	c.Actions.SendMessage(ctx, "ada", "bob", "hi", "https://x/a.mp3", "audio")
	c.Actions.DeleteMessage(ctx, "m1", "ada")
	c.Actions.Follow(ctx, "ada", "bob")
	c.Actions.UpdateProfile(ctx, "ada", "new bio", "")

	acts := fb.recordedActions()
	require.Len(t, acts, 4)
	assert.Equal(t, map[string]interface{}{"action": "dm", "uid": "ada", "target": "bob", "message": "hi", "media": "https://x/a.mp3", "mediaType": "audio"}, acts[0])
	assert.Equal(t, map[string]interface{}{"action": "delete_message", "mid": "m1", "uid": "ada"}, acts[1])
	assert.Equal(t, map[string]interface{}{"action": "follow", "follower": "ada", "following": "bob"}, acts[2])
	assert.Equal(t, map[string]interface{}{"action": "update_profile", "username": "ada", "bio": "new bio"}, acts[3])
}

func TestHTTPErrorCategory(t *testing.T) {
	assert.Equal(t, Recoverable, (&HTTPError{StatusCode: 503}).Category())
	assert.Equal(t, Recoverable, (&HTTPError{StatusCode: 429}).Category())
	assert.Equal(t, Irrecoverable, (&HTTPError{StatusCode: 404}).Category())
	assert.True(t, IsIrrecoverable(errors.Join(errors.New("ctx"), &HTTPError{StatusCode: 401})))
	assert.False(t, IsIrrecoverable(errors.New("plain")))
}
