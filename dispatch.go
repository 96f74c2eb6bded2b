package hxcommunity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
)

// Action names understood by the script endpoint.
const (
	ActionLogin         = "login"
	ActionSignup        = "signup"
	ActionUpdateProfile = "update_profile"
	ActionPost          = "post"
	ActionLike          = "like"
	ActionDeletePost    = "delete_post"
	ActionComment       = "comment"
	ActionDM            = "dm"
	ActionDeleteMessage = "delete_message"
	ActionFollow        = "follow"
	ActionUnfollow      = "unfollow"
)

const networkErrorMessage = "Network error"

// ActionsClient sends write actions to the script endpoint.
type ActionsClient struct{ c *Client }

// Dispatch posts {action, ...fields} to the script endpoint and returns the
// decoded envelope. It never returns nil and never fails: transport and
// decoding problems come back as Status "Error" with Message "Network error".
// Nil field values are left out of the payload.
func (a *ActionsClient) Dispatch(ctx context.Context, action string, fields map[string]interface{}) *APIResponse {
	res := a.dispatch(ctx, action, fields)
	dispatchTotal.WithLabelValues(action, string(res.Status)).Inc()
	return res
}

func (a *ActionsClient) dispatch(ctx context.Context, action string, fields map[string]interface{}) *APIResponse {
	logger := a.c.logger.With().Str("action", action).Logger()

	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		if v != nil {
			payload[k] = v
		}
	}
	payload["action"] = action

	encoded, err := Obfuscate(payload)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode action")
		return errorResponse(err.Error())
	}
	body, err := json.Marshal(map[string]string{"payload": encoded})
	if err != nil {
		return errorResponse(err.Error())
	}

	header := http.Header{}
	header.Set("Content-Type", "text/plain;charset=utf-8")
	data, err := a.c.doRequest(ctx, http.MethodPost, a.c.scriptURL, bytes.NewReader(body), header)
	if err != nil {
		logger.Warn().Err(err).Msg("dispatch failed")
		return errorResponse(networkErrorMessage)
	}

	var envelope APIResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Warn().Err(err).Msg("dispatch returned a non-JSON body")
		return errorResponse(networkErrorMessage)
	}
	return decodeEnvelope(&envelope)
}

// decodeEnvelope replaces an obfuscated data field with its decoded value.
// A decoded object carrying its own status is the whole response; anything
// else becomes Data. When data is not obfuscated the envelope is returned
// unchanged.
func decodeEnvelope(env *APIResponse) *APIResponse {
	var encoded string
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &encoded) != nil || encoded == "" {
		return env
	}

	var decoded json.RawMessage
	if err := Deobfuscate(encoded, &decoded); err != nil || isJSONFalsy(decoded) {
		return env
	}

	var probe map[string]json.RawMessage
	if json.Unmarshal(decoded, &probe) == nil {
		if _, ok := probe["status"]; ok {
			var full APIResponse
			if json.Unmarshal(decoded, &full) == nil {
				return &full
			}
		}
	}
	return &APIResponse{Status: env.Status, Data: decoded, Message: env.Message}
}

func isJSONFalsy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

// HashPassword returns the lowercase hex SHA-256 digest the backend stores
// for passwords.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// optional drops empty strings from a payload.
func optional(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ============================================================================
// Auth
// ============================================================================

// Login checks credentials. The password is sent as its SHA-256 digest.
func (a *ActionsClient) Login(ctx context.Context, username, password string) *APIResponse {
	if username == "" || password == "" {
		return errorResponse(ErrMissingCredentials.Error())
	}
	return a.Dispatch(ctx, ActionLogin, map[string]interface{}{
		"username": username,
		"password": HashPassword(password),
	})
}

func (a *ActionsClient) Signup(ctx context.Context, username, email, password, pic string) *APIResponse {
	if username == "" || password == "" {
		return errorResponse(ErrMissingCredentials.Error())
	}
	return a.Dispatch(ctx, ActionSignup, map[string]interface{}{
		"username": username,
		"email":    email,
		"password": HashPassword(password),
		"pic":      optional(pic),
	})
}

func (a *ActionsClient) UpdateProfile(ctx context.Context, username, bio, pic string) *APIResponse {
	return a.Dispatch(ctx, ActionUpdateProfile, map[string]interface{}{
		"username": username,
		"bio":      optional(bio),
		"pic":      optional(pic),
	})
}

// ============================================================================
// Posts
// ============================================================================

func (a *ActionsClient) CreatePost(ctx context.Context, username, content, media, mediaType string) *APIResponse {
	return a.Dispatch(ctx, ActionPost, map[string]interface{}{
		"uid":       username,
		"content":   content,
		"media":     optional(media),
		"mediaType": optional(mediaType),
	})
}

func (a *ActionsClient) Like(ctx context.Context, pid, username string) *APIResponse {
	return a.Dispatch(ctx, ActionLike, map[string]interface{}{"pid": pid, "uid": username})
}

func (a *ActionsClient) DeletePost(ctx context.Context, pid, username string) *APIResponse {
	return a.Dispatch(ctx, ActionDeletePost, map[string]interface{}{"pid": pid, "uid": username})
}

func (a *ActionsClient) Comment(ctx context.Context, pid, username, content string) *APIResponse {
	return a.Dispatch(ctx, ActionComment, map[string]interface{}{"pid": pid, "uid": username, "content": content})
}

// ============================================================================
// Messages
// ============================================================================

func (a *ActionsClient) SendMessage(ctx context.Context, sender, receiver, content, media, mediaType string) *APIResponse {
	return a.Dispatch(ctx, ActionDM, map[string]interface{}{
		"uid":       sender,
		"target":    receiver,
		"message":   content,
		"media":     optional(media),
		"mediaType": optional(mediaType),
	})
}

func (a *ActionsClient) DeleteMessage(ctx context.Context, mid, username string) *APIResponse {
	return a.Dispatch(ctx, ActionDeleteMessage, map[string]interface{}{"mid": mid, "uid": username})
}

// ============================================================================
// Social
// ============================================================================

func (a *ActionsClient) Follow(ctx context.Context, follower, following string) *APIResponse {
	return a.Dispatch(ctx, ActionFollow, map[string]interface{}{"follower": follower, "following": following})
}

func (a *ActionsClient) Unfollow(ctx context.Context, follower, following string) *APIResponse {
	return a.Dispatch(ctx, ActionUnfollow, map[string]interface{}{"follower": follower, "following": following})
}
