package hxcommunity

import "encoding/json"

// ============================================================================
// Shared Types
// ============================================================================

// Status is the outcome reported by the action dispatch endpoint.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusError   Status = "Error"
)

// APIResponse is the uniform result envelope returned by every dispatch.
// Callers branch on Status instead of handling an error.
type APIResponse struct {
	Status  Status          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// OK reports whether the dispatch succeeded.
func (r *APIResponse) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Decode unmarshals the Data field into the provided type.
func (r *APIResponse) Decode(v interface{}) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Err converts a failed response into a *DispatchError. It returns nil on success.
func (r *APIResponse) Err() error {
	if r.OK() {
		return nil
	}
	if r == nil {
		return &DispatchError{Message: "no response"}
	}
	return &DispatchError{Status: r.Status, Message: r.Message}
}

func errorResponse(message string) *APIResponse {
	return &APIResponse{Status: StatusError, Message: message}
}

// ============================================================================
// Community Types
// ============================================================================

// Role is a community role as stored in the Users sheet.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
	RoleOwner Role = "Owner"
)

// User is a community member.
type User struct {
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Pic       string `json:"pic,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Role      Role   `json:"role"`
	Followers int    `json:"followers,omitempty"`
	Following int    `json:"following,omitempty"`
	Posts     int    `json:"posts,omitempty"`
}

// Post is a feed item.
type Post struct {
	PID          string `json:"pid"`
	Author       string `json:"author"`
	Content      string `json:"content"`
	Media        string `json:"media,omitempty"`
	MediaType    string `json:"mediaType,omitempty"`
	Likes        int    `json:"likes"`
	CommentCount int    `json:"comment_count"`
	Timestamp    string `json:"timestamp"`
	Role         string `json:"role,omitempty"`
	Pic          string `json:"pic,omitempty"`
}

// Message is a direct message between two users.
type Message struct {
	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Content   string `json:"content"`
	Media     string `json:"media,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Timestamp string `json:"timestamp"`
	IsRead    bool   `json:"isRead,omitempty"`
}

// SocialStats summarises a user's follower graph.
type SocialStats struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
	Posts     int `json:"posts"`
}

// NotificationKind is the event that produced a Notification.
type NotificationKind string

const (
	NotifyLike    NotificationKind = "like"
	NotifyComment NotificationKind = "comment"
	NotifyFollow  NotificationKind = "follow"
	NotifyMessage NotificationKind = "message"
	NotifyMention NotificationKind = "mention"
)

// Notification is an in-app notification. Notifications are session scoped.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationKind `json:"type"`
	From      string           `json:"from"`
	Content   string           `json:"content,omitempty"`
	Timestamp string           `json:"timestamp"`
	IsRead    bool             `json:"isRead"`
	PostID    string           `json:"postId,omitempty"`
}

// ============================================================================
// AI Types
// ============================================================================

// AIMessage is one role-tagged turn of an assistant conversation.
type AIMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChatSession is an ordered assistant transcript. Title is derived from the
// first user message.
type ChatSession struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Messages  []AIMessage `json:"messages"`
	CreatedAt string      `json:"createdAt"`
}

func (c ChatSession) clone() ChatSession {
	c.Messages = append([]AIMessage(nil), c.Messages...)
	return c
}

// ============================================================================
// Screens
// ============================================================================

// Screen identifies a top-level view of the client.
type Screen string

const (
	ScreenHome          Screen = "home"
	ScreenDM            Screen = "dm"
	ScreenChat          Screen = "chat"
	ScreenProfile       Screen = "profile"
	ScreenCompose       Screen = "compose"
	ScreenComments      Screen = "comments"
	ScreenUserProfile   Screen = "user-profile"
	ScreenAIChat        Screen = "ai-chat"
	ScreenExplore       Screen = "explore"
	ScreenStories       Screen = "stories"
	ScreenSettings      Screen = "settings"
	ScreenNotifications Screen = "notifications"
)
