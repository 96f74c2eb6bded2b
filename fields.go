package hxcommunity

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isoLayout matches the millisecond UTC timestamps the backend writes.
const isoLayout = "2006-01-02T15:04:05.000Z"

func isoTimestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

// ============================================================================
// Field schemas
// ============================================================================

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindBool
	// kindTime is a string field whose default is the mapping time.
	kindTime
)

// field maps one logical JSON field to the column names it may appear
// under. Aliases are matched case-insensitively, in order; the first
// non-null, non-empty cell wins.
type field struct {
	name    string
	aliases []string
	kind    fieldKind
	def     interface{}
}

type schema []field

var postSchema = schema{
	{name: "pid", aliases: []string{"pid", "id", "post_id"}, kind: kindString, def: ""},
	{name: "author", aliases: []string{"author", "uid", "username"}, kind: kindString, def: ""},
	{name: "content", aliases: []string{"content", "text"}, kind: kindString, def: ""},
	{name: "media", aliases: []string{"media"}, kind: kindString, def: ""},
	{name: "mediaType", aliases: []string{"mediatype", "media_type"}, kind: kindString, def: "image"},
	{name: "likes", aliases: []string{"likes"}, kind: kindInt, def: 0},
	{name: "comment_count", aliases: []string{"commentcount", "comment_count", "comments"}, kind: kindInt, def: 0},
	{name: "timestamp", aliases: []string{"timestamp", "time", "date"}, kind: kindTime},
	{name: "role", aliases: []string{"role"}, kind: kindString, def: string(RoleUser)},
	{name: "pic", aliases: []string{"pic", "avatar"}, kind: kindString, def: ""},
}

var userSchema = schema{
	{name: "username", aliases: []string{"username", "uid"}, kind: kindString, def: ""},
	{name: "email", aliases: []string{"email"}, kind: kindString, def: ""},
	{name: "pic", aliases: []string{"pic", "avatar"}, kind: kindString, def: ""},
	{name: "bio", aliases: []string{"bio"}, kind: kindString, def: ""},
	{name: "role", aliases: []string{"role"}, kind: kindString, def: string(RoleUser)},
	{name: "followers", aliases: []string{"followers"}, kind: kindInt, def: 0},
	{name: "following", aliases: []string{"following"}, kind: kindInt, def: 0},
	{name: "posts", aliases: []string{"posts", "post_count"}, kind: kindInt, def: 0},
}

var messageSchema = schema{
	{name: "id", aliases: []string{"id", "mid"}, kind: kindString, def: ""},
	{name: "sender", aliases: []string{"sender", "from", "uid"}, kind: kindString, def: ""},
	{name: "receiver", aliases: []string{"receiver", "to", "target"}, kind: kindString, def: ""},
	{name: "content", aliases: []string{"content", "message"}, kind: kindString, def: ""},
	{name: "media", aliases: []string{"media"}, kind: kindString, def: ""},
	{name: "mediaType", aliases: []string{"mediatype", "media_type"}, kind: kindString, def: ""},
	{name: "timestamp", aliases: []string{"timestamp", "time", "date"}, kind: kindTime},
	{name: "isRead", aliases: []string{"isread", "is_read", "read"}, kind: kindBool, def: false},
}

// normalize resolves every schema field against row and returns the
// canonical JSON object.
func (s schema) normalize(row Row, now time.Time) map[string]interface{} {
	index := make(map[string]interface{}, len(row))
	for k, v := range row {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, seen := index[key]; !seen || isBlank(index[key]) {
			index[key] = v
		}
	}

	out := make(map[string]interface{}, len(s))
	for _, f := range s {
		var raw interface{}
		for _, alias := range f.aliases {
			if v, ok := index[alias]; ok && !isBlank(v) {
				raw = v
				break
			}
		}
		out[f.name] = f.coerce(raw, now)
	}
	return out
}

func (f field) coerce(raw interface{}, now time.Time) interface{} {
	switch f.kind {
	case kindInt:
		if n, ok := toInt(raw); ok {
			return n
		}
	case kindBool:
		if raw != nil {
			return toBool(raw)
		}
	case kindTime:
		if s, ok := toString(raw); ok {
			return s
		}
		return isoTimestamp(now)
	default:
		if s, ok := toString(raw); ok {
			return s
		}
	}
	return f.def
}

// mapRows converts unpivoted rows into T through s.
func mapRows[T any](rows []Row, s schema, now time.Time) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		b, err := json.Marshal(s.normalize(row, now))
		if err != nil {
			return nil, fmt.Errorf("failed to encode row: %w", err)
		}
		var item T
		if err := json.Unmarshal(b, &item); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		out = append(out, item)
	}
	return out, nil
}

// ============================================================================
// Cell coercion
// ============================================================================

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

var gvizDate = regexp.MustCompile(`^Date\((\d+),(\d+),(\d+)(?:,(\d+),(\d+),(\d+)(?:,(\d+))?)?\)$`)

func toString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		if m := gvizDate.FindStringSubmatch(x); m != nil {
			return gvizDateToISO(m), true
		}
		return x, true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return fmt.Sprint(x), true
	}
}

// gvizDateToISO converts a Date(y,m,d[,h,mi,s[,ms]]) cell, whose month is
// zero-based, into an ISO timestamp.
func gvizDateToISO(m []string) string {
	n := make([]int, len(m))
	for i := 1; i < len(m); i++ {
		n[i], _ = strconv.Atoi(m[i])
	}
	t := time.Date(n[1], time.Month(n[2]+1), n[3], n[4], n[5], n[6], n[7]*int(time.Millisecond), time.UTC)
	return isoTimestamp(t)
}

// toInt parses a leading integer the way a lenient number parser would:
// "12abc" is 12, "abc" is not a number.
func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(x)
		end := 0
		for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
			end++
		}
		n, err := strconv.Atoi(s[:end])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func toBool(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(strings.TrimSpace(x), "true")
	}
	return false
}
