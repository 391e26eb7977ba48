package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	TypeInfo    = "info"
	TypeWarning = "warning"
	TypeError   = "error"
	TypeSuccess = "success"
)

var ErrInvalidPayload = errors.New("invalid notifications payload")

type Notification struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Type      string          `json:"type"`
	IsRead    bool            `json:"is_read"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NormalizeType maps anything outside the four known kinds to info.
func NormalizeType(t string) string {
	switch v := strings.ToLower(strings.TrimSpace(t)); v {
	case TypeInfo, TypeWarning, TypeError, TypeSuccess:
		return v
	case "warn":
		return TypeWarning
	case "danger", "critical":
		return TypeError
	default:
		return TypeInfo
	}
}

type wireNotification struct {
	ID         json.RawMessage `json:"id"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Body       string          `json:"body"`
	Type       string          `json:"type"`
	IsRead     *bool           `json:"is_read"`
	IsReadAlt  *bool           `json:"isRead"`
	Read       *bool           `json:"read"`
	CreatedAt  string          `json:"created_at"`
	CreatedAlt string          `json:"createdAt"`
	Data       json.RawMessage `json:"data"`
}

// ParseList decodes a notification list. The backend returns either a bare
// array or an object wrapping it under "notifications" or "data". Entries
// without an id are dropped.
func ParseList(raw []byte) ([]Notification, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Notification{}, nil
	}
	var items []wireNotification
	if raw[0] == '{' {
		var env struct {
			Notifications []wireNotification `json:"notifications"`
			Data          []wireNotification `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		items = env.Notifications
		if items == nil {
			items = env.Data
		}
	} else if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	out := make([]Notification, 0, len(items))
	for _, w := range items {
		n, ok := w.normalize()
		if !ok {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (w wireNotification) normalize() (Notification, bool) {
	id := rawID(w.ID)
	if id == "" {
		return Notification{}, false
	}
	msg := strings.TrimSpace(w.Message)
	if msg == "" {
		msg = strings.TrimSpace(w.Body)
	}
	read := false
	for _, p := range []*bool{w.IsRead, w.IsReadAlt, w.Read} {
		if p != nil {
			read = *p
			break
		}
	}
	created := strings.TrimSpace(w.CreatedAt)
	if created == "" {
		created = strings.TrimSpace(w.CreatedAlt)
	}
	n := Notification{
		ID:      id,
		Title:   strings.TrimSpace(w.Title),
		Message: msg,
		Type:    NormalizeType(w.Type),
		IsRead:  read,
	}
	if created != "" {
		if ts, err := time.Parse(time.RFC3339, created); err == nil {
			n.CreatedAt = ts.UTC()
		}
	}
	if d := bytes.TrimSpace(w.Data); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
		n.Data = append(json.RawMessage(nil), d...)
	}
	return n, true
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func cloneList(in []Notification) []Notification {
	out := make([]Notification, len(in))
	for i, n := range in {
		out[i] = n
		if n.Data != nil {
			out[i].Data = append(json.RawMessage(nil), n.Data...)
		}
	}
	return out
}
