package push

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

const (
	ActionView    = "view"
	ActionDismiss = "dismiss"

	DefaultDashboardPath = "/dashboard"
	defaultTitle         = "Mustody"
)

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Display is a rendered system notification.
type Display struct {
	Title   string          `json:"title"`
	Body    string          `json:"body"`
	Tag     string          `json:"tag,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Actions []Action        `json:"actions"`
}

type eventPayload struct {
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Body    string          `json:"body"`
	Tag     string          `json:"tag"`
	Data    json.RawMessage `json:"data"`
	Actions []Action        `json:"actions"`
}

// RenderEvent turns a push payload into a display notification. The display
// always carries exactly the view and dismiss actions; payload actions can
// only relabel them. A payload that is not JSON is shown as plain text.
func RenderEvent(raw []byte) Display {
	d := Display{Title: defaultTitle}
	raw = bytes.TrimSpace(raw)
	var p eventPayload
	if len(raw) > 0 && raw[0] == '{' && json.Unmarshal(raw, &p) == nil {
		if t := strings.TrimSpace(p.Title); t != "" {
			d.Title = t
		}
		d.Body = strings.TrimSpace(p.Message)
		if d.Body == "" {
			d.Body = strings.TrimSpace(p.Body)
		}
		d.Tag = strings.TrimSpace(p.Tag)
		if data := bytes.TrimSpace(p.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
			d.Data = append(json.RawMessage(nil), data...)
		}
	} else {
		d.Body = string(raw)
	}
	view, dismiss := "View", "Dismiss"
	for _, a := range p.Actions {
		label := strings.TrimSpace(a.Title)
		if label == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(a.Action)) {
		case ActionView:
			view = label
		case ActionDismiss:
			dismiss = label
		}
	}
	d.Actions = []Action{{Action: ActionView, Title: view}, {Action: ActionDismiss, Title: dismiss}}
	return d
}

// ResolveClick returns where a click on a displayed notification leads. An
// empty action is a click on the body. Dismiss, and anything unknown, only
// closes the notification.
func ResolveClick(action, dashboardPath string) (string, bool) {
	if dashboardPath == "" {
		dashboardPath = DefaultDashboardPath
	}
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "", ActionView:
		return dashboardPath, true
	default:
		return "", false
	}
}

// DisplayQueue holds rendered notifications until they are clicked or
// dismissed. Displays sharing a tag replace each other.
type DisplayQueue struct {
	mu    sync.Mutex
	limit int
	next  int
	items []PendingDisplay
}

type PendingDisplay struct {
	ID int `json:"id"`
	Display
}

func NewDisplayQueue(limit int) *DisplayQueue {
	if limit <= 0 {
		limit = 50
	}
	return &DisplayQueue{limit: limit}
}

func (q *DisplayQueue) Push(d Display) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.next++
	if d.Tag != "" {
		for i := range q.items {
			if q.items[i].Tag == d.Tag {
				q.items = append(q.items[:i], q.items[i+1:]...)
				break
			}
		}
	}
	q.items = append(q.items, PendingDisplay{ID: q.next, Display: d})
	if len(q.items) > q.limit {
		q.items = q.items[len(q.items)-q.limit:]
	}
	return q.next
}

// Click closes display id and returns the navigation target, if any.
func (q *DisplayQueue) Click(id int, action, dashboardPath string) (string, bool, bool) {
	q.mu.Lock()
	found := false
	for i := range q.items {
		if q.items[i].ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			found = true
			break
		}
	}
	q.mu.Unlock()
	if !found {
		return "", false, false
	}
	path, navigate := ResolveClick(action, dashboardPath)
	return path, navigate, true
}

// Pending returns the queued displays oldest first, keyed by id.
func (q *DisplayQueue) Pending() []PendingDisplay {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingDisplay, len(q.items))
	copy(out, q.items)
	return out
}
