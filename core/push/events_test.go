package push

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRenderEvent(t *testing.T) {
	got := RenderEvent([]byte(`{"title":"Withdrawal","body":"Approval needed","tag":"wd-1","data":{"id":7},"actions":[{"action":"view","title":"Open"},{"action":"approve","title":"Approve"}]}`))
	want := Display{
		Title:   "Withdrawal",
		Body:    "Approval needed",
		Tag:     "wd-1",
		Data:    []byte(`{"id":7}`),
		Actions: []Action{{Action: ActionView, Title: "Open"}, {Action: ActionDismiss, Title: "Dismiss"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("display mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderEventPrefersMessageAndFallsBack(t *testing.T) {
	d := RenderEvent([]byte(`{"message":"m","body":"b"}`))
	if d.Title != defaultTitle || d.Body != "m" {
		t.Fatalf("unexpected display %+v", d)
	}
	plain := RenderEvent([]byte("hello"))
	if plain.Body != "hello" || len(plain.Actions) != 2 {
		t.Fatalf("unexpected plain display %+v", plain)
	}
}

func TestResolveClick(t *testing.T) {
	cases := []struct {
		action   string
		path     string
		navigate bool
	}{
		{"", DefaultDashboardPath, true},
		{"view", DefaultDashboardPath, true},
		{"VIEW", DefaultDashboardPath, true},
		{"dismiss", "", false},
		{"approve", "", false},
	}
	for _, tc := range cases {
		path, nav := ResolveClick(tc.action, "")
		if path != tc.path || nav != tc.navigate {
			t.Fatalf("action %q: got %q %v", tc.action, path, nav)
		}
	}
}

func TestDisplayQueue(t *testing.T) {
	q := NewDisplayQueue(2)
	a := q.Push(Display{Title: "a", Tag: "t"})
	b := q.Push(Display{Title: "b", Tag: "t"})
	if p := q.Pending(); len(p) != 1 || p[0].ID != b {
		t.Fatalf("same tag must replace, got %+v", p)
	}
	if _, _, ok := q.Click(a, "", "/home"); ok {
		t.Fatalf("replaced display must be gone")
	}
	c := q.Push(Display{Title: "c"})
	q.Push(Display{Title: "d"})
	if p := q.Pending(); len(p) != 2 || p[0].ID != c {
		t.Fatalf("limit not enforced, got %+v", p)
	}
	path, nav, ok := q.Click(c, "", "/home")
	if !ok || !nav || path != "/home" {
		t.Fatalf("unexpected click result %q %v %v", path, nav, ok)
	}
	if len(q.Pending()) != 1 {
		t.Fatalf("clicked display must be closed")
	}
}
