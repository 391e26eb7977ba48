package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mustody-console/core/push"
	"mustody-console/core/session"
	"mustody-console/core/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/gofrs/uuid/v5"
)

type fakeAPI struct {
	srv  *httptest.Server
	hits atomic.Int32

	mu      sync.Mutex
	headers []http.Header
	bodies  map[string][]byte
}

func newFakeAPI(t *testing.T, register func(r chi.Router)) *fakeAPI {
	t.Helper()
	f := &fakeAPI{bodies: map[string][]byte{}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.hits.Add(1)
			body, _ := io.ReadAll(req.Body)
			f.mu.Lock()
			f.headers = append(f.headers, req.Header.Clone())
			f.bodies[req.Method+" "+req.URL.Path] = body
			f.mu.Unlock()
			req.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, req)
		})
	})
	register(r)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) body(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeAPI) lastHeader() http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.headers) == 0 {
		return nil
	}
	return f.headers[len(f.headers)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRequestsCarryBearerAndRequestID(t *testing.T) {
	api := newFakeAPI(t, func(r chi.Router) {
		r.Put("/notifications/read-all", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})
	c := NewClient(api.srv.URL+"/", 0, nil)
	if err := c.MarkAllNotificationsRead(context.Background()); err != nil {
		t.Fatalf("call: %v", err)
	}
	if h := api.lastHeader(); h.Get("Authorization") != "" {
		t.Fatalf("no token source must mean no Authorization header")
	}
	c.SetTokenSource(func() string { return "tok-1" })
	if err := c.MarkAllNotificationsRead(context.Background()); err != nil {
		t.Fatalf("call: %v", err)
	}
	h := api.lastHeader()
	if got := h.Get("Authorization"); got != "Bearer tok-1" {
		t.Fatalf("unexpected Authorization %q", got)
	}
	if _, err := uuid.FromString(h.Get(headerRequestID)); err != nil {
		t.Fatalf("expected uuid request id, got %q", h.Get(headerRequestID))
	}
}

func TestErrorResponsesMapToAPIError(t *testing.T) {
	api := newFakeAPI(t, func(r chi.Router) {
		r.Get("/messaging/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stats offline"})
		})
		r.Get("/team/members", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		})
	})
	c := NewClient(api.srv.URL, 0, nil)
	_, err := c.MessagingStats(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable || apiErr.Message != "stats offline" {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := c.ListMembers(context.Background()); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoginParsesTokenAndUser(t *testing.T) {
	api := newFakeAPI(t, func(r chi.Router) {
		r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			var req LoginRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Password != "pw" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
				return
			}
			if req.TOTPCode == "" {
				writeJSON(w, http.StatusOK, map[string]any{"requires_2fa": true})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "tok-9",
				"user": map[string]any{
					"id": 42, "name": "Ada", "email": "ada@mustody.io", "role": "tenant_admin",
					"memberships": []map[string]any{{"role": "developer", "tenant": "acme"}},
					"kyc_status":  "verified", "two_factor_enabled": true,
				},
			})
		})
	})
	c := NewClient(api.srv.URL, 0, nil)
	ctx := context.Background()

	if _, err := c.Login(ctx, LoginRequest{Email: "ada@mustody.io", Password: "pw"}); !errors.Is(err, ErrTwoFactorCodeRequired) {
		t.Fatalf("expected ErrTwoFactorCodeRequired, got %v", err)
	}
	res, err := c.Login(ctx, LoginRequest{Email: "ada@mustody.io", Password: "pw", TOTPCode: "123456"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	want := &session.User{
		ID: "42", Name: "Ada", Email: "ada@mustody.io", PrimaryRole: "tenant_admin",
		Memberships: []session.Membership{{Role: "developer", Tenant: "acme"}},
		KYCStatus:   "verified", TwoFactorEnabled: true,
	}
	if res.Token != "tok-9" {
		t.Fatalf("unexpected token %q", res.Token)
	}
	if diff := cmp.Diff(want, res.User); diff != "" {
		t.Fatalf("user mismatch (-want +got):\n%s", diff)
	}
	if _, err := c.Login(ctx, LoginRequest{Email: "ada@mustody.io", Password: "wrong"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	before := api.hits.Load()
	var verr *utils.ValidationError
	if _, err := c.Login(ctx, LoginRequest{Email: "not-an-email", Password: "pw"}); !errors.As(err, &verr) || verr.Field != "email" {
		t.Fatalf("expected email validation error, got %v", err)
	}
	if api.hits.Load() != before {
		t.Fatalf("invalid login must not be dispatched")
	}
}

func TestRefreshToken(t *testing.T) {
	api := newFakeAPI(t, func(r chi.Router) {
		r.Post("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"token": "tok-2"})
		})
	})
	tok, err := NewClient(api.srv.URL, 0, nil).RefreshToken(context.Background())
	if err != nil || tok != "tok-2" {
		t.Fatalf("unexpected refresh result %q %v", tok, err)
	}
}

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memKV) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memKV) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func TestConcurrentUnauthorizedResponsesRedirectOnce(t *testing.T) {
	release := make(chan struct{})
	api := newFakeAPI(t, func(r chi.Router) {
		r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
			<-release
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token expired"})
		})
	})
	c := NewClient(api.srv.URL, 0, nil)
	kv := &memKV{data: map[string]string{}}
	sess := session.NewManager(kv, c, nil)
	var navigations atomic.Int32
	sess.SetNavigator(func(string) { navigations.Add(1) })
	c.SetTokenSource(sess.Token)
	c.SetUnauthorizedHandler(func() { sess.HandleUnauthorized() })
	if err := sess.Login(context.Background(), "tok", &session.User{ID: "u", PrimaryRole: "member"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	const calls = 8
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ListNotifications(context.Background())
			errs <- err
		}()
	}
	for api.hits.Load() < calls {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	}
	if navigations.Load() != 1 {
		t.Fatalf("expected exactly one redirect, got %d", navigations.Load())
	}
	if sess.Authenticated() || len(kv.data) != 0 {
		t.Fatalf("expected token and user cleared")
	}
}

func TestNotificationEndpoints(t *testing.T) {
	api := newFakeAPI(t, func(r chi.Router) {
		r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"notifications": []map[string]any{
				{"id": 1, "title": "Deposit", "message": "1 BTC", "type": "success", "is_read": false},
				{"id": 2, "title": "Odd", "type": "mystery", "is_read": true},
			}})
		})
		r.Put("/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != "a b" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/notifications/vapid-public-key", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"publicKey": "BKey"})
		})
		r.Post("/notifications/subscribe", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
	})
	c := NewClient(api.srv.URL, 0, nil)
	ctx := context.Background()

	items, err := c.ListNotifications(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != "1" || items[1].Type != "info" || !items[1].IsRead {
		t.Fatalf("unexpected items %+v", items)
	}
	if err := c.MarkNotificationRead(ctx, "a b"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	key, err := c.VAPIDPublicKey(ctx)
	if err != nil || key != "BKey" {
		t.Fatalf("unexpected vapid key %q %v", key, err)
	}

	auth, _ := utils.RandBytes(16)
	p256, _ := utils.RandBytes(65)
	sub := push.Subscription{Endpoint: "https://push.example.test/1", Keys: push.Keys{P256dh: utils.Base64URL(p256), Auth: utils.Base64URL(auth)}}
	if err := c.SubscribePush(ctx, sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	var sent push.Subscription
	if err := json.Unmarshal(api.body("POST /notifications/subscribe"), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if diff := cmp.Diff(sub, sent); diff != "" {
		t.Fatalf("subscription body mismatch (-want +got):\n%s", diff)
	}
}
