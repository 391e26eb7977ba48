package session

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mustody-console/config"
	"mustody-console/core/store"

	"github.com/google/go-cmp/cmp"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string]string
	deletes int
	failSet bool
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (s *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memKV) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("disk full")
	}
	s.data[key] = value
	return nil
}

func (s *memKV) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *memKV) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

type fakeAuth struct {
	logoutCalls  atomic.Int32
	refreshCalls atomic.Int32
	logoutErr    error
	nextToken    string
	refreshErr   error
}

func (a *fakeAuth) Logout(ctx context.Context) error {
	a.logoutCalls.Add(1)
	return a.logoutErr
}

func (a *fakeAuth) RefreshToken(ctx context.Context) (string, error) {
	a.refreshCalls.Add(1)
	return a.nextToken, a.refreshErr
}

func tenantAdmin() *User {
	return &User{ID: "u-1", Name: "Ada", Email: "ada@mustody.io", PrimaryRole: "tenant_admin", EmailVerified: true}
}

func labels(st State) []string {
	out := []string{}
	for _, it := range st.Menu {
		out = append(out, it.Label)
	}
	return out
}

func TestLoginWithUserDerivesRolesAndMenu(t *testing.T) {
	kv := newMemKV()
	m := NewManager(kv, &fakeAuth{}, nil)
	if err := m.Login(context.Background(), "tok-1", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	st := m.Snapshot()
	if !st.Authenticated || st.Token != "tok-1" || st.User == nil || st.User.ID != "u-1" {
		t.Fatalf("unexpected state %+v", st)
	}
	want := []string{"Dashboard", "Messaging", "Analytics", "Team Management", "Role Management", "API Keys"}
	if diff := cmp.Diff(want, labels(st)); diff != "" {
		t.Fatalf("menu mismatch (-want +got):\n%s", diff)
	}
	if _, ok := kv.data[store.KeyToken]; !ok {
		t.Fatalf("token not persisted")
	}
	if _, ok := kv.data[store.KeyUser]; !ok {
		t.Fatalf("user not persisted")
	}
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	m := NewManager(newMemKV(), nil, nil)
	if err := m.Login(context.Background(), "  ", tenantAdmin()); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func TestLoginPersistFailureLeavesNoSession(t *testing.T) {
	kv := newMemKV()
	kv.failSet = true
	m := NewManager(kv, nil, nil)
	if err := m.Login(context.Background(), "tok", tenantAdmin()); err == nil {
		t.Fatalf("expected persist error")
	}
	if m.Authenticated() || kv.len() != 0 {
		t.Fatalf("expected no session after failed persist")
	}
}

func TestEffectiveRolesAndHasRole(t *testing.T) {
	m := NewManager(newMemKV(), nil, nil)
	u := &User{
		ID:          "u-2",
		PrimaryRole: "member",
		Memberships: []Membership{
			{Role: "developer", Tenant: "t-1"},
			{Role: "auditor", Tenant: "t-2"},
			{Role: "developer", Tenant: "t-3"},
		},
	}
	if err := m.Login(context.Background(), "tok", u); err != nil {
		t.Fatalf("login: %v", err)
	}
	got := m.Snapshot().EffectiveRoles
	sort.Strings(got)
	if diff := cmp.Diff([]string{"auditor", "developer", "member"}, got); diff != "" {
		t.Fatalf("effective roles mismatch (-want +got):\n%s", diff)
	}
	for _, r := range []string{"member", "developer", "auditor", "Developer"} {
		if !m.HasRole(r) {
			t.Fatalf("expected HasRole(%q)", r)
		}
	}
	for _, r := range []string{"tenant_admin", "super_admin", ""} {
		if m.HasRole(r) {
			t.Fatalf("unexpected HasRole(%q)", r)
		}
	}
}

func TestCanAccessEmptyRequirementAlwaysAllowed(t *testing.T) {
	m := NewManager(newMemKV(), nil, nil)
	if !m.CanAccess(nil) || !m.CanAccess([]string{}) {
		t.Fatalf("empty requirement must allow without a user")
	}
	if m.CanAccess([]string{"member"}) {
		t.Fatalf("role requirement must deny without a user")
	}
	if err := m.Login(context.Background(), "tok", &User{ID: "u", PrimaryRole: "member"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !m.CanAccess(nil) {
		t.Fatalf("empty requirement must allow with a user")
	}
	if !m.CanAccess([]string{"tenant_admin", "member"}) {
		t.Fatalf("any held role must allow")
	}
	if m.CanAccess([]string{"tenant_admin"}) {
		t.Fatalf("unheld role must deny")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	kv := newMemKV()
	auth := &fakeAuth{logoutErr: errors.New("backend down")}
	m := NewManager(kv, auth, nil)
	if err := m.Login(context.Background(), "tok", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	m.Logout(context.Background())
	first := m.Snapshot()
	if first.Authenticated || first.User != nil || first.Token != "" || len(first.Menu) != 0 {
		t.Fatalf("expected empty state, got %+v", first)
	}
	if kv.len() != 0 {
		t.Fatalf("expected persisted keys cleared")
	}
	m.Logout(context.Background())
	second := m.Snapshot()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second logout changed state (-first +second):\n%s", diff)
	}
	if kv.len() != 0 || kv.deletes != 2 {
		t.Fatalf("expected keys cleared on both logouts, deletes=%d", kv.deletes)
	}
	if auth.logoutCalls.Load() != 1 {
		t.Fatalf("backend should only be notified for a live session, got %d", auth.logoutCalls.Load())
	}
}

func openStore(t *testing.T, dbPath, secret string) store.KVStore {
	t.Helper()
	cfg := &config.AppConfig{Store: config.StoreConfig{DBPath: dbPath}}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, nil); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	enc, err := store.OpenSealer(ctx, db, secret)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	return store.NewKVStore(db, enc)
}

func TestHydrationRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "console.db")
	ctx := context.Background()
	u := &User{
		ID:          "u-9",
		Name:        "Grace",
		Email:       "grace@mustody.io",
		PrimaryRole: "compliance_officer",
		Memberships: []Membership{{Role: "auditor", Tenant: "acme"}},
		KYCStatus:   KYCStatusVerified,
	}
	first := NewManager(openStore(t, dbPath, "round-trip-secret-123"), nil, nil)
	if err := first.Login(ctx, "tok-9", u); err != nil {
		t.Fatalf("login: %v", err)
	}
	want := first.Snapshot()

	second := NewManager(openStore(t, dbPath, "round-trip-secret-123"), nil, nil)
	if err := second.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	got := second.Snapshot()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("hydrated state mismatch (-want +got):\n%s", diff)
	}
}

func TestLoginNormalizesUserForRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "console.db")
	ctx := context.Background()
	u := &User{
		ID:          " u-4 ",
		Email:       "ops@mustody.io",
		PrimaryRole: "Tenant_Admin",
		Memberships: []Membership{{Role: "Auditor", Tenant: "acme"}, {Role: " ", Tenant: "ghost"}},
		KYCStatus:   "Verified",
	}
	first := NewManager(openStore(t, dbPath, "normalize-secret-123"), nil, nil)
	if err := first.Login(ctx, "tok-4", u); err != nil {
		t.Fatalf("login: %v", err)
	}
	want := &User{
		ID:          "u-4",
		Email:       "ops@mustody.io",
		PrimaryRole: "tenant_admin",
		Memberships: []Membership{{Role: "auditor", Tenant: "acme"}},
		KYCStatus:   KYCStatusVerified,
	}
	if diff := cmp.Diff(want, first.User()); diff != "" {
		t.Fatalf("logged-in user mismatch (-want +got):\n%s", diff)
	}
	if u.PrimaryRole != "Tenant_Admin" {
		t.Fatalf("login must not mutate the caller's user")
	}

	second := NewManager(openStore(t, dbPath, "normalize-secret-123"), nil, nil)
	if err := second.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if diff := cmp.Diff(first.Snapshot(), second.Snapshot()); diff != "" {
		t.Fatalf("hydrated state mismatch (-want +got):\n%s", diff)
	}
}

func TestLoginRejectsInvalidUserBeforePersisting(t *testing.T) {
	cases := []struct {
		name string
		user *User
	}{
		{"missing id", &User{PrimaryRole: "member"}},
		{"blank id", &User{ID: "  ", PrimaryRole: "member"}},
		{"missing role", &User{ID: "u-5"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kv := newMemKV()
			m := NewManager(kv, nil, nil)
			if err := m.Login(context.Background(), "tok", tc.user); !errors.Is(err, ErrInvalidUser) {
				t.Fatalf("expected ErrInvalidUser, got %v", err)
			}
			if m.Authenticated() || kv.len() != 0 {
				t.Fatalf("invalid user must leave no session")
			}
		})
	}
}

func TestHydrationWithWrongSecretFailsClosed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "console.db")
	ctx := context.Background()
	first := NewManager(openStore(t, dbPath, "original-secret-value"), nil, nil)
	if err := first.Login(ctx, "tok", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	kv := openStore(t, dbPath, "rotated-secret-value")
	second := NewManager(kv, nil, nil)
	if err := second.Hydrate(ctx); !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
	if second.Authenticated() {
		t.Fatalf("expected unauthenticated state")
	}
	if _, ok, _ := kv.Get(ctx, store.KeyToken); ok {
		t.Fatalf("expected token discarded")
	}
}

func TestHydrationDiscardsMalformedSnapshot(t *testing.T) {
	for _, raw := range []string{"{not json", `{"name":"no id"}`, `null`, `{"id":"u","memberships":[]}`} {
		kv := newMemKV()
		kv.data[store.KeyToken] = "tok"
		kv.data[store.KeyUser] = raw
		m := NewManager(kv, nil, nil)
		err := m.Hydrate(context.Background())
		if !errors.Is(err, ErrCorruptSnapshot) {
			t.Fatalf("%q: expected ErrCorruptSnapshot, got %v", raw, err)
		}
		if m.Authenticated() || m.User() != nil || m.Token() != "" {
			t.Fatalf("%q: expected empty session", raw)
		}
		if kv.len() != 0 {
			t.Fatalf("%q: expected token and user discarded", raw)
		}
	}
}

func TestHydrationTokenWithoutUserIsUnauthenticated(t *testing.T) {
	kv := newMemKV()
	kv.data[store.KeyToken] = "tok"
	m := NewManager(kv, nil, nil)
	if err := m.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if m.Authenticated() || m.Token() != "" || len(m.Menu()) != 0 {
		t.Fatalf("expected unauthenticated state")
	}
	if kv.len() != 0 {
		t.Fatalf("expected orphan token discarded")
	}
}

func TestHydrationUserWithoutTokenIsDiscarded(t *testing.T) {
	kv := newMemKV()
	kv.data[store.KeyUser] = `{"id":"u","primary_role":"member"}`
	m := NewManager(kv, nil, nil)
	if err := m.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if m.Authenticated() || kv.len() != 0 {
		t.Fatalf("expected orphan user discarded")
	}
}

func TestLoginWithoutUserUsesSnapshot(t *testing.T) {
	kv := newMemKV()
	kv.data[store.KeyUser] = `{"id":7,"role":"Tenant_Admin","memberships":[{"role":"developer","tenant":{"id":3}}]}`
	m := NewManager(kv, nil, nil)
	if err := m.Login(context.Background(), "tok", nil); err != nil {
		t.Fatalf("login: %v", err)
	}
	u := m.User()
	if u == nil || u.ID != "7" || u.PrimaryRole != "tenant_admin" || u.Memberships[0].Tenant != "3" {
		t.Fatalf("unexpected user %+v", u)
	}
	if !m.HasRole("developer") {
		t.Fatalf("expected membership role")
	}
}

func TestLoginWithoutUserOrSnapshotEndsUnauthenticated(t *testing.T) {
	kv := newMemKV()
	m := NewManager(kv, nil, nil)
	if err := m.Login(context.Background(), "tok", nil); !errors.Is(err, ErrNoUserSnapshot) {
		t.Fatalf("expected ErrNoUserSnapshot, got %v", err)
	}
	if m.Authenticated() || m.Token() != "" || kv.len() != 0 {
		t.Fatalf("expected no half-populated session")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	kv := newMemKV()
	auth := &fakeAuth{nextToken: "tok-2"}
	m := NewManager(kv, auth, nil)
	if err := m.Login(context.Background(), "tok-1", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if m.Token() != "tok-2" || kv.data[store.KeyToken] != "tok-2" {
		t.Fatalf("expected rotated token, got %q / %q", m.Token(), kv.data[store.KeyToken])
	}
	if m.User() == nil {
		t.Fatalf("refresh must keep the user")
	}
}

func TestRefreshFailureForcesLogout(t *testing.T) {
	kv := newMemKV()
	auth := &fakeAuth{refreshErr: errors.New("expired")}
	m := NewManager(kv, auth, nil)
	var navigations []string
	m.SetNavigator(func(path string) { navigations = append(navigations, path) })
	m.SetLoginPath("/auth/login")
	if err := m.Login(context.Background(), "tok", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := m.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if m.Authenticated() || kv.len() != 0 {
		t.Fatalf("expected session cleared after failed refresh")
	}
	if diff := cmp.Diff([]string{"/auth/login"}, navigations); diff != "" {
		t.Fatalf("navigation mismatch (-want +got):\n%s", diff)
	}
}

func TestRefreshWithoutSessionIsSkipped(t *testing.T) {
	auth := &fakeAuth{nextToken: "tok"}
	m := NewManager(newMemKV(), auth, nil)
	if err := m.Refresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	job := NewRefreshJob(m, 0, nil)
	if err := job.RunOnce(context.Background()); err != nil {
		t.Fatalf("tick without session: %v", err)
	}
	if auth.refreshCalls.Load() != 0 {
		t.Fatalf("refresh must not hit the backend without a session")
	}
}

func TestRefreshJobRotatesToken(t *testing.T) {
	auth := &fakeAuth{nextToken: "tok-2"}
	m := NewManager(newMemKV(), auth, nil)
	if err := m.Login(context.Background(), "tok-1", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := NewRefreshJob(m, 0, nil).RunOnce(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if m.Token() != "tok-2" {
		t.Fatalf("expected rotated token")
	}
}

// blockingAuth holds RefreshToken until released or until ctx is done.
type blockingAuth struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingAuth() *blockingAuth {
	return &blockingAuth{entered: make(chan struct{}), release: make(chan struct{})}
}

func (a *blockingAuth) Logout(ctx context.Context) error { return nil }

func (a *blockingAuth) RefreshToken(ctx context.Context) (string, error) {
	a.once.Do(func() { close(a.entered) })
	select {
	case <-a.release:
		return "tok-2", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestRefreshInterruptedKeepsSession(t *testing.T) {
	kv := newMemKV()
	m := NewManager(kv, newBlockingAuth(), nil)
	var navigations atomic.Int32
	m.SetNavigator(func(string) { navigations.Add(1) })
	if err := m.Login(context.Background(), "tok-1", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if !m.Authenticated() || m.Token() != "tok-1" || kv.len() != 2 {
		t.Fatalf("interrupted refresh must keep the session")
	}
	if navigations.Load() != 0 {
		t.Fatalf("interrupted refresh must not redirect")
	}
}

func TestRefreshJobStopLetsRefreshFinish(t *testing.T) {
	kv := newMemKV()
	auth := newBlockingAuth()
	m := NewManager(kv, auth, nil)
	var navigations atomic.Int32
	m.SetNavigator(func(string) { navigations.Add(1) })
	if err := m.Login(context.Background(), "tok-1", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	job := NewRefreshJob(m, time.Second, nil)
	job.StartWithContext(context.Background())
	select {
	case <-auth.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("refresh tick never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- job.StopWithContext(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(auth.release)

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stop did not return")
	}
	if !m.Authenticated() || m.Token() != "tok-2" {
		t.Fatalf("expected refresh in flight at shutdown to complete, token=%q", m.Token())
	}
	if kv.len() != 2 || kv.data[store.KeyToken] != "tok-2" {
		t.Fatalf("expected rotated token persisted")
	}
	if navigations.Load() != 0 {
		t.Fatalf("shutdown must not redirect to login")
	}
}

func TestConcurrentUnauthorizedRedirectsOnce(t *testing.T) {
	kv := newMemKV()
	m := NewManager(kv, nil, nil)
	var navigations atomic.Int32
	m.SetNavigator(func(path string) { navigations.Add(1) })
	if err := m.Login(context.Background(), "tok", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	var wg sync.WaitGroup
	var handled atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.HandleUnauthorized() {
				handled.Add(1)
			}
		}()
	}
	wg.Wait()
	if navigations.Load() != 1 || handled.Load() != 1 {
		t.Fatalf("expected exactly one redirect, got nav=%d handled=%d", navigations.Load(), handled.Load())
	}
	if m.Authenticated() || kv.len() != 0 {
		t.Fatalf("expected session cleared")
	}
	if m.HandleUnauthorized() {
		t.Fatalf("no redirect expected without a session")
	}
}

func TestSubscribersSeeTransitions(t *testing.T) {
	m := NewManager(newMemKV(), nil, nil)
	var seen []bool
	unsubscribe := m.Subscribe(func(st State) { seen = append(seen, st.Authenticated) })
	if err := m.Login(context.Background(), "tok", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	m.Logout(context.Background())
	unsubscribe()
	if err := m.Login(context.Background(), "tok", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	if diff := cmp.Diff([]bool{true, false}, seen); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestMenuIsRederivedOnUserChange(t *testing.T) {
	m := NewManager(newMemKV(), nil, nil)
	if err := m.Login(context.Background(), "tok", tenantAdmin()); err != nil {
		t.Fatalf("login: %v", err)
	}
	before := m.Menu()
	if err := m.Login(context.Background(), "tok-2", &User{ID: "u-3", PrimaryRole: "member"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	after := m.Menu()
	if len(before) != 6 || len(after) != 3 {
		t.Fatalf("unexpected menus before=%d after=%d", len(before), len(after))
	}
	if before[3].Label != "Team Management" {
		t.Fatalf("earlier snapshot must not be mutated, got %q", before[3].Label)
	}
}
