package sessionhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/identity"
	"hrportal/internal/domain/navigation"
	"hrportal/internal/domain/session"
	"hrportal/internal/transport/http/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type state struct {
	Phase         session.Phase    `json:"phase"`
	Loading       bool             `json:"loading"`
	Authenticated bool             `json:"authenticated"`
	User          *session.Session `json:"user"`
}

// gatedExchange blocks Authenticate until release is closed.
type gatedExchange struct {
	*identity.DemoExchange
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedExchange) Authenticate(ctx context.Context, creds session.Credentials) (session.Identity, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return session.Identity{}, ctx.Err()
	}
	return g.DemoExchange.Authenticate(ctx, creds)
}

type resolutions struct {
	mu  sync.Mutex
	got []string
}

func (r *resolutions) ObserveResolution(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, outcome)
}

type testAPI struct {
	handler http.Handler
	store   *session.MemoryStore
	cookie  *http.Cookie
}

func newTestAPI(t *testing.T, exchange session.CredentialExchange, signup bool, observer ResolutionObserver) *testAPI {
	t.Helper()
	store := session.NewMemoryStore()
	registry := session.NewRegistry(func(slot string) *session.Provider {
		return session.NewProvider(slot, store, exchange, session.WithExchangeTimeout(time.Second))
	})
	h := NewHandler(registry, observer, signup)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientHandle(middleware.ClientCookieOptions{Secret: "test-secret", TTL: time.Hour}))
	router.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r, nil)
	})
	return &testAPI{handler: router, store: store}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a.cookie != nil {
		req.AddCookie(a.cookie)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.ClientCookieName {
			a.cookie = c
		}
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
	}
	return rec, env
}

func decodeState(t *testing.T, env envelope) state {
	t.Helper()
	var s state
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return s
}

func demo() *identity.DemoExchange {
	return identity.NewDemoExchange([]string{"admin@example.com"}, 0)
}

func TestAnonymousSession(t *testing.T) {
	a := newTestAPI(t, demo(), true, nil)
	rec, env := a.do(t, http.MethodGet, "/api/v1/session", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	s := decodeState(t, env)
	if s.Authenticated || s.Loading || s.Phase != session.PhaseUnauthenticated || s.User != nil {
		t.Fatalf("unexpected anonymous state: %+v", s)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("session state must not be cached")
	}
}

func TestLoginRolesAndNavigation(t *testing.T) {
	tests := []struct {
		email     string
		wantPhase session.Phase
		wantEntry navigation.RouteID
		denied    string
	}{
		{"admin@example.com", session.PhaseAuthenticatedElevated, navigation.RouteEmployees, "/dashboard/my-profile"},
		{"anyone@else.com", session.PhaseAuthenticatedEmployee, navigation.RouteMyProfile, "/dashboard/employees"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.email, func(t *testing.T) {
			a := newTestAPI(t, demo(), true, nil)
			rec, env := a.do(t, http.MethodPost, "/api/v1/session/login", map[string]string{"email": tc.email, "password": "pw"})
			if rec.Code != http.StatusOK {
				t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
			}
			if s := decodeState(t, env); s.Phase != tc.wantPhase || s.User == nil || s.User.Email != tc.email {
				t.Fatalf("unexpected state after login: %+v", s)
			}

			_, env = a.do(t, http.MethodGet, "/api/v1/navigation", nil)
			var nav struct {
				Entries []navigation.Entry `json:"entries"`
			}
			if err := json.Unmarshal(env.Data, &nav); err != nil {
				t.Fatalf("decode navigation: %v", err)
			}
			found := false
			for _, e := range nav.Entries {
				if e.ID == tc.wantEntry {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s in %+v", tc.wantEntry, nav.Entries)
			}

			_, env = a.do(t, http.MethodGet, "/api/v1/routes/resolve?path="+tc.denied, nil)
			var res navigation.Resolution
			if err := json.Unmarshal(env.Data, &res); err != nil {
				t.Fatalf("decode resolution: %v", err)
			}
			if res.Outcome != navigation.OutcomeNotFound {
				t.Fatalf("expected not_found for %s, got %+v", tc.denied, res)
			}
		})
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"missing password", map[string]string{"email": "a@b.co"}, http.StatusBadRequest, "validation_error"},
		{"bad mfa format", map[string]string{"email": "a@b.co", "password": "x", "mfaCode": "12"}, http.StatusBadRequest, "validation_error"},
		{"unknown field", map[string]string{"email": "a@b.co", "password": "x", "role": "admin"}, http.StatusBadRequest, "invalid_payload"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAPI(t, demo(), true, nil)
			rec, env := a.do(t, http.MethodPost, "/api/v1/session/login", tc.body)
			if rec.Code != tc.wantStatus || env.Error == nil || env.Error.Code != tc.wantCode {
				t.Fatalf("got %d %+v", rec.Code, env.Error)
			}
		})
	}
}

func TestRegisterForcesDefaultRole(t *testing.T) {
	a := newTestAPI(t, demo(), true, nil)
	rec, env := a.do(t, http.MethodPost, "/api/v1/session/register", map[string]string{
		"fullName": "New Hire",
		"email":    "admin@example.com",
		"password": "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if s := decodeState(t, env); s.Phase != session.PhaseAuthenticatedEmployee || s.User.FullName != "New Hire" {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestRegisterWithoutPasswordIsValidationError(t *testing.T) {
	a := newTestAPI(t, demo(), true, nil)
	rec, env := a.do(t, http.MethodPost, "/api/v1/session/register", map[string]string{
		"fullName": "New Hire",
		"email":    "new@example.com",
	})
	if rec.Code != http.StatusBadRequest || env.Error.Code != "validation_error" || env.Error.Message != "password is required" {
		t.Fatalf("got %d %+v", rec.Code, env.Error)
	}
	_, env = a.do(t, http.MethodGet, "/api/v1/session", nil)
	if decodeState(t, env).Authenticated {
		t.Fatal("failed registration must not sign in")
	}
}

func TestRegisterDisabled(t *testing.T) {
	a := newTestAPI(t, demo(), false, nil)
	rec, env := a.do(t, http.MethodPost, "/api/v1/session/register", map[string]string{"fullName": "x", "email": "x@y.co", "password": "secret1"})
	if rec.Code != http.StatusForbidden || env.Error.Code != "signup_disabled" {
		t.Fatalf("got %d %+v", rec.Code, env.Error)
	}
}

func TestLogoutClearsSessionAndSnapshot(t *testing.T) {
	a := newTestAPI(t, demo(), true, nil)
	a.do(t, http.MethodPost, "/api/v1/session/login", map[string]string{"email": "anyone@else.com", "password": "pw"})

	rec, env := a.do(t, http.MethodPost, "/api/v1/session/logout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	var out map[string]string
	_ = json.Unmarshal(env.Data, &out)
	if out["location"] != navigation.LoginPath {
		t.Fatalf("expected login location, got %v", out)
	}

	_, env = a.do(t, http.MethodGet, "/api/v1/routes/resolve?path=/dashboard", nil)
	var res navigation.Resolution
	_ = json.Unmarshal(env.Data, &res)
	if res.Outcome != navigation.OutcomeRedirect || res.Location != "/login?returnTo=%2Fdashboard" {
		t.Fatalf("expected redirect after logout, got %+v", res)
	}

	if rec, _ := a.do(t, http.MethodPost, "/api/v1/session/logout", nil); rec.Code != http.StatusOK {
		t.Fatalf("second logout must be a no-op, got %d", rec.Code)
	}
}

func TestConcurrentLoginIsBusy(t *testing.T) {
	gate := &gatedExchange{DemoExchange: demo(), started: make(chan struct{}), release: make(chan struct{})}
	obs := &resolutions{}
	a := newTestAPI(t, gate, true, obs)
	a.do(t, http.MethodGet, "/api/v1/session", nil)

	done := make(chan int, 1)
	go func() {
		body := bytes.NewBufferString(`{"email":"anyone@else.com","password":"pw"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/session/login", body)
		req.AddCookie(a.cookie)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		done <- rec.Code
	}()
	<-gate.started

	rec, env := a.do(t, http.MethodPost, "/api/v1/session/login", map[string]string{"email": "anyone@else.com", "password": "pw"})
	if rec.Code != http.StatusConflict || env.Error.Code != "busy" {
		t.Fatalf("expected 409 busy, got %d %+v", rec.Code, env.Error)
	}

	_, env = a.do(t, http.MethodGet, "/api/v1/routes/resolve?path=/dashboard", nil)
	var res navigation.Resolution
	_ = json.Unmarshal(env.Data, &res)
	if res.Outcome != navigation.OutcomeLoading {
		t.Fatalf("expected loading while login is in flight, got %+v", res)
	}

	close(gate.release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first login: expected 200, got %d", code)
	}
	if len(obs.got) != 1 || obs.got[0] != string(navigation.OutcomeLoading) {
		t.Fatalf("unexpected observed resolutions: %v", obs.got)
	}
}

func TestResolveRequiresPath(t *testing.T) {
	a := newTestAPI(t, demo(), true, nil)
	rec, _ := a.do(t, http.MethodGet, "/api/v1/routes/resolve", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSignInAndOutIssueNewClientHandle(t *testing.T) {
	a := newTestAPI(t, demo(), true, nil)
	a.do(t, http.MethodGet, "/api/v1/session", nil)
	planted := a.cookie

	rec, _ := a.do(t, http.MethodPost, "/api/v1/session/login", map[string]string{"email": "admin@example.com", "password": "pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	if a.cookie.Value == planted.Value {
		t.Fatal("login must issue a new client cookie")
	}

	stale := &testAPI{handler: a.handler, store: a.store, cookie: planted}
	_, env := stale.do(t, http.MethodGet, "/api/v1/session", nil)
	if decodeState(t, env).Authenticated {
		t.Fatal("the pre-login client cookie must not reach the signed-in session")
	}

	signedIn := a.cookie
	a.do(t, http.MethodPost, "/api/v1/session/logout", nil)
	if a.cookie.Value == signedIn.Value {
		t.Fatal("logout must issue a new client cookie")
	}
}
