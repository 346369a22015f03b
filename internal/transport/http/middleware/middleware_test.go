package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"hrportal/internal/domain/auth"
	"hrportal/internal/requestctx"
)

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Fatal("expected request id in context")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestRequestIDKeepsCallerValue(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("expected caller request id, got %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestClientHandleIssuesAndReusesCookie(t *testing.T) {
	opts := ClientCookieOptions{Secret: "test-secret", TTL: time.Hour}
	var seen string
	handler := ClientHandle(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.GetClientID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != ClientCookieName || !cookies[0].HttpOnly {
		t.Fatalf("expected one http-only client cookie, got %+v", cookies)
	}
	first := seen
	if first == "" {
		t.Fatal("expected client id in context")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != first {
		t.Fatalf("expected client id %q to be reused, got %q", first, seen)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("valid cookie must not be reissued")
	}
}

func TestClientHandleRejectsForgedCookie(t *testing.T) {
	forged, err := auth.GenerateClientToken("other-secret", "victim", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	var seen string
	handler := ClientHandle(ClientCookieOptions{Secret: "test-secret", TTL: time.Hour})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestctx.GetClientID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: forged})
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "victim" || seen == "" {
		t.Fatalf("forged client id must be replaced, got %q", seen)
	}
}

func TestReissueClientReplacesCookie(t *testing.T) {
	opts := ClientCookieOptions{Secret: "test-secret", TTL: time.Hour}
	handler := ClientHandle(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := ReissueClient(w, r, "rotated"); err != nil {
			t.Errorf("reissue: %v", err)
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected a single client cookie, got %d", len(cookies))
	}
	claims, err := auth.ParseClientToken("test-secret", cookies[0].Value)
	if err != nil || claims.ClientID != "rotated" {
		t.Fatalf("expected cookie for rotated client, got %+v, %v", claims, err)
	}
}

func TestReissueClientNeedsClientHandle(t *testing.T) {
	err := ReissueClient(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), "x")
	if !errors.Is(err, ErrNoClientHandle) {
		t.Fatalf("expected ErrNoClientHandle, got %v", err)
	}
}

func TestLoggerWritesAccessLine(t *testing.T) {
	var buf bytes.Buffer
	router := chi.NewRouter()
	router.Use(RequestID)
	router.Use(Logger(zerolog.New(&buf)))
	router.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		GetLogger(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/7", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("decode access line: %v", err)
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["route"] != "/things/{id}" || entry["requestId"] == "" {
		t.Fatalf("unexpected access line: %v", entry)
	}
}

type recordedRequest struct {
	method, route string
	status        int
}

type fakeRecorder struct{ got []recordedRequest }

func (f *fakeRecorder) Record(method, route string, status int, _ time.Duration) {
	f.got = append(f.got, recordedRequest{method, route, status})
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}
	router := chi.NewRouter()
	router.Use(Metrics(rec))
	router.Get("/employees/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/employees/42", nil))
	if len(rec.got) != 1 || rec.got[0].route != "/employees/{id}" || rec.got[0].status != http.StatusAccepted {
		t.Fatalf("unexpected recorded request: %+v", rec.got)
	}
}

func TestSecureHeadersAndNoStore(t *testing.T) {
	handler := SecureHeaders(true)(NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Frame-Options": "DENY",
		"Cache-Control":   "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS in production")
	}
}

func TestBodyLimit(t *testing.T) {
	handler := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected body limit to trip, got %d", rec.Code)
	}
}
