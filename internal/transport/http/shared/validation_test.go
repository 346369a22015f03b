package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfaCode" validate:"omitempty,len=6,numeric"`
}

func TestValidatorStructUsesJSONNames(t *testing.T) {
	v := NewValidator()
	v.Struct(loginPayload{Email: "nope", MFACode: "12"})

	got := map[string]string{}
	for _, issue := range v.Issues() {
		got[issue.Field] = issue.Reason
	}
	want := map[string]string{
		"email":    "must be a valid email",
		"password": "is required",
		"mfaCode":  "must be exactly 6 characters",
	}
	for field, reason := range want {
		if got[field] != reason {
			t.Fatalf("%s: got %q, want %q (all: %v)", field, got[field], reason, got)
		}
	}
}

func TestValidatorReject(t *testing.T) {
	v := NewValidator()
	v.Required("email", "  ", "is required")

	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req-1") {
		t.Fatal("expected reject")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []ValidationIssue `json:"fields"`
			} `json:"details"`
		} `json:"error"`
		RequestID string `json:"requestId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "validation_error" || len(env.Error.Details.Fields) != 1 || env.RequestID != "req-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		limit      int64
		wantOK     bool
		wantStatus int
	}{
		{name: "valid", body: `{"email":"a@b.co","password":"x"}`, wantOK: true},
		{name: "unknown field", body: `{"email":"a@b.co","role":"admin"}`, wantStatus: http.StatusBadRequest},
		{name: "trailing data", body: `{"email":"a@b.co"}{}`, wantStatus: http.StatusBadRequest},
		{name: "not json", body: `email=a`, wantStatus: http.StatusBadRequest},
		{name: "too large", body: `{"email":"` + strings.Repeat("a", 100) + `"}`, limit: 16, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			if tc.limit > 0 {
				req.Body = http.MaxBytesReader(rec, req.Body, tc.limit)
			}
			var dst loginPayload
			ok := DecodeJSON(rec, req, &dst, "")
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok && rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}
