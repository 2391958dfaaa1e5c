package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/marsdhp/sme-interview/backend/internal/token"
)

func setupAuth(t *testing.T, required bool) (http.Handler, token.Token) {
	t.Helper()

	tokens, err := token.Open(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("open tokens: %v", err)
	}
	issued, err := tokens.Add("test")
	if err != nil {
		t.Fatalf("add token: %v", err)
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Token-Name", TokenName(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
	return Auth(tokens, required)(inner), issued
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h, _ := setupAuth(t, true)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthRejectsWrongToken(t *testing.T) {
	h, _ := setupAuth(t, true)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	h, issued := setupAuth(t, true)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Value)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Token-Name"); got != "test" {
		t.Errorf("expected token name in context, got %q", got)
	}
}

func TestAuthAcceptsAccessTokenHeader(t *testing.T) {
	h, issued := setupAuth(t, true)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("X-Access-Token", issued.Value)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	h, _ := setupAuth(t, false)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", resp.Code)
	}
}
