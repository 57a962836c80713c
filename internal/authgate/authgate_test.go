package authgate

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	creds := Credentials{}
	h := Middleware(creds, nil, okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareRequiresAuth(t *testing.T) {
	creds := Credentials{Username: "alice", Password: "secret"}
	h := Middleware(creds, nil, okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != `Basic realm=""` {
		t.Fatalf("unexpected WWW-Authenticate: %q", rec.Header().Get("WWW-Authenticate"))
	}
}

func TestMiddlewareAcceptsValidCredentials(t *testing.T) {
	creds := Credentials{Username: "alice", Password: "secret"}
	h := Middleware(creds, nil, okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:secret")))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsWrongPassword(t *testing.T) {
	creds := Credentials{Username: "alice", Password: "secret"}
	h := Middleware(creds, nil, okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:wrong")))
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareBypass(t *testing.T) {
	creds := Credentials{Username: "alice", Password: "secret"}
	h := Middleware(creds, func(r *http.Request) bool { return r.URL.Path == "/public" }, okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/public", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected bypass to succeed, got %d", rec.Code)
	}
}

func TestParseBasicAuthURLSafeBase64(t *testing.T) {
	encoded := base64.URLEncoding.EncodeToString([]byte("user:pa:ss"))
	user, pass, ok := parseBasicAuth("Basic " + encoded)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if user != "user" || pass != "pa:ss" {
		t.Fatalf("unexpected user/pass: %q %q", user, pass)
	}
}
