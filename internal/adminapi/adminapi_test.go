// Exercises the admin API against a real PostgreSQL instance. Skipped unless
// TEST_DATABASE_URL is set; see internal/store's TestMain for the
// connection convention these tests share.
package adminapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/tablefs/tablefs/internal/store"
	"github.com/tablefs/tablefs/internal/vfs"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "SKIP: TEST_DATABASE_URL not set")
		os.Exit(0)
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "SKIP: cannot open test DB: %v\n", err)
		os.Exit(0)
	}
	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "SKIP: test DB not reachable: %v\n", err)
		os.Exit(0)
	}
	testDB = db
	os.Exit(m.Run())
}

func newTestAPI(t *testing.T) *API {
	t.Helper()
	table := sanitize("adminapi_test_" + t.Name())
	s := store.New(testDB, "postgres", table)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		testDB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})
	return New(vfs.New(s), "test-secret", "")
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func TestHealthIsUnauthenticated(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin/v1/health", nil)
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin/v1/stat?path=/", nil)
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStatRejectsTokenFromOtherSecret(t *testing.T) {
	api := newTestAPI(t)
	other := New(nil, "wrong-secret", "")
	tok, err := other.IssueToken("op", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin/v1/stat?path=/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStatWithValidTokenReturnsRoot(t *testing.T) {
	api := newTestAPI(t)
	tok, err := api.IssueToken("op", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin/v1/stat?path=/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got statResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsDirectory {
		t.Fatalf("expected root to be a directory, got %+v", got)
	}
}

func TestTreeListsWrittenFile(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()
	if err := api.fs.WriteFile(ctx, "/hello.txt", []byte("hi")); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tok, err := api.IssueToken("op", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin/v1/tree?path=/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Entries []treeEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, e := range got.Entries {
		if e.Path == "/hello.txt" && e.IsFile {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected /hello.txt in tree, got %+v", got.Entries)
	}
}

func TestTokenEndpointDisabledWithoutPasswordHash(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/v1/token", nil)
	req.SetBasicAuth("admin", "whatever")
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTokenEndpointIssuesAndAcceptsToken(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	api := New(nil, "test-secret", hash)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/v1/token", nil)
	req.SetBasicAuth("admin", "correct-horse")
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Token == "" {
		t.Fatal("expected a non-empty token")
	}
}

func TestTokenEndpointRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	api := New(nil, "test-secret", hash)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/v1/token", nil)
	req.SetBasicAuth("admin", "wrong")
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestStatNotFoundMapsTo404(t *testing.T) {
	api := newTestAPI(t)
	tok, err := api.IssueToken("op", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin/v1/stat?path=/nope", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
