// Exercises the WebDAV handler end-to-end against a real PostgreSQL
// instance, covering the literal scenarios in spec §8. Skipped unless
// TEST_DATABASE_URL is set.
package webdav

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/tablefs/tablefs/internal/config"
	"github.com/tablefs/tablefs/internal/copymove"
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

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	table := sanitize("webdav_test_" + t.Name())
	s := store.New(testDB, "postgres", table)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() { testDB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)) })

	fs := vfs.New(s)
	return NewHandler(fs, copymove.New(fs), config.BrowserDisabled)
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

func do(h *Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPutGetRoundTripWithETagConditionalGet(t *testing.T) {
	h := newTestHandler(t)

	rec := do(h, http.MethodPut, "/hello.txt", []byte("hi"), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT: expected 201, got %d", rec.Code)
	}

	rec = do(h, http.MethodGet, "/hello.txt", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "hi" {
		t.Fatalf("GET: expected 200 'hi', got %d %q", rec.Code, rec.Body.String())
	}
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	rec = do(h, http.MethodGet, "/hello.txt", nil, map[string]string{"If-None-Match": etag})
	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}
}

func TestPropfindListsChild(t *testing.T) {
	h := newTestHandler(t)

	do(h, http.MethodPut, "/a/b/c.bin", []byte{0, 1, 2}, nil)

	rec := do(h, "PROPFIND", "/a", nil, map[string]string{"Depth": "1"})
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("PROPFIND /a: expected 207, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("b/")) && !bytes.Contains(rec.Body.Bytes(), []byte("b")) {
		t.Fatalf("expected child 'b' in body: %s", rec.Body.String())
	}

	rec = do(h, "PROPFIND", "/a/b", nil, nil)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("PROPFIND /a/b: expected 207, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("c.bin")) {
		t.Fatalf("expected c.bin in body: %s", rec.Body.String())
	}
}

func TestMkcolThenDeleteThenPropfindNotFound(t *testing.T) {
	h := newTestHandler(t)

	rec := do(h, "MKCOL", "/d", nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("MKCOL: expected 201, got %d", rec.Code)
	}

	rec = do(h, http.MethodDelete, "/d", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE: expected 204, got %d", rec.Code)
	}

	rec = do(h, "PROPFIND", "/d", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("PROPFIND: expected 404, got %d", rec.Code)
	}
}

func TestCopyWithOverwriteFalsePreconditionFailed(t *testing.T) {
	h := newTestHandler(t)

	do(h, http.MethodPut, "/x/y.txt", []byte("Y"), nil)

	rec := do(h, "COPY", "/x", nil, map[string]string{"Destination": "http://example.com/z", "Depth": "infinity"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("COPY: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodGet, "/z/y.txt", nil, nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "Y" {
		t.Fatalf("GET /z/y.txt: expected 200 'Y', got %d %q", rec.Code, rec.Body.String())
	}

	rec = do(h, "COPY", "/x", nil, map[string]string{"Destination": "http://example.com/z", "Overwrite": "F"})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("COPY with Overwrite F: expected 412, got %d", rec.Code)
	}
}

func TestMoveSelfContainmentForbidden(t *testing.T) {
	h := newTestHandler(t)

	do(h, "MKCOL", "/a", nil, nil)

	rec := do(h, "MOVE", "/a", nil, map[string]string{"Destination": "http://example.com/a/sub"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestOptionsAdvertisesClass1(t *testing.T) {
	h := newTestHandler(t)

	rec := do(h, http.MethodOptions, "/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("DAV") != "1" {
		t.Fatalf("expected DAV: 1, got %q", rec.Header().Get("DAV"))
	}
}

func TestProppatchNotImplemented(t *testing.T) {
	h := newTestHandler(t)

	rec := do(h, "PROPPATCH", "/hello.txt", nil, nil)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
}

func TestUnknownMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t)

	rec := do(h, "TRACE", "/", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") == "" {
		t.Fatal("expected Allow header on 405")
	}
}
