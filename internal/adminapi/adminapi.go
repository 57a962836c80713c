// Package adminapi implements the optional read-only JSON management API
// that spec.md §1 lists as an external collaborator "specified only at
// interface level." It exposes the VFS for inspection (stat, tree, health)
// without any write verb, gated by a bearer JWT so it can sit on the same
// listener as the WebDAV surface without colliding with PROPFIND of "/".
package adminapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tablefs/tablefs/internal/httperr"
	"github.com/tablefs/tablefs/internal/logging"
	"github.com/tablefs/tablefs/internal/pathutil"
	"github.com/tablefs/tablefs/internal/vfs"
)

// tokenTTL bounds how long a minted bearer token is accepted. Operators
// re-authenticate rather than refresh, matching the API's read-only scope.
const tokenTTL = time.Hour

// Claims is the bearer token payload; the admin API has one capability
// ("read"), so there is nothing to authorize beyond a valid signature.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// API serves the read-only management endpoints over a VFS.
type API struct {
	fs           *vfs.FS
	secret       []byte
	passwordHash []byte // bcrypt hash of the management password, empty disables /token
}

// New builds an API gated by HS256 tokens signed with secret. passwordHash,
// if non-empty, is a bcrypt hash of the management password accepted by
// POST /admin/v1/token; pass an empty string to disable that endpoint and
// mint tokens only via IssueToken (e.g. from operator tooling at deploy
// time).
func New(fs *vfs.FS, secret, passwordHash string) *API {
	return &API{fs: fs, secret: []byte(secret), passwordHash: []byte(passwordHash)}
}

// HashPassword bcrypt-hashes a management password for storage in
// configuration, so the plaintext never needs to sit in the environment
// alongside the running server.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// IssueToken mints a bearer token for subject, valid for ttl. Callable
// directly by operator tooling (e.g. a CLI invoked at deploy time), and used
// internally by handleToken once a password check succeeds.
func (a *API) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "tablefs-adminapi",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Handler returns the mux for mounting under /admin/v1.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/v1/health", a.handleHealth)
	mux.HandleFunc("/admin/v1/token", a.handleToken)
	mux.Handle("/admin/v1/stat", a.requireAuth(http.HandlerFunc(a.handleStat)))
	mux.Handle("/admin/v1/tree", a.requireAuth(http.HandlerFunc(a.handleTree)))
	return mux
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleToken exchanges the management password (sent as the password half
// of HTTP Basic auth; the username is ignored) for a bearer token. Disabled
// when the API was built without a password hash.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if len(a.passwordHash) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "token issuance is disabled"})
		return
	}
	_, password, ok := r.BasicAuth()
	if !ok || bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="tablefs-admin"`)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	tok, err := a.IssueToken("admin", tokenTTL)
	if err != nil {
		logging.L().Error("issue admin token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token issuance failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok, "expires_in": tokenTTL.String()})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		claims := &Claims{}
		parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		})
		if err != nil || !parsed.Valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

type statResponse struct {
	Path        string    `json:"path"`
	IsFile      bool      `json:"is_file"`
	IsDirectory bool      `json:"is_directory"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
	BirthTime   time.Time `json:"birth_time"`
	ETag        string    `json:"etag,omitempty"`
}

func (a *API) handleStat(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	st, err := a.fs.Stat(r.Context(), path)
	if err != nil {
		// As with PROPFIND, the root is reported as a directory even when
		// the table is empty.
		if code, ok := vfs.CodeOf(err); ok && code == vfs.ENOENT && pathutil.IsRoot(path) {
			writeJSON(w, http.StatusOK, statResponse{Path: "/", IsDirectory: true})
			return
		}
		writeVFSError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statResponse{
		Path:        st.Path,
		IsFile:      st.IsFile,
		IsDirectory: st.IsDirectory,
		Size:        st.Size,
		ModifiedAt:  st.ModifiedAt,
		BirthTime:   st.BirthTime,
		ETag:        st.ETag,
	})
}

type treeEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsFile      bool   `json:"is_file"`
	IsDirectory bool   `json:"is_directory"`
}

func (a *API) handleTree(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	recursive := r.URL.Query().Get("recursive") == "true"

	entries, err := a.fs.Readdir(r.Context(), path, recursive)
	if err != nil {
		writeVFSError(w, err)
		return
	}

	out := make([]treeEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, treeEntry{
			Name:        e.Name,
			Path:        e.Path,
			IsFile:      e.IsFile,
			IsDirectory: e.IsDirectory,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"path": path, "entries": out})
}

func writeVFSError(w http.ResponseWriter, err error) {
	logging.L().Debug("adminapi error", zap.Error(err))
	writeJSON(w, httperr.StatusForError(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
