// Package authgate implements the optional Basic Auth gate (spec
// component H): every non-bypassed request must present
// Authorization: Basic base64(user:pass) matching the configured
// credentials, or receive a 401 challenge.
package authgate

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

// Credentials holds the expected username/password pair. An empty
// Username disables the gate entirely.
type Credentials struct {
	Username string
	Password string
}

// Enabled reports whether the gate is configured to enforce anything.
func (c Credentials) Enabled() bool {
	return c.Username != ""
}

// Bypass reports whether r should skip the gate, e.g. the browser
// static-serve path (spec §4.6: "browser static-serve bypass is allowed
// by design").
type Bypass func(r *http.Request) bool

// Middleware wraps next with the Basic Auth gate. If creds is not
// Enabled(), requests pass through untouched.
func Middleware(creds Credentials, bypass Bypass, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !creds.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		if bypass != nil && bypass(r) {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := parseBasicAuth(r.Header.Get("Authorization"))
		if !ok || !credentialsMatch(creds, user, pass) {
			w.Header().Set("WWW-Authenticate", `Basic realm=""`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func credentialsMatch(creds Credentials, user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(creds.Password)) == 1
	return userOK && passOK
}

// parseBasicAuth decodes "Basic <base64>", accepting both standard and
// URL-safe base64 alphabets (spec §4.6: "-_ accepted"), then splits the
// decoded "user:pass" on the first colon.
func parseBasicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	encoded := header[len(prefix):]

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return "", "", false
		}
	}

	idx := strings.IndexByte(string(decoded), ':')
	if idx < 0 {
		return "", "", false
	}
	return string(decoded[:idx]), string(decoded[idx+1:]), true
}
