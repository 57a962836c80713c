package webdav

import "net/url"

// decodePath tolerantly URI-decodes raw, returning raw unchanged if it
// isn't validly percent-encoded (spec §4.3: "a tolerant URI-decoder that
// returns the original on failure").
func decodePath(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// encodeHref percent-encodes p for use inside <d:href>, preserving "/".
func encodeHref(p string) string {
	u := &url.URL{Path: p}
	return u.EscapedPath()
}

// isBrowserUA reports whether ua looks like a browser per §4.3 ("UA starts
// with Mozilla/").
func isBrowserUA(ua string) bool {
	return IsBrowserUA(ua)
}

// IsBrowserUA reports whether ua looks like a browser per §4.3 ("UA starts
// with Mozilla/"). Exported so the auth gate's bypass predicate (spec
// §4.6: "browser static-serve bypass is allowed by design") can share the
// same rule the GET dispatch uses.
func IsBrowserUA(ua string) bool {
	return len(ua) >= len("Mozilla/") && ua[:len("Mozilla/")] == "Mozilla/"
}
