package webdav

import (
	"fmt"
	"html"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/tablefs/tablefs/internal/config"
	"github.com/tablefs/tablefs/internal/pathutil"
	"github.com/tablefs/tablefs/internal/vfs"
)

// serveBrowser implements §4.5: rewrite the request to an index file,
// serve it if found, and otherwise (mode "list") render an HTML directory
// listing.
func (h *Handler) serveBrowser(w http.ResponseWriter, r *http.Request, path string) {
	rawPath := decodePath(r.URL.Path)

	rewritten := path
	switch {
	case pathutil.IsRoot(path):
		rewritten = "/index.html"
	case strings.HasSuffix(rawPath, "/"):
		rewritten = pathutil.Join(path, "index.html")
	}

	st, err := h.fs.Stat(r.Context(), rewritten)
	if err == nil && st.IsFile {
		h.serveBrowserFile(w, r, rewritten, st)
		return
	}

	if h.browser != config.BrowserList {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	h.serveBrowserListing(w, r, path)
}

func (h *Handler) serveBrowserFile(w http.ResponseWriter, r *http.Request, path string, st *vfs.Stat) {
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == st.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if since, err := time.Parse(http.TimeFormat, ims); err == nil && !since.Before(st.ModifiedAt) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("ETag", st.ETag)
	w.Header().Set("Last-Modified", httpDate(st.ModifiedAt))
	w.Header().Set("Content-Type", contentType)

	content, err := h.fs.ReadFile(r.Context(), path)
	if err != nil {
		h.writeVFSError(w, err)
		return
	}
	w.Write(content)
}

func (h *Handler) serveBrowserListing(w http.ResponseWriter, r *http.Request, path string) {
	entries, err := h.fs.Readdir(r.Context(), path, false)
	if err != nil {
		h.writeVFSError(w, err)
		return
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"></head><body>\n")
	fmt.Fprintf(&b, "<h1>Index of %s</h1>\n<ul>\n", html.EscapeString(path))

	if !pathutil.IsRoot(path) {
		fmt.Fprintf(&b, "<li><a href=\"%s\">..</a></li>\n", html.EscapeString(pathutil.Dir(path)+"/"))
	}

	for _, entry := range entries {
		name := entry.Name
		href := entry.Path
		if entry.IsDirectory {
			name += "/"
		}
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", html.EscapeString(href), html.EscapeString(name))
	}

	b.WriteString("</ul>\n</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(b.String()))
}
