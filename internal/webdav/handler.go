// Package webdav implements the WebDAV protocol handler (spec component F)
// and the optional browser index (component G) on top of the VFS and the
// copy/move planner.
package webdav

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tablefs/tablefs/internal/config"
	"github.com/tablefs/tablefs/internal/copymove"
	"github.com/tablefs/tablefs/internal/httperr"
	"github.com/tablefs/tablefs/internal/logging"
	"github.com/tablefs/tablefs/internal/pathutil"
	"github.com/tablefs/tablefs/internal/vfs"
)

// streamThreshold decides whether GET materializes the body (readFile) or
// streams it (createReadStream), per §4.4.
const streamThreshold = 1 << 20 // 1 MiB

const allowHeader = "PROPFIND, MOVE, DELETE, GET, PUT, MKCOL"

// Handler serves Class-1 WebDAV requests over a VFS.
type Handler struct {
	fs      *vfs.FS
	planner *copymove.Planner
	browser config.BrowserMode
}

// NewHandler builds a WebDAV handler. browser controls the optional
// directory-index rendering path (§4.5); pass config.BrowserDisabled to
// turn it off.
func NewHandler(fs *vfs.FS, planner *copymove.Planner, browser config.BrowserMode) *Handler {
	return &Handler{fs: fs, planner: planner, browser: browser}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := pathutil.Normalize(decodePath(r.URL.Path))

	switch r.Method {
	case http.MethodOptions:
		h.handleOptions(w)
	case "PROPFIND":
		h.handlePropfind(w, r, path)
	case http.MethodGet:
		if h.browser != config.BrowserDisabled && isBrowserUA(r.UserAgent()) {
			h.serveBrowser(w, r, path)
			return
		}
		h.handleGet(w, r, path)
	case http.MethodPut:
		h.handlePut(w, r, path)
	case http.MethodDelete:
		h.handleDelete(w, r, path)
	case "MKCOL":
		h.handleMkcol(w, r, path)
	case "MOVE":
		h.handleMoveOrCopy(w, r, path, true)
	case "COPY":
		h.handleMoveOrCopy(w, r, path, false)
	case "PROPPATCH":
		http.Error(w, "Not Implemented", http.StatusNotImplemented)
	default:
		w.Header().Set("Allow", allowHeader)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleOptions(w http.ResponseWriter) {
	w.Header().Set("Allow", allowHeader)
	w.Header().Set("DAV", "1")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", allowHeader)
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Depth, Destination, Overwrite, If-None-Match, If-Modified-Since")
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, path string) {
	st, err := h.fs.Stat(r.Context(), path)
	if err != nil {
		h.writeVFSError(w, err)
		return
	}
	if st.IsDirectory {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == st.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", st.ETag)
	w.Header().Set("Last-Modified", st.ModifiedAt.Format(http.TimeFormat))
	w.Header().Set("Content-Disposition", "attachment")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(st.Size, 10))

	if st.Size <= streamThreshold {
		content, err := h.fs.ReadFile(r.Context(), path)
		if err != nil {
			h.writeVFSError(w, err)
			return
		}
		w.Write(content)
		return
	}

	rs, err := h.fs.CreateReadStream(r.Context(), path)
	if err != nil {
		h.writeVFSError(w, err)
		return
	}
	io.Copy(w, rs)
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request, path string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := h.fs.WriteFile(r.Context(), path, body); err != nil {
		h.writeVFSError(w, err)
		return
	}
	logging.WithContext(r.Context()).Info("PUT", zap.String("path", path), zap.Int("size", len(body)))
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, path string) {
	if err := h.fs.Rm(r.Context(), path, true, true); err != nil {
		h.writeVFSError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMkcol(w http.ResponseWriter, r *http.Request, path string) {
	if err := h.fs.Mkdir(r.Context(), path, true); err != nil {
		h.writeVFSError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// writeVFSError maps a *vfs.Error (or unknown error) to an HTTP status and
// writes it as the response body.
func (h *Handler) writeVFSError(w http.ResponseWriter, err error) {
	status := httperr.StatusForError(err)
	http.Error(w, err.Error(), status)
}

func httpDate(t time.Time) string {
	return t.Format(http.TimeFormat)
}
