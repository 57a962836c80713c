package webdav

import (
	"net/http"
	"strconv"

	"github.com/tablefs/tablefs/internal/pathutil"
	"github.com/tablefs/tablefs/internal/vfs"
)

// handlePropfind implements §4.3.1: stat the target, list its children if
// it's a directory, and emit a <d:multistatus> with one <d:response> per
// resource.
func (h *Handler) handlePropfind(w http.ResponseWriter, r *http.Request, path string) {
	ctx := r.Context()

	st, err := h.fs.Stat(ctx, path)
	if err != nil {
		if code, ok := vfs.CodeOf(err); ok && code == vfs.ENOENT {
			if pathutil.IsRoot(path) {
				h.writeMultistatus(w, []response{propfindResponse(path, dirProps("/"))})
				return
			}
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		h.writeVFSError(w, err)
		return
	}

	responses := []response{propfindResponse(displayPath(path, st.IsDirectory), statToProp(path, st))}

	if st.IsDirectory {
		entries, err := h.fs.Readdir(ctx, path, false)
		if err != nil {
			h.writeVFSError(w, err)
			return
		}
		for _, entry := range entries {
			childStat, err := h.fs.Stat(ctx, entry.Path)
			if err != nil {
				continue
			}
			responses = append(responses, propfindResponse(displayPath(entry.Path, entry.IsDirectory), statToProp(entry.Path, childStat)))
		}
	}

	h.writeMultistatus(w, responses)
}

func displayPath(path string, isDir bool) string {
	if isDir && path != "/" && path[len(path)-1] != '/' {
		return path + "/"
	}
	return path
}

func statToProp(path string, st *vfs.Stat) prop {
	p := prop{DisplayName: pathutil.Base(path)}
	if st.IsDirectory {
		p.ResourceType = &resourceType{Collection: &struct{}{}}
		p.GetContentType = "httpd/unix-directory"
	} else {
		p.ResourceType = &resourceType{}
		p.GetContentType = "application/octet-stream"
		p.GetContentLength = strconv.FormatInt(st.Size, 10)
	}
	p.GetLastModified = httpDate(st.ModifiedAt)
	return p
}

func dirProps(path string) prop {
	return prop{
		DisplayName:    pathutil.Base(path),
		ResourceType:   &resourceType{Collection: &struct{}{}},
		GetContentType: "httpd/unix-directory",
	}
}

func propfindResponse(href string, p prop) response {
	return response{
		Href: encodeHref(href),
		Propstat: &propstat{
			Prop:   p,
			Status: "HTTP/1.1 200 OK",
		},
	}
}

func (h *Handler) writeMultistatus(w http.ResponseWriter, responses []response) {
	body, err := marshalMultistatus(&multistatus{XmlnsD: "DAV:", Responses: responses})
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(body)
}
