package webdav

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/tablefs/tablefs/internal/copymove"
	"github.com/tablefs/tablefs/internal/pathutil"
)

// handleMoveOrCopy implements §4.3.2: parse Destination/Overwrite/Depth,
// run the planner, and render its result as 201/204/207.
func (h *Handler) handleMoveOrCopy(w http.ResponseWriter, r *http.Request, src string, isMove bool) {
	dest, ok := h.parseDestination(w, r)
	if !ok {
		return
	}

	overwrite := r.Header.Get("Overwrite") != "F"
	depth, err := parseDepth(r.Header.Get("Depth"))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var result *copymove.Result
	if isMove {
		result, err = h.planner.Move(r.Context(), src, dest, depth, overwrite)
	} else {
		result, err = h.planner.Copy(r.Context(), src, dest, depth, overwrite)
	}
	if err != nil {
		if perr, ok := err.(*copymove.Error); ok {
			http.Error(w, perr.Message, perr.Status)
			return
		}
		h.writeVFSError(w, err)
		return
	}

	if len(result.Errors) == 0 {
		if result.Status == http.StatusCreated {
			w.Header().Set("Location", encodeHref(dest))
		}
		w.WriteHeader(result.Status)
		return
	}

	responses := make([]response, 0, len(result.Errors))
	for _, re := range result.Errors {
		responses = append(responses, response{
			Href:                encodeHref(re.Href),
			Status:              statusLine(re.Status),
			ResponseDescription: re.Description,
		})
	}
	h.writeMultistatus(w, responses)
}

// parseDestination validates the Destination header: if it carries a host,
// that host must equal the request's Host (502 otherwise). A relative URI
// is accepted and its path used as is.
func (h *Handler) parseDestination(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.Header.Get("Destination")
	if raw == "" {
		http.Error(w, "Destination header required", http.StatusBadRequest)
		return "", false
	}

	destURL, err := url.Parse(raw)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return "", false
	}

	if destURL.Host != "" && destURL.Host != r.Host {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return "", false
	}

	return pathutil.Normalize(decodePath(destURL.Path)), true
}

func parseDepth(raw string) (int, error) {
	switch raw {
	case "", "infinity":
		return copymove.DepthInfinity, nil
	case "0":
		return copymove.DepthZero, nil
	default:
		return 0, &copymove.Error{Status: http.StatusBadRequest, Message: "invalid Depth header"}
	}
}

func statusLine(status int) string {
	return "HTTP/1.1 " + strconv.Itoa(status) + " " + http.StatusText(status)
}
