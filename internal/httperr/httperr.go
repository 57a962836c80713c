// Package httperr maps the VFS's engine-neutral error codes onto HTTP
// status codes (spec §7), shared by the WebDAV handler and the copy/move
// planner so that both report a 207 Multi-Status body using the same
// status numbers.
package httperr

import (
	"net/http"

	"github.com/tablefs/tablefs/internal/vfs"
)

// StatusForCode maps one VFS error code to an HTTP status.
func StatusForCode(code vfs.Code) int {
	switch code {
	case vfs.ENOENT:
		return http.StatusNotFound
	case vfs.EEXIST:
		return http.StatusPreconditionFailed
	case vfs.ENOTDIR, vfs.EISDIR, vfs.ENOTEMPTY:
		return http.StatusConflict
	case vfs.EINVAL:
		return http.StatusBadRequest
	case vfs.EACCES, vfs.EPERM:
		return http.StatusForbidden
	case vfs.ENOSPC, vfs.EFBIG:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// StatusForError maps any error to an HTTP status: a *vfs.Error is mapped
// by code; anything else is a 500.
func StatusForError(err error) int {
	if code, ok := vfs.CodeOf(err); ok {
		return StatusForCode(code)
	}
	return http.StatusInternalServerError
}
