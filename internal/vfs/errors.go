package vfs

import "fmt"

// Code is an engine-neutral filesystem error code, independent of any
// particular OS errno or SQL driver error.
type Code string

const (
	ENOENT    Code = "ENOENT"
	EEXIST    Code = "EEXIST"
	EISDIR    Code = "EISDIR"
	ENOTDIR   Code = "ENOTDIR"
	ENOTEMPTY Code = "ENOTEMPTY"
	EINVAL    Code = "EINVAL"
	EPERM     Code = "EPERM"
	EACCES    Code = "EACCES"
	ENOSPC    Code = "ENOSPC"
	EFBIG     Code = "EFBIG"
)

// Error is the single error type every VFS operation returns through.
type Error struct {
	Code    Code
	Syscall string
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Syscall, e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", e.Syscall, e.Code, e.Path)
}

func newErr(code Code, syscall, path string) *Error {
	return &Error{Code: code, Syscall: syscall, Path: path}
}

func newErrf(code Code, syscall, path, format string, args ...interface{}) *Error {
	return &Error{Code: code, Syscall: syscall, Path: path, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err, if err (or something it wraps) is a
// *Error. ok is false for any other error, including nil.
func CodeOf(err error) (code Code, ok bool) {
	var verr *Error
	if asError(err, &verr) {
		return verr.Code, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if verr, ok := err.(*Error); ok {
			*target = verr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
