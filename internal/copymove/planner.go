// Package copymove implements the recursive Copy/Move planner (spec
// component E): precondition checks, Depth-bounded recursive directory
// copy, and per-resource failure collection for 207 Multi-Status bodies.
package copymove

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tablefs/tablefs/internal/httperr"
	"github.com/tablefs/tablefs/internal/pathutil"
	"github.com/tablefs/tablefs/internal/vfs"
)

// DepthInfinity requests unbounded recursion; DepthZero copies/moves only
// the resource itself.
const (
	DepthZero     = 0
	DepthInfinity = -1
)

// Error is a top-level planner failure, carrying the HTTP status the handler
// should send verbatim. Precondition failures are reported before any
// mutation happens; a failed single-file copy is also reported this way,
// after an overwritten destination has already been removed.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func fail(status int, format string, args ...interface{}) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// ResourceError is one failed child during a recursive operation,
// rendered as a <d:response> in the 207 body.
type ResourceError struct {
	Href        string
	Status      int
	Description string
}

// Result is a successful plan outcome: either a clean top-level status, or
// a non-empty list of per-resource errors that the handler renders as 207.
type Result struct {
	Status int
	Errors []ResourceError
}

// Planner executes Copy and Move over a VFS.
type Planner struct {
	fs *vfs.FS
}

// New builds a Planner over fs.
func New(fs *vfs.FS) *Planner {
	return &Planner{fs: fs}
}

// Copy plans and executes a COPY of src onto dest, per §4.2.
func (p *Planner) Copy(ctx context.Context, src, dest string, depth int, overwrite bool) (*Result, error) {
	srcK := pathutil.Normalize(src)
	destK := pathutil.Normalize(dest)

	srcStat, err := p.fs.Stat(ctx, srcK)
	if err != nil {
		if code, ok := vfs.CodeOf(err); ok && code == vfs.ENOENT {
			return nil, fail(http.StatusNotFound, "source %s does not exist", srcK)
		}
		return nil, err
	}

	if err := p.checkCommonPreconditions(ctx, srcK, destK, srcStat, overwrite); err != nil {
		return nil, err
	}

	existedBefore, err := p.destExists(ctx, destK)
	if err != nil {
		return nil, err
	}
	if existedBefore {
		if err := p.fs.Rm(ctx, destK, true, true); err != nil {
			return nil, err
		}
	}

	var resourceErrors []ResourceError
	if srcStat.IsDirectory {
		resourceErrors = p.copyDirectory(ctx, srcK, destK, depth)
	} else {
		if err := p.fs.CopyFile(ctx, srcK, destK); err != nil {
			return nil, &Error{Status: httperr.StatusForError(err), Message: err.Error()}
		}
	}

	return finalResult(existedBefore, resourceErrors), nil
}

// Move plans and executes a MOVE of src onto dest: a Copy followed by a
// recursive remove of the source, with Move's extra preconditions.
func (p *Planner) Move(ctx context.Context, src, dest string, depth int, overwrite bool) (*Result, error) {
	srcK := pathutil.Normalize(src)

	if pathutil.IsRoot(srcK) {
		return nil, fail(http.StatusForbidden, "cannot move the root")
	}

	srcStat, err := p.fs.Stat(ctx, srcK)
	if err != nil {
		if code, ok := vfs.CodeOf(err); ok && code == vfs.ENOENT {
			return nil, fail(http.StatusNotFound, "source %s does not exist", srcK)
		}
		return nil, err
	}
	if srcStat.IsDirectory && depth != DepthInfinity {
		return nil, fail(http.StatusBadRequest, "MOVE of a directory requires Depth: infinity")
	}

	result, err := p.Copy(ctx, src, dest, DepthInfinity, overwrite)
	if err != nil {
		return nil, err
	}

	if err := p.fs.Rm(ctx, srcK, true, false); err != nil {
		result.Errors = append(result.Errors, ResourceError{
			Href:        srcK,
			Status:      httperr.StatusForError(err),
			Description: err.Error(),
		})
		if result.Status != http.StatusMultiStatus {
			result.Status = http.StatusMultiStatus
		}
	}
	return result, nil
}

func (p *Planner) checkCommonPreconditions(ctx context.Context, srcK, destK string, srcStat *vfs.Stat, overwrite bool) error {
	if srcK == destK {
		return fail(http.StatusForbidden, "source and destination are the same resource")
	}
	if srcStat.IsDirectory && strings.HasPrefix(destK, srcK+"/") {
		return fail(http.StatusForbidden, "destination is contained within source")
	}
	if pathutil.IsRoot(destK) {
		return fail(http.StatusForbidden, "destination cannot be the root")
	}

	parent := pathutil.Dir(destK)
	parentStat, err := p.fs.Stat(ctx, parent)
	if err != nil {
		if code, ok := vfs.CodeOf(err); ok && code == vfs.ENOENT {
			return fail(http.StatusConflict, "destination parent %s does not exist", parent)
		}
		return err
	}
	if !parentStat.IsDirectory {
		return fail(http.StatusConflict, "destination parent %s is not a directory", parent)
	}

	if !overwrite {
		exists, err := p.destExists(ctx, destK)
		if err != nil {
			return err
		}
		if exists {
			return fail(http.StatusPreconditionFailed, "destination %s already exists", destK)
		}
	}
	return nil
}

func (p *Planner) destExists(ctx context.Context, destK string) (bool, error) {
	_, err := p.fs.Stat(ctx, destK)
	if err == nil {
		return true, nil
	}
	if code, ok := vfs.CodeOf(err); ok && code == vfs.ENOENT {
		return false, nil
	}
	return false, err
}

// copyDirectory creates dest (tolerating EEXIST) and, unless depth is
// zero, recurses into src's direct children with depth reduced by one each
// level (DepthInfinity stays infinite).
func (p *Planner) copyDirectory(ctx context.Context, src, dest string, depth int) []ResourceError {
	var errs []ResourceError

	if err := p.fs.Mkdir(ctx, dest, false); err != nil {
		if code, ok := vfs.CodeOf(err); !ok || code != vfs.EEXIST {
			errs = append(errs, ResourceError{Href: dest, Status: httperr.StatusForError(err), Description: err.Error()})
			return errs
		}
	}

	if depth == DepthZero {
		return errs
	}

	children, err := p.fs.Readdir(ctx, src, false)
	if err != nil {
		errs = append(errs, ResourceError{Href: src, Status: httperr.StatusForError(err), Description: err.Error()})
		return errs
	}

	childDepth := DepthInfinity
	if depth > DepthZero {
		childDepth = depth - 1
	}

	for _, child := range children {
		childDest := pathutil.Join(dest, child.Name)
		if child.IsDirectory {
			errs = append(errs, p.copyDirectory(ctx, child.Path, childDest, childDepth)...)
			continue
		}
		if err := p.fs.CopyFile(ctx, child.Path, childDest); err != nil {
			errs = append(errs, ResourceError{Href: child.Path, Status: httperr.StatusForError(err), Description: err.Error()})
		}
	}
	return errs
}

func finalResult(existedBefore bool, errs []ResourceError) *Result {
	if len(errs) > 0 {
		return &Result{Status: http.StatusMultiStatus, Errors: errs}
	}
	if existedBefore {
		return &Result{Status: http.StatusNoContent}
	}
	return &Result{Status: http.StatusCreated}
}
