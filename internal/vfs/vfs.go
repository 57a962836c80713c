// Package vfs implements the filesystem contract (spec component D) over
// the single-table store: stat, access, mkdir, writeFile, readFile,
// createReadStream, readdir, rename, rmdir, unlink, rm, and copyFile. Every
// operation normalizes its path on entry and reports failures through the
// engine-neutral Error taxonomy.
package vfs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tablefs/tablefs/internal/hashutil"
	"github.com/tablefs/tablefs/internal/logging"
	"github.com/tablefs/tablefs/internal/metrics"
	"github.com/tablefs/tablefs/internal/pathutil"
	"github.com/tablefs/tablefs/internal/store"
)

// Stat describes one resolved path, file or directory, explicit or
// implicit.
type Stat struct {
	Path        string
	IsFile      bool
	IsDirectory bool
	Size        int64
	ModifiedAt  time.Time
	BirthTime   time.Time
	ETag        string // empty for directories
}

// BlobStore is the subset of blobstore.Backend the VFS needs to offload
// large file content out of the table.
type BlobStore interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

const blobRefPrefix = "blob:"

// FS is the virtual filesystem, backed by a *store.Store. It holds no
// in-memory index; the table is the source of truth.
type FS struct {
	store         *store.Store
	blobs         BlobStore
	blobThreshold int64
}

// New wraps a store into a VFS.
func New(s *store.Store) *FS {
	return &FS{store: s}
}

// WithBlobStore configures the VFS to offload file content larger than
// threshold bytes to an external blob store, content-addressed by ETag,
// keeping only a reference in the table's meta column. Existing rows
// written before this was configured are unaffected.
func (fs *FS) WithBlobStore(blobs BlobStore, threshold int64) *FS {
	fs.blobs = blobs
	fs.blobThreshold = threshold
	return fs
}

func record(op string, err error) {
	metrics.RecordVFSOperation(op, err)
}

// Stat resolves a path to a Stat, trying the file row, then the
// explicit-directory row, then the implicit-directory fallback (the root
// skips the file row).
func (fs *FS) Stat(ctx context.Context, p string) (st *Stat, err error) {
	defer func() { record("stat", err) }()

	k := pathutil.Normalize(p)
	if isDirKey(k) {
		return fs.statDir(ctx, k)
	}

	row, err := fs.store.GetByPath(ctx, k)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return fileStat(row), nil
	}
	return fs.statDir(ctx, k+"/")
}

func (fs *FS) statDir(ctx context.Context, k string) (*Stat, error) {
	row, err := fs.store.GetByPath(ctx, k)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return dirStat(k, row.CreatedAt, row.ModifiedAt), nil
	}

	likePrefix := pathutil.LikePrefix(k)
	exists, err := fs.store.ExistsWithPrefix(ctx, likePrefix, k)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, newErr(ENOENT, "stat", k)
	}

	minCreated, maxModified, found, err := fs.store.AggregateTimes(ctx, likePrefix)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, newErr(ENOENT, "stat", k)
	}
	return dirStat(k, minCreated, maxModified), nil
}

func fileStat(row *store.Row) *Stat {
	return &Stat{
		Path:       row.Path,
		IsFile:     true,
		Size:       row.Size,
		ModifiedAt: millis(row.ModifiedAt),
		BirthTime:  millis(row.CreatedAt),
		ETag:       row.ETag,
	}
}

func dirStat(path string, createdAt, modifiedAt int64) *Stat {
	return &Stat{
		Path:        path,
		IsDirectory: true,
		ModifiedAt:  millis(modifiedAt),
		BirthTime:   millis(createdAt),
	}
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isDirKey(k string) bool {
	return k == "/" || k[len(k)-1] == '/'
}

// Access succeeds iff Stat succeeds.
func (fs *FS) Access(ctx context.Context, p string) error {
	_, err := fs.Stat(ctx, p)
	return err
}

// Mkdir creates an explicit-directory row. When recursive is false, the
// parent directory must already exist.
func (fs *FS) Mkdir(ctx context.Context, p string, recursive bool) (err error) {
	defer func() { record("mkdir", err) }()

	norm := pathutil.Normalize(p)
	dirKey := norm
	if dirKey != "/" {
		dirKey = norm + "/"
	}

	if _, statErr := fs.Stat(ctx, dirKey); statErr == nil {
		return newErr(EEXIST, "mkdir", norm)
	} else if code, ok := CodeOf(statErr); !ok || code != ENOENT {
		return statErr
	}

	// The root always counts as an existing parent, even in an empty table.
	if parent := pathutil.Dir(norm); !recursive && parent != "/" {
		if _, statErr := fs.Stat(ctx, parent+"/"); statErr != nil {
			if code, ok := CodeOf(statErr); ok && code == ENOENT {
				return newErr(ENOENT, "mkdir", parent)
			}
			return statErr
		}
	}

	now := store.NowMillis()
	if err := fs.store.InsertDir(ctx, dirKey, now); err != nil {
		return err
	}
	logging.WithContext(ctx).Debug("mkdir", zap.String("path", dirKey))
	return nil
}

// WriteFile upserts file content at p. Fails EISDIR if an explicit
// directory row shares the key.
func (fs *FS) WriteFile(ctx context.Context, p string, content []byte) (err error) {
	defer func() { record("writeFile", err) }()

	k := pathutil.Normalize(p)
	dirRow, err := fs.store.GetByPath(ctx, k+"/")
	if err != nil {
		return err
	}
	if dirRow != nil {
		return newErr(EISDIR, "writeFile", k)
	}

	etag := hashutil.ETag(content)
	now := store.NowMillis()

	if fs.blobs != nil && int64(len(content)) > fs.blobThreshold {
		ref := blobRefPrefix + etag
		if err := fs.blobs.Put(ctx, etag, content); err != nil {
			return err
		}
		if err := fs.store.UpsertFileRef(ctx, k, int64(len(content)), etag, ref, now); err != nil {
			return err
		}
		logging.WithContext(ctx).Debug("writeFile (blobstore)", zap.String("path", k), zap.Int("size", len(content)))
		return nil
	}

	if err := fs.store.UpsertFile(ctx, k, content, etag, now); err != nil {
		return err
	}
	logging.WithContext(ctx).Debug("writeFile", zap.String("path", k), zap.Int("size", len(content)))
	return nil
}

// ReadFile returns the full content of the file at p.
func (fs *FS) ReadFile(ctx context.Context, p string) (content []byte, err error) {
	defer func() { record("readFile", err) }()

	k := pathutil.Normalize(p)
	row, err := fs.store.GetByPath(ctx, k)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, newErr(ENOENT, "readFile", k)
	}
	if ref, ok := blobRef(row); ok {
		if fs.blobs == nil {
			return nil, newErrf(EINVAL, "readFile", k, "row references external blob %s but no blob store is configured", ref)
		}
		return fs.blobs.Get(ctx, ref)
	}
	if row.Content == nil {
		return nil, newErr(ENOENT, "readFile", k)
	}
	return row.Content, nil
}

// blobRef extracts the blob store key from a row's meta column, if it
// carries one.
func blobRef(row *store.Row) (string, bool) {
	if row.Meta == nil {
		return "", false
	}
	meta := *row.Meta
	if len(meta) <= len(blobRefPrefix) || meta[:len(blobRefPrefix)] != blobRefPrefix {
		return "", false
	}
	return meta[len(blobRefPrefix):], true
}

// Rename moves oldP to newP, covering both the file-to-file and
// directory-to-directory cases.
func (fs *FS) Rename(ctx context.Context, oldP, newP string) (err error) {
	defer func() { record("rename", err) }()

	oldK := pathutil.Normalize(oldP)
	newK := pathutil.Normalize(newP)
	now := store.NowMillis()

	dirRow, err := fs.store.GetByPath(ctx, oldK+"/")
	if err != nil {
		return err
	}
	if dirRow != nil {
		return fs.renameDir(ctx, oldK, newK, now)
	}

	fileRow, err := fs.store.GetByPath(ctx, oldK)
	if err != nil {
		return err
	}
	if fileRow == nil {
		implicitDir, err := fs.store.ExistsWithPrefix(ctx, pathutil.LikePrefix(oldK+"/"), oldK+"/")
		if err != nil {
			return err
		}
		if implicitDir {
			return fs.renameDir(ctx, oldK, newK, now)
		}
		return newErr(ENOENT, "rename", oldK)
	}

	if existingFile, err := fs.store.GetByPath(ctx, newK); err != nil {
		return err
	} else if existingFile != nil {
		return newErr(EEXIST, "rename", newK)
	}
	if existingDir, err := fs.store.GetByPath(ctx, newK+"/"); err != nil {
		return err
	} else if existingDir != nil {
		return newErr(EISDIR, "rename", newK)
	}

	return fs.store.RenamePath(ctx, oldK, newK, now)
}

func (fs *FS) renameDir(ctx context.Context, oldK, newK string, now int64) error {
	oldDirKey := oldK + "/"
	newDirKey := newK + "/"

	if existingDir, err := fs.store.GetByPath(ctx, newDirKey); err != nil {
		return err
	} else if existingDir != nil {
		return newErr(EEXIST, "rename", newK)
	}

	if err := fs.store.RenamePath(ctx, oldDirKey, newDirKey, now); err != nil {
		return err
	}

	descendants, err := fs.store.ListPrefix(ctx, pathutil.LikePrefix(oldDirKey), oldDirKey)
	if err != nil {
		return err
	}
	for _, row := range descendants {
		rewritten := newDirKey + row.Path[len(oldDirKey):]
		if err := fs.store.RenamePath(ctx, row.Path, rewritten, now); err != nil {
			return err
		}
	}
	return nil
}

// Unlink removes a file row. EISDIR if p names an explicit directory key.
func (fs *FS) Unlink(ctx context.Context, p string) (err error) {
	defer func() { record("unlink", err) }()

	k := pathutil.Normalize(p)
	if len(p) > 0 && p[len(p)-1] == '/' {
		return newErr(EISDIR, "unlink", k)
	}

	n, err := fs.store.DeleteByPath(ctx, k)
	if err != nil {
		return err
	}
	if n == 0 {
		return newErr(ENOENT, "unlink", k)
	}
	return nil
}

// Rmdir removes the explicit directory row at p and, when recursive, every
// descendant row.
func (fs *FS) Rmdir(ctx context.Context, p string, recursive bool) (err error) {
	defer func() { record("rmdir", err) }()

	k := pathutil.Normalize(p)
	dirKey := k + "/"
	if k == "/" {
		dirKey = "/"
	}

	fileRow, err := fs.store.GetByPath(ctx, k)
	if err != nil {
		return err
	}
	if fileRow != nil {
		return newErr(ENOTDIR, "rmdir", k)
	}

	if !recursive {
		likePrefix := pathutil.LikePrefix(dirKey)
		hasChildren, err := fs.store.ExistsWithPrefix(ctx, likePrefix, dirKey)
		if err != nil {
			return err
		}
		if hasChildren {
			return newErr(ENOTEMPTY, "rmdir", k)
		}
		n, err := fs.store.DeleteByPath(ctx, dirKey)
		if err != nil {
			return err
		}
		if n == 0 {
			return newErr(ENOENT, "rmdir", k)
		}
		return nil
	}

	n, err := fs.store.DeletePathAndPrefix(ctx, dirKey, pathutil.LikePrefix(dirKey))
	if err != nil {
		return err
	}
	if n == 0 {
		return newErr(ENOENT, "rmdir", k)
	}
	return nil
}

// Rm resolves p via Stat and dispatches to Rmdir or Unlink. force swallows
// ENOENT.
func (fs *FS) Rm(ctx context.Context, p string, recursive, force bool) error {
	st, err := fs.Stat(ctx, p)
	if err != nil {
		if force {
			if code, ok := CodeOf(err); ok && code == ENOENT {
				return nil
			}
		}
		return err
	}

	if st.IsDirectory {
		err = fs.Rmdir(ctx, p, recursive)
	} else {
		err = fs.Unlink(ctx, p)
	}
	if err != nil && force {
		if code, ok := CodeOf(err); ok && code == ENOENT {
			return nil
		}
	}
	return err
}

// CopyFile copies the content of src to dest, upserting dest with fresh
// timestamps.
func (fs *FS) CopyFile(ctx context.Context, src, dest string) (err error) {
	defer func() { record("copyFile", err) }()

	srcK := pathutil.Normalize(src)
	destK := pathutil.Normalize(dest)

	if len(src) > 0 && src[len(src)-1] == '/' {
		return newErr(EINVAL, "copyFile", srcK)
	}
	if len(dest) > 0 && dest[len(dest)-1] == '/' {
		return newErr(EISDIR, "copyFile", destK)
	}
	if destDir, err := fs.store.GetByPath(ctx, destK+"/"); err != nil {
		return err
	} else if destDir != nil {
		return newErr(EISDIR, "copyFile", destK)
	}

	srcRow, err := fs.store.GetByPath(ctx, srcK)
	if err != nil {
		return err
	}
	if srcRow == nil {
		return newErr(ENOENT, "copyFile", srcK)
	}

	content := srcRow.Content
	if ref, ok := blobRef(srcRow); ok {
		if fs.blobs == nil {
			return newErrf(EINVAL, "copyFile", srcK, "row references external blob %s but no blob store is configured", ref)
		}
		content, err = fs.blobs.Get(ctx, ref)
		if err != nil {
			return err
		}
	} else if content == nil {
		return newErr(ENOENT, "copyFile", srcK)
	}

	now := store.NowMillis()
	if fs.blobs != nil && int64(len(content)) > fs.blobThreshold {
		ref := blobRefPrefix + srcRow.ETag
		if err := fs.blobs.Put(ctx, srcRow.ETag, content); err != nil {
			return err
		}
		return fs.store.UpsertFileRef(ctx, destK, srcRow.Size, srcRow.ETag, ref, now)
	}

	return fs.store.UpsertCopy(ctx, destK, content, srcRow.Size, srcRow.ETag, now)
}
