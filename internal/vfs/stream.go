package vfs

import (
	"context"
	"io"

	"github.com/tablefs/tablefs/internal/pathutil"
)

// DefaultChunkSize bounds each round-trip of a read stream, per §4.4/§9.
const DefaultChunkSize = 1 << 20 // 1 MiB

// ReadStream is a finite, non-restartable lazy byte sequence over a file's
// stored content. Each Read advances the underlying substr(content, ...)
// cursor by exactly one round-trip; it never re-fetches a byte already
// delivered. Blob-backed files are resolved up front into buf instead,
// since the blob store contract is whole-object Get, not bounded substr.
type ReadStream struct {
	ctx    context.Context
	fs     *FS
	path   string
	offset int64 // 1-indexed, per the substr contract
	chunk  int64
	done   bool

	buf    []byte // non-nil for blob-backed content, served in one shot
	bufOff int
}

// CreateReadStream opens a lazy byte sequence over p. It fails ENOENT up
// front if the file doesn't exist, mirroring readFile's resolution. Files
// offloaded to a blob store are resolved eagerly and served from an
// in-memory buffer behind the same Read interface.
func (fs *FS) CreateReadStream(ctx context.Context, p string) (*ReadStream, error) {
	k := pathutil.Normalize(p)
	row, err := fs.store.GetByPath(ctx, k)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, newErr(ENOENT, "createReadStream", k)
	}
	if ref, ok := blobRef(row); ok {
		if fs.blobs == nil {
			return nil, newErrf(EINVAL, "createReadStream", k, "row references external blob %s but no blob store is configured", ref)
		}
		content, err := fs.blobs.Get(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &ReadStream{buf: content}, nil
	}
	if row.Content == nil {
		return nil, newErr(ENOENT, "createReadStream", k)
	}
	return &ReadStream{ctx: ctx, fs: fs, path: k, offset: 1, chunk: DefaultChunkSize}, nil
}

// Read implements io.Reader, fetching one bounded chunk per call from the
// store when the internal buffer is empty. It is not safe for concurrent
// use, and once exhausted it cannot be rewound.
func (rs *ReadStream) Read(p []byte) (int, error) {
	if rs.buf != nil {
		if rs.bufOff >= len(rs.buf) {
			return 0, io.EOF
		}
		n := copy(p, rs.buf[rs.bufOff:])
		rs.bufOff += n
		return n, nil
	}

	if rs.done {
		return 0, io.EOF
	}

	n := rs.chunk
	if int64(len(p)) < n {
		n = int64(len(p))
	}

	chunk, err := rs.fs.store.ReadChunk(rs.ctx, rs.path, rs.offset, n)
	if err != nil {
		return 0, err
	}
	if len(chunk) == 0 {
		rs.done = true
		return 0, io.EOF
	}

	copy(p, chunk)
	rs.offset += int64(len(chunk))
	if int64(len(chunk)) < n {
		// Short read: the next query is guaranteed empty, so mark done
		// early rather than spend another round-trip to confirm it.
		rs.done = true
	}
	return len(chunk), nil
}

// WriteTo streams the remaining content to w using DefaultChunkSize reads,
// satisfying io.WriterTo for callers (e.g. the WebDAV GET handler) that
// want to avoid an intermediate copy.
func (rs *ReadStream) WriteTo(w io.Writer) (int64, error) {
	var total int64
	bufSize := rs.chunk
	if bufSize <= 0 {
		bufSize = DefaultChunkSize
	}
	buf := make([]byte, bufSize)
	for {
		n, err := rs.Read(buf)
		if n > 0 {
			written, werr := w.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
