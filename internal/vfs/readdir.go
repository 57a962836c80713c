package vfs

import (
	"context"
	"sort"
	"strings"

	"github.com/tablefs/tablefs/internal/pathutil"
	"github.com/tablefs/tablefs/internal/store"
)

// DirEntry is one entry returned by Readdir. Name is the entry's name
// (immediate listing) or its path relative to the listed directory
// (recursive listing); Path is always the entry's absolute normalized key,
// and ParentPath is the absolute directory that directly contains it.
type DirEntry struct {
	Name        string
	Path        string
	ParentPath  string
	IsFile      bool
	IsDirectory bool
}

// Readdir lists the contents of directory p. Non-recursive listings return
// immediate children only; recursive listings return every descendant file
// plus every intermediate directory segment encountered along the way.
// Entries are sorted directories-first, then lexicographically within each
// group.
func (fs *FS) Readdir(ctx context.Context, p string, recursive bool) (entries []DirEntry, err error) {
	defer func() { record("readdir", err) }()

	k := pathutil.Normalize(p)
	dirKey := k
	if k != "/" {
		dirKey = k + "/"
	}

	if _, statErr := fs.Stat(ctx, dirKey); statErr != nil {
		return nil, statErr
	}

	rows, err := fs.store.ListPrefix(ctx, pathutil.LikePrefix(dirKey), dirKey)
	if err != nil {
		return nil, err
	}

	if recursive {
		return buildRecursive(dirKey, rows), nil
	}
	return buildImmediate(dirKey, rows), nil
}

func buildImmediate(dirKey string, rows []store.Row) []DirEntry {
	dirNames := map[string]bool{}
	fileNames := map[string]bool{}

	for _, row := range rows {
		rel := strings.TrimPrefix(row.Path, dirKey)
		if rel == "" {
			continue
		}
		if row.IsDir() {
			trimmed := strings.TrimSuffix(rel, "/")
			first := firstSegment(trimmed)
			dirNames[first] = true
		} else if idx := strings.Index(rel, "/"); idx >= 0 {
			dirNames[rel[:idx]] = true
		} else {
			fileNames[rel] = true
		}
	}

	return assemble(dirKey, dirNames, fileNames)
}

func buildRecursive(dirKey string, rows []store.Row) []DirEntry {
	dirNames := map[string]bool{}
	fileNames := map[string]bool{}

	for _, row := range rows {
		rel := strings.TrimPrefix(row.Path, dirKey)
		if rel == "" {
			continue
		}
		if row.IsDir() {
			trimmed := strings.TrimSuffix(rel, "/")
			dirNames[trimmed] = true
			addAncestors(dirNames, trimmed)
		} else {
			fileNames[rel] = true
			addAncestors(dirNames, rel)
		}
	}

	return assemble(dirKey, dirNames, fileNames)
}

// addAncestors records every directory segment strictly above rel, e.g.
// "a/b/c.txt" contributes "a" and "a/b".
func addAncestors(dirNames map[string]bool, rel string) {
	segments := strings.Split(rel, "/")
	for i := 1; i < len(segments); i++ {
		dirNames[strings.Join(segments[:i], "/")] = true
	}
}

func firstSegment(rel string) string {
	if idx := strings.Index(rel, "/"); idx >= 0 {
		return rel[:idx]
	}
	return rel
}

func assemble(dirKey string, dirNames, fileNames map[string]bool) []DirEntry {
	entries := make([]DirEntry, 0, len(dirNames)+len(fileNames))

	dirList := make([]string, 0, len(dirNames))
	for name := range dirNames {
		dirList = append(dirList, name)
	}
	sort.Strings(dirList)
	for _, name := range dirList {
		full := dirKey + name
		entries = append(entries, DirEntry{
			Name:        name,
			Path:        full + "/",
			ParentPath:  pathutil.Dir(full),
			IsDirectory: true,
		})
	}

	fileList := make([]string, 0, len(fileNames))
	for name := range fileNames {
		fileList = append(fileList, name)
	}
	sort.Strings(fileList)
	for _, name := range fileList {
		full := dirKey + name
		entries = append(entries, DirEntry{
			Name:       name,
			Path:       full,
			ParentPath: pathutil.Dir(full),
			IsFile:     true,
		})
	}

	return entries
}
