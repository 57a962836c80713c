// tablefs-seed populates a filesystem table with the contents of a local
// directory, useful for priming a demo or test deployment without going
// through the WebDAV interface. It walks -data (default /testdata) and
// writes each entry into the table via the VFS, so the result honors the
// same explicit/implicit directory rules a WebDAV client would observe.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tablefs/tablefs/internal/config"
	"github.com/tablefs/tablefs/internal/logging"
	"github.com/tablefs/tablefs/internal/store"
	"github.com/tablefs/tablefs/internal/vfs"
)

func main() {
	dataDir := flag.String("data", "/testdata", "directory to seed into the table")
	flag.Parse()

	if err := logging.Init(logging.Config{Level: "info", Format: "console"}); err != nil {
		panic("logging init: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("tablefs-seed starting...", zap.String("dir", *dataDir))

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("config error", zap.Error(err))
	}

	ctx := context.Background()

	var db *sql.DB
	for i := 0; i < 15; i++ {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err == nil {
			err = db.PingContext(ctx)
		}
		if err == nil {
			break
		}
		logging.Info("waiting for database", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logging.Fatal("database unreachable", zap.Error(err))
	}
	defer db.Close()

	s := store.New(db, "postgres", cfg.TableName)
	if err := s.EnsureSchema(ctx); err != nil {
		logging.Fatal("ensure schema", zap.Error(err))
	}
	fs := vfs.New(s)

	count := 0
	err = filepath.Walk(*dataDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relPath, err := filepath.Rel(*dataDir, path)
		if err != nil || relPath == "." {
			return err
		}
		virtualPath := "/" + filepath.ToSlash(relPath)

		if info.IsDir() {
			if err := fs.Mkdir(ctx, virtualPath, true); err != nil {
				if code, ok := vfs.CodeOf(err); !ok || code != vfs.EEXIST {
					return err
				}
			}
			logging.Info("  DIR", zap.String("path", virtualPath))
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := fs.WriteFile(ctx, virtualPath, data); err != nil {
			return err
		}
		count++
		logging.Info("  FILE", zap.String("path", virtualPath), zap.Int("bytes", len(data)))
		return nil
	})
	if err != nil {
		logging.Fatal("walk failed", zap.Error(err))
	}

	logging.Info("seeding complete", zap.Int("files", count))
}
