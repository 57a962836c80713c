// tablefs server
//
// A WebDAV server that presents a hierarchical filesystem stored in a
// single relational table (see internal/vfs). Exposes:
// - Class-1 WebDAV (PROPFIND, MKCOL, PUT, GET, DELETE, MOVE, COPY)
// - Prometheus metrics & structured logging (zap)
// - Optional HTTP Basic Auth gate
// - Optional read-only JSON management API
// - Optional browser-facing directory index
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tablefs/tablefs/internal/adminapi"
	"github.com/tablefs/tablefs/internal/authgate"
	"github.com/tablefs/tablefs/internal/blobstore"
	"github.com/tablefs/tablefs/internal/config"
	"github.com/tablefs/tablefs/internal/copymove"
	"github.com/tablefs/tablefs/internal/logging"
	"github.com/tablefs/tablefs/internal/metrics"
	"github.com/tablefs/tablefs/internal/store"
	"github.com/tablefs/tablefs/internal/vfs"
	"github.com/tablefs/tablefs/internal/webdav"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("tablefs server starting...",
		zap.Int("port", cfg.Port),
		zap.String("table", cfg.TableName),
		zap.String("browser", string(cfg.Browser)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("opening database", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logging.Fatal("database unreachable", zap.Error(err))
	}

	s := store.New(db, "postgres", cfg.TableName)
	if err := s.EnsureSchema(ctx); err != nil {
		logging.Fatal("ensure schema", zap.Error(err))
	}

	fs := vfs.New(s)

	if cfg.BlobBackend == "s3" {
		blobs, err := blobstore.NewS3Backend(ctx, blobstore.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			logging.Fatal("s3 blobstore init", zap.Error(err))
		}
		if err := blobs.EnsureBucket(ctx); err != nil {
			logging.Fatal("s3 ensure bucket", zap.Error(err))
		}
		fs.WithBlobStore(blobs, vfs.DefaultChunkSize)
		logging.Info("blob storage enabled", zap.String("bucket", cfg.S3Bucket))
	}

	planner := copymove.New(fs)
	davHandler := webdav.NewHandler(fs, planner, cfg.Browser)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	bypassBrowser := func(r *http.Request) bool {
		return cfg.Browser != config.BrowserDisabled && r.Method == http.MethodGet && webdav.IsBrowserUA(r.UserAgent())
	}
	creds := authgate.Credentials{Username: cfg.Username, Password: cfg.Password}
	protectedDAV := authgate.Middleware(creds, bypassBrowser, davHandler)
	mux.Handle("/", protectedDAV)

	if cfg.AdminEnabled {
		admin := adminapi.New(fs, cfg.AdminSecret, cfg.AdminPasswordHash)
		mux.Handle("/admin/", admin.Handler())
		logging.Info("admin API enabled")
	}

	handler := logging.Middleware(metrics.Middleware(mux))

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: handler,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.UpdateConnectionMetrics()
			}
		}
	}()

	logging.Info("server listening", zap.Int("port", cfg.Port))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}
