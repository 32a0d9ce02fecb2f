package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/config"
	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/domain/project"
	"github.com/knitgrid/tally/internal/sqlite"
	"github.com/knitgrid/tally/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the counter API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	db, cfg, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	projectRepo := sqlite.NewProjectRepository(db)
	counterRepo := sqlite.NewCounterRepository(db)
	linkRepo := sqlite.NewLinkRepository(db)
	historyRepo := sqlite.NewHistoryRepository(db)
	uow := sqlite.NewUnitOfWork(db)

	projectSvc := project.NewService(projectRepo, logger)

	hub := broadcast.NewHub(projectSvc, cfg.Sync.SubscriberBuffer, logger)
	defer hub.Close()

	// Without Kafka the hub alone fans changes out to local subscribers.
	var publisher counter.Publisher = hub
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	if cfg.Kafka.Enabled {
		relay := broadcast.NewRelay(hub, broadcast.RelayConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, relayInstance(cfg.Kafka.Instance), logger)
		defer relay.Close()
		publisher = relay

		go func() {
			if err := relay.Run(relayCtx); err != nil {
				logger.Error("relay stopped", "error", err)
			}
		}()
	}

	counterSvc := counter.NewService(counterRepo, linkRepo, projectRepo, uow, publisher, logger)
	linkSvc := link.NewService(linkRepo, counterRepo, logger)
	historySvc := history.NewService(historyRepo, counterSvc, logger)

	router := transport.NewServer(transport.Services{
		Projects: projectSvc,
		Counters: counterSvc,
		Links:    linkSvc,
		History:  historySvc,
		Hub:      hub,
	}, transport.AuthMiddleware(&apiKeyResolver{db: db}), logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
	return nil
}

// relayInstance picks the tag this process stamps on relayed messages.
func relayInstance(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil {
		host = "tallyd"
	}
	return fmt.Sprintf("%s-%s", host, uuid.Must(uuid.NewV7()).String()[:8])
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	writer := io.Writer(os.Stdout)
	closeLog := func() {}
	if cfg.Path != "" {
		fileWriter, err := newCappedLogFile(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		writer = fileWriter
		closeLog = func() { fileWriter.file.Close() }
	}
	logger := slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}))
	return logger, closeLog, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	logCapBytes  = 6 * 1024 * 1024
	logKeepBytes = 5 * 1024 * 1024
)

// cappedLogFile appends to a log file and trims it back to the most recent
// logKeepBytes whenever it grows past logCapBytes, so long-running servers
// never fill the disk with logs.
type cappedLogFile struct {
	mu   sync.Mutex
	file *os.File
}

func newCappedLogFile(path string) (*cappedLogFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	w := &cappedLogFile{file: file}
	if err := w.trim(); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func (w *cappedLogFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	return n, w.trim()
}

func (w *cappedLogFile) trim() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= logCapBytes {
		return nil
	}

	tail := make([]byte, logKeepBytes)
	if _, err := w.file.Seek(info.Size()-logKeepBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(tail)
	if err != nil && err != io.EOF {
		return err
	}

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(tail[:n]); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
