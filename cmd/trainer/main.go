// Command trainer runs self-play learning sessions and records every
// placement and finished game as parquet.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/brensch/tetromino/analysis"
	"github.com/brensch/tetromino/feed"
	"github.com/brensch/tetromino/logging"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		log.Fatalf("create out dir: %v", err)
	}

	var logOut io.Writer = os.Stderr
	if cfg.TUI {
		f, err := os.OpenFile(filepath.Join(cfg.OutDir, "trainer.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()
		logOut = f
		log.SetOutput(f)
	}
	logger, err := logging.New(logOut, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	slog.SetDefault(logger)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	var hub *feed.Hub
	var httpSrv *http.Server
	var api *analysis.Server
	if cfg.Listen != "" {
		hub = feed.NewHub(logger.With("component", "feed"))
		api = analysis.NewServer([]string{cfg.OutDir}, cfg.APIRefresh, logger.With("component", "analysis"))
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		api.RegisterRoutes(mux)
		httpSrv = &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Info("serving", "addr", cfg.Listen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "err", err)
			}
		}()
	}

	updates := make(chan GameUpdate, cfg.Workers*4)
	writeReqs := make(chan gameWriteRequest, cfg.Workers*4)
	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(cfg.OutDir, cfg.GamesPerFlush, writeReqs, logger)
		close(writerDone)
	}()

	logger.Info("starting self-play",
		"workers", cfg.Workers,
		"games_per_worker", cfg.Games,
		"width", cfg.Width,
		"height", cfg.Height,
		"out_dir", cfg.OutDir,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		w := &worker{id: i, cfg: cfg, logger: logger, writes: writeReqs, updates: updates, hub: hub}
		g.Go(func() error { return w.run(gctx) })
	}
	runDone := make(chan struct{})
	var runErr error
	go func() {
		runErr = g.Wait()
		close(runDone)
	}()

	if cfg.TUI {
		p := tea.NewProgram(initialModel(cfg, updates, runDone), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			logger.Error("tui failed", "err", err)
		}
		cancel()
		<-runDone
	} else {
		monitor(ctx, cfg.StatsEvery, updates, runDone, logger)
	}

	logger.Info("waiting for writer to flush")
	close(writeReqs)
	<-writerDone

	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		hub.Close()
		_ = httpSrv.Shutdown(shutdownCtx)
		shutdownCancel()
		_ = api.Close()
	}

	if runErr != nil {
		log.Fatalf("training failed: %v", runErr)
	}
	logger.Info("shutdown complete", "games", totalGames.Load(), "placements", totalPlacements.Load())
}

// monitor logs progress until every worker has returned.
func monitor(ctx context.Context, every time.Duration, updates <-chan GameUpdate, runDone <-chan struct{}, logger *slog.Logger) {
	startTime := time.Now()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-runDone:
			return
		case <-ctx.Done():
			logger.Info("shutdown requested; waiting for workers to stop")
			<-runDone
			return
		case u := <-updates:
			logger.Debug("game update", "worker", u.WorkerID, "game", u.Game, "score", u.Result.Score)
		case <-ticker.C:
			elapsed := time.Since(startTime).Seconds()
			placements := totalPlacements.Load()
			logger.Info("stats",
				"games", totalGames.Load(),
				"placements", placements,
				"lines", totalLines.Load(),
				"placements_per_sec", float64(placements)/elapsed,
			)
		}
	}
}
