// Command curve prints the learning curve of recorded self-play runs, or
// tails the live feed of a running trainer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brensch/tetromino/analysis"
	"github.com/brensch/tetromino/feed"
	"github.com/brensch/tetromino/logging"
	"github.com/charmbracelet/lipgloss"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

func main() {
	data := flag.String("data", getEnvOrDefault("TETROMINO_OUT_DIR", "data/selfplay"), "Comma-separated trainer output directories")
	run := flag.String("run", "", "Only show this run id")
	mean := flag.Bool("mean", false, "Average every run per game index instead of listing runs")
	watch := flag.String("watch", "", "Tail a trainer feed instead, e.g. ws://localhost:8080/ws")
	logFormat := flag.String("log-format", getEnvOrDefault("LOG_FORMAT", "text"), "pretty, json or text")
	logLevel := flag.String("log-level", getEnvOrDefault("LOG_LEVEL", "info"), "debug, info, warn or error")
	flag.Parse()

	logger, err := logging.New(os.Stderr, *logFormat, *logLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch != "" {
		if err := tail(ctx, os.Stdout, *watch, logger); err != nil {
			log.Fatalf("watch: %v", err)
		}
		return
	}

	db, err := analysis.Open(strings.Split(*data, ","))
	if err != nil {
		log.Fatalf("open duckdb: %v", err)
	}
	defer db.Close()

	if *mean {
		points, err := analysis.MeanCurve(ctx, db)
		if err != nil {
			log.Fatalf("%v", err)
		}
		printMean(os.Stdout, points)
		return
	}

	points, err := analysis.LearningCurve(ctx, db, *run)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(points) == 0 {
		fmt.Fprintln(os.Stderr, "no games found under", *data)
		return
	}
	printCurve(os.Stdout, points)
}

func printCurve(w io.Writer, points []analysis.CurvePoint) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	lastRun := ""
	for _, p := range points {
		if p.RunID != lastRun {
			if lastRun != "" {
				fmt.Fprintln(tw)
			}
			tw.Flush()
			fmt.Fprintln(w, headerStyle.Render("run "+p.RunID))
			fmt.Fprintln(tw, "game\tscore\tlines\tplacements\tw_height\tw_bump\tw_max\tw_holes\tepsilon\t")
			lastRun = p.RunID
		}
		capped := ""
		if p.Capped {
			capped = "*"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n",
			p.Game, p.Score, p.Lines, p.Placements, capped,
			p.Weights[0], p.Weights[1], p.Weights[2], p.Weights[3], p.Epsilon)
	}
	tw.Flush()
}

func printMean(w io.Writer, points []analysis.MeanPoint) {
	fmt.Fprintln(w, headerStyle.Render("mean over runs"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "game\truns\tscore\tlines\tplacements\t")
	for _, p := range points {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%.1f\t\n", p.Game, p.Runs, p.Score, p.Lines, p.Placements)
	}
	tw.Flush()
}

func tail(ctx context.Context, w io.Writer, url string, logger *slog.Logger) error {
	cfg := feed.WatchConfig{URL: url, ConnectTimeout: 10 * time.Second, Logger: logger}
	return feed.Watch(ctx, cfg, func(ev feed.Event) error {
		switch ev.Type {
		case feed.TypePlacement:
			var p feed.Placement
			if err := json.Unmarshal(ev.Data, &p); err != nil {
				logger.Warn("failed to parse placement", "err", err)
				return nil
			}
			explored := ""
			if p.Explored {
				explored = " explored"
			}
			fmt.Fprintf(w, "w%d %s #%d %s rot=%d off=%d lines=%d score=%d%s\n",
				p.Worker, shortID(p.GameID), p.Placement, p.Shape, p.Rotation, p.Offset, p.Lines, p.Score, explored)
		case feed.TypeGameEnd:
			var g feed.GameEnd
			if err := json.Unmarshal(ev.Data, &g); err != nil {
				logger.Warn("failed to parse game_end", "err", err)
				return nil
			}
			fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("w%d game %d over: score %d, lines %d, placements %d, weights %.2f",
				g.Worker, g.Game, g.Score, g.Lines, g.Placements, g.Weights)))
		}
		return nil
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
