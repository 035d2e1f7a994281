package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brensch/tetromino/policy"
)

type config struct {
	OutDir        string
	Games         int
	Workers       int
	Width         int
	Height        int
	Seed          int64
	MaxPlacements int
	GamesPerFlush int
	Source        string

	Checkpoint string
	Resume     bool

	Listen     string
	APIRefresh time.Duration
	TUI        bool
	StatsEvery time.Duration

	LogFormat string
	LogLevel  string

	Policy policy.Config
}

func parseConfig(args []string) (config, error) {
	def := policy.DefaultConfig()
	var cfg config

	fs := flag.NewFlagSet("trainer", flag.ContinueOnError)
	fs.StringVar(&cfg.OutDir, "out-dir", getEnvOrDefault("TETROMINO_OUT_DIR", "data/selfplay"), "Directory for placement and game parquet batches")
	fs.IntVar(&cfg.Games, "games", getEnvIntOrDefault("TETROMINO_GAMES", 75), "Games per worker; learning carries over between a worker's games")
	fs.IntVar(&cfg.Workers, "workers", getEnvIntOrDefault("TETROMINO_WORKERS", 1), "Independent learning sessions to run concurrently")
	fs.IntVar(&cfg.Width, "width", getEnvIntOrDefault("TETROMINO_WIDTH", 10), "Board width")
	fs.IntVar(&cfg.Height, "height", getEnvIntOrDefault("TETROMINO_HEIGHT", 20), "Board height")
	fs.Int64Var(&cfg.Seed, "seed", int64(getEnvIntOrDefault("TETROMINO_SEED", 0)), "Base random seed (0 = time based); worker i uses seed+i")
	fs.IntVar(&cfg.MaxPlacements, "max-placements", getEnvIntOrDefault("TETROMINO_MAX_PLACEMENTS", 0), "If > 0, end a game after this many placements")
	fs.IntVar(&cfg.GamesPerFlush, "games-per-flush", getEnvIntOrDefault("TETROMINO_GAMES_PER_FLUSH", 25), "Games to buffer per parquet flush")
	fs.StringVar(&cfg.Source, "source", getEnvOrDefault("TETROMINO_SOURCE", "selfplay"), "Source tag written with every row")

	fs.StringVar(&cfg.Checkpoint, "checkpoint", getEnvOrDefault("TETROMINO_CHECKPOINT", ""), "Weight checkpoint JSON written after every game")
	fs.BoolVar(&cfg.Resume, "resume", getEnvBoolOrDefault("TETROMINO_RESUME", false), "Start from the weights and epsilon in -checkpoint")

	fs.StringVar(&cfg.Listen, "listen", getEnvOrDefault("TETROMINO_LISTEN", ""), "Serve /ws and /api/* on this address, e.g. :8080")
	fs.DurationVar(&cfg.APIRefresh, "api-refresh", getEnvDurationOrDefault("TETROMINO_API_REFRESH", 10*time.Second), "How often the /api views pick up new parquet files")
	fs.DurationVar(&cfg.StatsEvery, "stats-every", getEnvDurationOrDefault("TETROMINO_STATS_EVERY", 5*time.Second), "Progress log interval")
	fs.BoolVar(&cfg.TUI, "tui", getEnvBoolOrDefault("TETROMINO_TUI", false), "Show a terminal progress monitor; logs go to <out-dir>/trainer.log")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnvOrDefault("LOG_FORMAT", "pretty"), "pretty, json or text")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "info"), "debug, info, warn or error")

	fs.Float64Var(&cfg.Policy.LearningRate, "lr", getEnvFloatOrDefault("TETROMINO_LR", def.LearningRate), "Weight learning rate")
	fs.Float64Var(&cfg.Policy.Discount, "discount", getEnvFloatOrDefault("TETROMINO_DISCOUNT", def.Discount), "Discount applied to the next-state features")
	fs.Float64Var(&cfg.Policy.Epsilon, "epsilon", getEnvFloatOrDefault("TETROMINO_EPSILON", def.Epsilon), "Initial exploration rate")
	fs.Float64Var(&cfg.Policy.EpsilonDecay, "epsilon-decay", getEnvFloatOrDefault("TETROMINO_EPSILON_DECAY", def.EpsilonDecay), "Exploration decay per spawned piece")
	fs.Float64Var(&cfg.Policy.EpsilonFloor, "epsilon-floor", getEnvFloatOrDefault("TETROMINO_EPSILON_FLOOR", def.EpsilonFloor), "Exploration becomes 0 once it is at or below this")
	fs.IntVar(&cfg.Policy.Parallelism, "search-parallelism", getEnvIntOrDefault("TETROMINO_SEARCH_PARALLELISM", def.Parallelism), "Goroutines used to score candidate placements")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch {
	case c.Games <= 0:
		return fmt.Errorf("-games must be > 0")
	case c.Workers <= 0:
		return fmt.Errorf("-workers must be > 0")
	case c.Width < 4 || c.Height < 4:
		return fmt.Errorf("board must be at least 4x4, got %dx%d", c.Width, c.Height)
	case c.StatsEvery <= 0:
		return fmt.Errorf("-stats-every must be > 0")
	case c.Resume && c.Checkpoint == "":
		return fmt.Errorf("-resume requires -checkpoint")
	case c.Policy.Epsilon < 0 || c.Policy.Epsilon > 1:
		return fmt.Errorf("-epsilon must be in [0,1]")
	}
	return nil
}

// checkpointPath gives each worker its own checkpoint file when more than
// one worker runs: weights.json becomes weights.w2.json for worker 2.
func checkpointPath(base string, worker, workers int) string {
	if base == "" || workers <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".w" + strconv.Itoa(worker) + ext
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
