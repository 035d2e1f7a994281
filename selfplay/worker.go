package selfplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brensch/tetromino/game"
	"github.com/brensch/tetromino/policy"
	"github.com/brensch/tetromino/rules"
	"github.com/brensch/tetromino/store"
	"github.com/google/uuid"
)

type GameResult struct {
	Score      int
	Lines      int
	Placements int
	Level      int
}

// StepEvent is reported to Options.OnStep after each committed placement.
type StepEvent struct {
	GameID    string
	Placement int
	Decision  policy.Decision
	Score     int
	Lines     int
}

type Options struct {
	Width  int
	Height int

	// Rng draws the spawned pieces. The session's own random source drives
	// exploration.
	Rng *rand.Rand

	GameID string
	Source string

	// MaxPlacements ends the game early when > 0.
	MaxPlacements int

	// KeepRows controls whether a store.PlacementRow is produced per placement.
	KeepRows bool

	OnStep func(StepEvent)
	Logger *slog.Logger
}

type PlayGameOutcome struct {
	GameID    string
	Completed bool
	Capped    bool
	Result    GameResult
	Rows      []store.PlacementRow
	Board     game.Board
	Weights   policy.Weights
	Epsilon   float64
}

// PlayGame plays one game from an empty board, learning through sess after
// every placement. The game ends when a spawned piece does not fit or has no
// legal placement, or when MaxPlacements is reached.
//
// If ctx is cancelled between placements the partial outcome is returned with
// Completed false. A degenerate weight update aborts the game with an error.
func PlayGame(ctx context.Context, sess *policy.Session, opts Options) (PlayGameOutcome, error) {
	if sess == nil {
		return PlayGameOutcome{}, fmt.Errorf("play game: nil session")
	}
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = game.DefaultWidth
	}
	if height <= 0 {
		height = game.DefaultHeight
	}
	rng := opts.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	gameID := opts.GameID
	if gameID == "" {
		gameID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("game_id", gameID)

	board := game.NewBoard(width, height)
	out := PlayGameOutcome{GameID: gameID}
	if opts.KeepRows {
		out.Rows = make([]store.PlacementRow, 0, 256)
	}

	finish := func(completed bool) PlayGameOutcome {
		out.Completed = completed
		out.Result.Level = game.Level(out.Result.Score)
		out.Board = board
		out.Weights = sess.Weights
		out.Epsilon = sess.Epsilon
		return out
	}

	for {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return finish(false), nil
			default:
			}
		}

		if opts.MaxPlacements > 0 && out.Result.Placements >= opts.MaxPlacements {
			out.Capped = true
			logger.Debug("placement cap reached", "placements", out.Result.Placements)
			return finish(true), nil
		}

		p := game.SpawnPiece(rng, width)
		if !rules.IsValidPosition(&board, p, 0, 0) {
			logger.Debug("spawn blocked", "shape", p.Shape.String(), "placements", out.Result.Placements)
			return finish(true), nil
		}

		d, err := sess.Step(&board, p)
		if err != nil {
			if errors.Is(err, policy.ErrNoLegalMove) {
				logger.Debug("no legal placement", "shape", p.Shape.String(), "placements", out.Result.Placements)
				return finish(true), nil
			}
			return finish(false), fmt.Errorf("game %s placement %d: %w", gameID, out.Result.Placements+1, err)
		}

		board = d.Board
		out.Result.Placements++
		out.Result.Lines += d.Lines
		out.Result.Score += d.Lines * d.Lines

		if opts.KeepRows {
			out.Rows = append(out.Rows, placementRow(gameID, opts.Source, out.Result.Placements, p.Shape, &d))
		}
		if d.Lines > 0 {
			logger.Debug("lines cleared", "lines", d.Lines, "score", out.Result.Score)
		}
		if opts.OnStep != nil {
			opts.OnStep(StepEvent{
				GameID:    gameID,
				Placement: out.Result.Placements,
				Decision:  d,
				Score:     out.Result.Score,
				Lines:     out.Result.Lines,
			})
		}
	}
}

func placementRow(gameID, source string, n int, shape game.Shape, d *policy.Decision) store.PlacementRow {
	return store.PlacementRow{
		GameID:    gameID,
		Placement: int32(n),
		Width:     int32(d.Board.Width()),
		Height:    int32(d.Board.Height()),
		Shape:     shape.String(),
		Rotation:  int32(d.Move.Rotation),
		Offset:    int32(d.Move.Offset),
		Explored:  d.Explored,
		Legal:     int32(d.Legal),
		Lines:     int32(d.Lines),
		Reward:    d.Reward,
		Score:     d.Score,
		HeightSum: int32(d.After.HeightSum),
		Bumpiness: int32(d.After.Bumpiness),
		MaxHeight: int32(d.After.MaxHeight),
		Holes:     int32(d.After.Holes),
		Weights:   append([]float64(nil), d.Weights[:]...),
		Epsilon:   d.Epsilon,
		Board:     d.Board.Bytes(),
		Source:    source,
	}
}
