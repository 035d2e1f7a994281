package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/brensch/tetromino/feed"
	"github.com/brensch/tetromino/policy"
	"github.com/brensch/tetromino/selfplay"
	"github.com/brensch/tetromino/store"
	"github.com/google/uuid"
)

var totalPlacements atomic.Int64
var totalGames atomic.Int64
var totalLines atomic.Int64

// GameUpdate is sent to the monitor after every finished game.
type GameUpdate struct {
	WorkerID int
	Game     int
	Result   selfplay.GameResult
	Capped   bool
	Weights  policy.Weights
	Epsilon  float64
}

type worker struct {
	id      int
	cfg     config
	logger  *slog.Logger
	writes  chan<- gameWriteRequest
	updates chan<- GameUpdate
	hub     *feed.Hub
}

// newSession builds the worker's session, resuming from its checkpoint when
// asked to. A missing checkpoint file starts fresh.
func (w *worker) newSession(rng *rand.Rand) (*policy.Session, int, error) {
	weights := policy.DefaultWeights
	pcfg := w.cfg.Policy
	played := 0
	placed := 0

	path := checkpointPath(w.cfg.Checkpoint, w.id, w.cfg.Workers)
	if w.cfg.Resume {
		cp, err := store.LoadCheckpoint(path)
		switch {
		case err == nil:
			weights = policy.Weights(cp.Weights)
			pcfg.Epsilon = cp.Epsilon
			played = cp.Games
			placed = cp.Placements
			w.logger.Info("resumed from checkpoint", "path", path, "games", cp.Games, "weights", weights.String(), "epsilon", cp.Epsilon)
		case errors.Is(err, fs.ErrNotExist):
			w.logger.Warn("checkpoint not found, starting fresh", "path", path)
		default:
			return nil, 0, err
		}
	}

	sess, err := policy.NewSession(weights, pcfg, rng)
	if err != nil {
		return nil, 0, err
	}
	sess.Placements = placed
	return sess, played, nil
}

func (w *worker) run(ctx context.Context) error {
	seed := w.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	seed += int64(w.id)
	sessRng := rand.New(rand.NewSource(seed))
	pieceRng := rand.New(rand.NewSource(seed ^ 0x5deece66d))

	sess, played, err := w.newSession(sessRng)
	if err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	runID := uuid.NewString()
	logger := w.logger.With("worker", w.id, "run_id", runID)
	logger.Info("worker started", "seed", seed, "games", w.cfg.Games)

	for g := 1; g <= w.cfg.Games; g++ {
		if ctx.Err() != nil {
			return nil
		}
		gameIndex := played + g

		out, err := selfplay.PlayGame(ctx, sess, selfplay.Options{
			Width:         w.cfg.Width,
			Height:        w.cfg.Height,
			Rng:           pieceRng,
			Source:        w.cfg.Source,
			MaxPlacements: w.cfg.MaxPlacements,
			KeepRows:      true,
			Logger:        logger,
			OnStep:        w.onStep,
		})
		if err != nil {
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
		if !out.Completed {
			logger.Info("game interrupted", "game", gameIndex, "placements", out.Result.Placements)
			return nil
		}

		totalGames.Add(1)
		totalLines.Add(int64(out.Result.Lines))
		w.writes <- gameWriteRequest{
			placements: out.Rows,
			game: store.GameRow{
				GameID:     out.GameID,
				RunID:      runID,
				Game:       int32(gameIndex),
				Score:      int64(out.Result.Score),
				Lines:      int64(out.Result.Lines),
				Level:      int32(out.Result.Level),
				Placements: int32(out.Result.Placements),
				Capped:     out.Capped,
				Weights:    append([]float64(nil), out.Weights[:]...),
				Epsilon:    out.Epsilon,
				EndedNs:    time.Now().UnixNano(),
				Source:     w.cfg.Source,
			},
		}

		logger.Info("game finished",
			"game", gameIndex,
			"score", out.Result.Score,
			"lines", out.Result.Lines,
			"level", out.Result.Level,
			"placements", out.Result.Placements,
			"capped", out.Capped,
			"weights", out.Weights.String(),
			"epsilon", out.Epsilon,
		)

		if w.cfg.Checkpoint != "" {
			path := checkpointPath(w.cfg.Checkpoint, w.id, w.cfg.Workers)
			if err := store.SaveCheckpoint(path, store.Checkpoint{
				Weights:    out.Weights,
				Epsilon:    out.Epsilon,
				Games:      gameIndex,
				Placements: sess.Placements,
			}); err != nil {
				logger.Error("checkpoint save failed", "path", path, "err", err)
			}
		}

		update := GameUpdate{
			WorkerID: w.id,
			Game:     gameIndex,
			Result:   out.Result,
			Capped:   out.Capped,
			Weights:  out.Weights,
			Epsilon:  out.Epsilon,
		}
		// Avoid blocking the game loop if the monitor stops consuming.
		select {
		case w.updates <- update:
		default:
		}
		if w.hub != nil {
			_ = w.hub.Publish(feed.TypeGameEnd, feed.GameEnd{
				Worker:     w.id,
				GameID:     out.GameID,
				Game:       gameIndex,
				Score:      out.Result.Score,
				Lines:      out.Result.Lines,
				Level:      out.Result.Level,
				Placements: out.Result.Placements,
				Capped:     out.Capped,
				Weights:    out.Weights,
			})
		}
	}
	logger.Info("worker done", "games", w.cfg.Games, "weights", sess.Weights.String())
	return nil
}

func (w *worker) onStep(ev selfplay.StepEvent) {
	totalPlacements.Add(1)
	if w.hub == nil || w.hub.Clients() == 0 {
		return
	}
	d := ev.Decision
	_ = w.hub.Publish(feed.TypePlacement, feed.Placement{
		Worker:    w.id,
		GameID:    ev.GameID,
		Placement: ev.Placement,
		Shape:     d.Piece.Shape.String(),
		Rotation:  d.Move.Rotation,
		Offset:    d.Move.Offset,
		Explored:  d.Explored,
		Lines:     d.Lines,
		Score:     ev.Score,
		Weights:   d.Weights,
		Epsilon:   d.Epsilon,
		Width:     d.Board.Width(),
		Height:    d.Board.Height(),
		Rows:      d.Board.Rows(),
	})
}
