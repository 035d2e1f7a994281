// Command debuggame plays a single seeded game, prints every placement and
// writes the game so it can be inspected through the trainer's /api routes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/brensch/tetromino/policy"
	"github.com/brensch/tetromino/selfplay"
	"github.com/brensch/tetromino/store"
)

func main() {
	outDir := flag.String("out-dir", "debug_games", "Output directory for debug games")
	checkpoint := flag.String("checkpoint", "", "Start from the weights in this checkpoint instead of the defaults")
	seed := flag.Int64("seed", 1, "Random seed for pieces and exploration")
	epsilon := flag.Float64("epsilon", 0, "Exploration rate for this game")
	maxPlacements := flag.Int("max-placements", 1000, "Stop after this many placements")
	boards := flag.Bool("boards", false, "Print the board after every placement")
	apiHost := flag.String("api", "http://localhost:8080", "Trainer API base URL")
	flag.Parse()

	weights := policy.DefaultWeights
	if *checkpoint != "" {
		cp, err := store.LoadCheckpoint(*checkpoint)
		if err != nil {
			log.Fatalf("Failed to load checkpoint: %v", err)
		}
		weights = policy.Weights(cp.Weights)
		log.Printf("Loaded weights %s from %s (games=%d)", weights, *checkpoint, cp.Games)
	}

	cfg := policy.DefaultConfig()
	cfg.Epsilon = *epsilon
	sess, err := policy.NewSession(weights, cfg, rand.New(rand.NewSource(*seed)))
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Printf("Generating debug game with weights %s, epsilon=%.3f, seed=%d", weights, *epsilon, *seed)

	out, err := selfplay.PlayGame(ctx, sess, selfplay.Options{
		Rng:           rand.New(rand.NewSource(*seed + 1)),
		Source:        "debug",
		MaxPlacements: *maxPlacements,
		KeepRows:      true,
		OnStep: func(ev selfplay.StepEvent) {
			d := ev.Decision
			marker := ""
			if d.Explored {
				marker = " (explored)"
			}
			fmt.Printf("  Placement %4d | %s rot=%d off=%+d | lines %d | score %d | %s%s\n",
				ev.Placement, d.Piece.Shape, d.Move.Rotation, d.Move.Offset, d.Lines, ev.Score, d.After, marker)
			if *boards {
				fmt.Println(d.Board.String())
			}
		},
	})
	if err != nil {
		log.Fatalf("Failed to generate debug game: %v", err)
	}

	log.Printf("Game complete: %d placements, score %d, lines %d, level %d, capped=%v",
		out.Result.Placements, out.Result.Score, out.Result.Lines, out.Result.Level, out.Capped)
	log.Printf("Final weights: %s", out.Weights)

	bw, err := store.NewPlacementWriter(*outDir)
	if err != nil {
		log.Fatalf("Failed to open placement batch: %v", err)
	}
	if err := bw.WriteRows(out.Rows); err != nil {
		log.Fatalf("Failed to write placements: %v", err)
	}
	bw.NoteGameWritten()
	placementsPath, _, _, err := bw.Finalize()
	if err != nil {
		log.Fatalf("Failed to finalize placements: %v", err)
	}
	gamesPath, err := store.WriteGamesParquet(*outDir, []store.GameRow{{
		GameID:     out.GameID,
		RunID:      "debug",
		Game:       1,
		Score:      int64(out.Result.Score),
		Lines:      int64(out.Result.Lines),
		Level:      int32(out.Result.Level),
		Placements: int32(out.Result.Placements),
		Capped:     out.Capped,
		Weights:    append([]float64(nil), out.Weights[:]...),
		Epsilon:    out.Epsilon,
		EndedNs:    time.Now().UnixNano(),
		Source:     "debug",
	}})
	if err != nil {
		log.Fatalf("Failed to write game summary: %v", err)
	}

	log.Printf("Debug game written to: %s and %s", placementsPath, gamesPath)

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("  Debug game ready! Serve %s with the trainer and open:\n", *outDir)
	fmt.Printf("  %s/api/games/%s/placements\n", *apiHost, out.GameID)
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
	if !out.Completed {
		os.Exit(1)
	}
}
