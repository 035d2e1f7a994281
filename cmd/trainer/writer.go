package main

import (
	"log/slog"

	"github.com/brensch/tetromino/store"
)

type gameWriteRequest struct {
	placements []store.PlacementRow
	game       store.GameRow
}

// parquetWriterLoop owns every parquet file of the run. Placements stream into
// one BatchWriter per flush window and the game summaries of the same window
// are written as one atomic batch when the window closes.
func parquetWriterLoop(outDir string, gamesPerFlush int, in <-chan gameWriteRequest, logger *slog.Logger) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 25
	}

	var placements *store.BatchWriter[store.PlacementRow]
	pendingGames := make([]store.GameRow, 0, gamesPerFlush)

	flush := func(final bool) {
		if placements != nil {
			outPath, rows, games, err := placements.Finalize()
			placements = nil
			if err != nil {
				logger.Error("placement flush failed", "err", err)
			} else if outPath != "" {
				logger.Info("placement flush ok", "path", outPath, "games", games, "rows", rows, "final", final)
			}
		}
		if len(pendingGames) > 0 {
			outPath, err := store.WriteGamesParquet(outDir, pendingGames)
			if err != nil {
				logger.Error("game flush failed", "games", len(pendingGames), "err", err)
			} else {
				logger.Info("game flush ok", "path", outPath, "games", len(pendingGames), "final", final)
			}
			pendingGames = pendingGames[:0]
		}
	}

	for req := range in {
		if len(req.placements) > 0 {
			if placements == nil {
				bw, err := store.NewPlacementWriter(outDir)
				if err != nil {
					logger.Error("open placement batch failed", "err", err)
				} else {
					placements = bw
				}
			}
			if placements != nil {
				if err := placements.WriteRows(req.placements); err != nil {
					logger.Error("write placements failed", "game_id", req.game.GameID, "err", err)
				} else {
					placements.NoteGameWritten()
				}
			}
		}
		pendingGames = append(pendingGames, req.game)

		if len(pendingGames) >= gamesPerFlush {
			flush(false)
		}
	}
	flush(true)
}
