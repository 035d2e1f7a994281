package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const (
	PlacementSchema = "placement_v1"
	GameSchema      = "game_summary_v1"
)

// PlacementRow is a single committed placement of a self-play game.
//
// Board is the post-placement grid, one byte per cell in row-major order
// (top row first), 0 for empty and the palette color otherwise.
// Weights are the policy weights after the update for this placement, in
// feature order: height sum, bumpiness, max height, holes.
type PlacementRow struct {
	GameID    string `parquet:"game_id,dict"`
	Placement int32  `parquet:"placement"`
	Width     int32  `parquet:"width"`
	Height    int32  `parquet:"height"`

	Shape    string `parquet:"shape,dict"`
	Rotation int32  `parquet:"rotation"`
	Offset   int32  `parquet:"offset"`
	Explored bool   `parquet:"explored"`
	Legal    int32  `parquet:"legal"`

	Lines  int32   `parquet:"lines"`
	Reward float64 `parquet:"reward"`
	Score  float64 `parquet:"score"`

	HeightSum int32 `parquet:"height_sum"`
	Bumpiness int32 `parquet:"bumpiness"`
	MaxHeight int32 `parquet:"max_height"`
	Holes     int32 `parquet:"holes"`

	Weights []float64 `parquet:"weights"`
	Epsilon float64   `parquet:"epsilon"`

	Board  []byte `parquet:"board,zstd"`
	Source string `parquet:"source,dict"`
}

// GameRow summarises one finished game. Game is the index of the game within
// its training run, starting at 1.
type GameRow struct {
	GameID     string    `parquet:"game_id,dict"`
	RunID      string    `parquet:"run_id,dict"`
	Game       int32     `parquet:"game"`
	Score      int64     `parquet:"score"`
	Lines      int64     `parquet:"lines"`
	Level      int32     `parquet:"level"`
	Placements int32     `parquet:"placements"`
	Capped     bool      `parquet:"capped"`
	Weights    []float64 `parquet:"weights"`
	Epsilon    float64   `parquet:"epsilon"`
	EndedNs    int64     `parquet:"ended_ns"`
	Source     string    `parquet:"source,dict"`
}

// WriteBatchParquetAtomic writes rows into outDir/tmp and then atomically
// moves the file into outDir, so readers never observe a partial file.
// The returned path is the final parquet file path.
func WriteBatchParquetAtomic[T any](outDir, prefix, schema string, rows []T) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d.parquet", prefix, time.Now().UnixNano())
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", schema),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}
	return finalPath, nil
}

// WriteGamesParquet writes a batch of game summaries under outDir/games.
func WriteGamesParquet(outDir string, rows []GameRow) (string, error) {
	return WriteBatchParquetAtomic(GamesDir(outDir), "games", GameSchema, rows)
}

func GamesDir(outDir string) string      { return filepath.Join(outDir, "games") }
func PlacementsDir(outDir string) string { return filepath.Join(outDir, "placements") }

// ReadGames loads every game summary row from a parquet file.
func ReadGames(path string) ([]GameRow, error) {
	rows, err := parquet.ReadFile[GameRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}

// ReadPlacements loads every placement row from a parquet file.
func ReadPlacements(path string) ([]PlacementRow, error) {
	rows, err := parquet.ReadFile[PlacementRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
