package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteGamesParquet_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	rows := []GameRow{
		{GameID: "a", RunID: "r", Game: 1, Score: 14, Lines: 6, Level: 2, Placements: 120, Weights: []float64{-10, -20, -5, -65}, Epsilon: 0.1},
		{GameID: "b", RunID: "r", Game: 2, Score: 0, Placements: 31, Capped: true, Weights: []float64{-25, -25, -25, -25}},
	}

	path, err := WriteGamesParquet(dir, rows)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != GamesDir(dir) || !strings.HasSuffix(path, ".parquet") {
		t.Fatalf("unexpected path %s", path)
	}
	if entries, _ := os.ReadDir(filepath.Join(GamesDir(dir), "tmp")); len(entries) != 0 {
		t.Fatalf("tmp dir should be empty after rename, has %d entries", len(entries))
	}

	got, err := ReadGames(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Score != 14 || got[0].Level != 2 || got[0].Weights[3] != -65 {
		t.Fatalf("row 0 mismatch: %+v", got[0])
	}
	if !got[1].Capped || got[1].GameID != "b" {
		t.Fatalf("row 1 mismatch: %+v", got[1])
	}
}

func TestBatchWriter_Placements(t *testing.T) {
	dir := t.TempDir()
	bw, err := NewPlacementWriter(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	board := make([]byte, 200)
	board[199] = 3
	game := []PlacementRow{
		{GameID: "g", Placement: 1, Width: 10, Height: 20, Shape: "O", Offset: -4, Reward: -4, HeightSum: 4, Weights: []float64{-1, -1, -1, -30}, Board: board},
		{GameID: "g", Placement: 2, Width: 10, Height: 20, Shape: "I", Rotation: 1, Explored: true, Legal: 17, Board: board},
	}
	if err := bw.WriteRows(game); err != nil {
		t.Fatalf("write: %v", err)
	}
	bw.NoteGameWritten()

	path, rows, games, err := bw.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if rows != 2 || games != 1 || path != bw.OutPath() {
		t.Fatalf("finalize = %s %d %d", path, rows, games)
	}
	if err := bw.WriteRows(game); err == nil {
		t.Fatalf("expected error writing to a finalized writer")
	}

	got, err := ReadPlacements(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Shape != "O" || got[0].Offset != -4 || !got[1].Explored {
		t.Fatalf("unexpected rows: %+v", got)
	}
	if len(got[0].Board) != 200 || got[0].Board[199] != 3 {
		t.Fatalf("board not preserved")
	}
}

func TestBatchWriter_EmptyFinalize(t *testing.T) {
	dir := t.TempDir()
	bw, err := NewPlacementWriter(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	path, rows, _, err := bw.Finalize()
	if err != nil || path != "" || rows != 0 {
		t.Fatalf("empty finalize = %q %d %v", path, rows, err)
	}
	matches, _ := filepath.Glob(filepath.Join(PlacementsDir(dir), "*.parquet"))
	if len(matches) != 0 {
		t.Fatalf("empty batch should not produce a file: %v", matches)
	}
}

func TestCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt", "weights.json")
	cp := Checkpoint{Weights: [4]float64{-12.5, -20, -7.5, -60}, Epsilon: 0.25, Games: 9, Placements: 1400}
	if err := SaveCheckpoint(path, cp); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp checkpoint left behind: %v", err)
	}

	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Weights != cp.Weights || got.Epsilon != cp.Epsilon || got.Games != 9 || got.Placements != 1400 {
		t.Fatalf("checkpoint mismatch: %+v", got)
	}
	if got.SavedAt.IsZero() {
		t.Fatalf("saved_at not stamped")
	}

	if err := SaveCheckpoint(path, Checkpoint{}); err != nil {
		t.Fatalf("save zero: %v", err)
	}
	if _, err := LoadCheckpoint(path); err == nil {
		t.Fatalf("expected all-zero weights to be rejected")
	}

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCheckpoint(path); err == nil {
		t.Fatalf("expected decode error")
	}
}
