package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// BatchWriter streams rows into a parquet file under outDir/tmp and moves it
// into outDir on Finalize. A BatchWriter is single-use.
type BatchWriter[T any] struct {
	outDir string
	tmpDir string

	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[T]

	bufferedGames int
	bufferedRows  int
}

func NewBatchWriter[T any](outDir, prefix, schema string) (*BatchWriter[T], error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := fmt.Sprintf("%s_%d.parquet", prefix, time.Now().UnixNano())
	tmpPath := filepath.Join(tmpDir, name)
	outPath := filepath.Join(absOut, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[T](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", schema)

	return &BatchWriter[T]{
		outDir:  absOut,
		tmpDir:  tmpDir,
		tmpPath: tmpPath,
		outPath: outPath,
		file:    f,
		writer:  w,
	}, nil
}

// NewPlacementWriter opens a placement batch under outDir/placements.
func NewPlacementWriter(outDir string) (*BatchWriter[PlacementRow], error) {
	return NewBatchWriter[PlacementRow](PlacementsDir(outDir), "placements", PlacementSchema)
}

func (b *BatchWriter[T]) OutPath() string    { return b.outPath }
func (b *BatchWriter[T]) BufferedGames() int { return b.bufferedGames }
func (b *BatchWriter[T]) BufferedRows() int  { return b.bufferedRows }

func (b *BatchWriter[T]) WriteRows(rows []T) error {
	if b.writer == nil || b.file == nil {
		return fmt.Errorf("batch writer is closed")
	}
	if len(rows) == 0 {
		return nil
	}
	if _, err := b.writer.Write(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	b.bufferedRows += len(rows)
	return nil
}

func (b *BatchWriter[T]) NoteGameWritten() {
	b.bufferedGames++
}

// Finalize closes the parquet writer and moves the file from tmp/ to outDir.
// If no rows were written, the tmp file is removed and outPath is returned empty.
func (b *BatchWriter[T]) Finalize() (outPath string, rows int, games int, err error) {
	if b.writer == nil && b.file == nil {
		return "", 0, 0, nil
	}

	rows = b.bufferedRows
	games = b.bufferedGames
	outPath = b.outPath

	var closeErr error
	if b.writer != nil {
		closeErr = b.writer.Close()
		b.writer = nil
	}
	var fileErr error
	if b.file != nil {
		_ = b.file.Sync()
		fileErr = b.file.Close()
		b.file = nil
	}
	if closeErr != nil {
		return "", 0, 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, 0, fmt.Errorf("close parquet file: %w", fileErr)
	}

	if rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, 0, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, 0, fmt.Errorf("rename parquet: %w", err)
	}
	return outPath, rows, games, nil
}
