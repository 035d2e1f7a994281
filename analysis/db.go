// Package analysis queries self-play output with DuckDB: the learning curve
// of a training run, aggregate stats and the placements of a single game.
package analysis

import (
	"database/sql"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DBCache keeps an in-memory DuckDB connection whose views cover every
// parquet file under the roots. The views are rebuilt after refreshRate so
// new batches written by a running trainer become visible.
type DBCache struct {
	roots       []string
	refreshRate time.Duration
	logger      *slog.Logger

	mu          sync.RWMutex
	db          *sql.DB
	lastRefresh time.Time
}

// NewDBCache returns a cache over roots. A nil logger uses slog.Default.
func NewDBCache(roots []string, refreshRate time.Duration, logger *slog.Logger) *DBCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBCache{
		roots:       roots,
		refreshRate: refreshRate,
		logger:      logger,
	}
}

// Get returns the cached DB connection, refreshing if needed.
func (c *DBCache) Get() (*sql.DB, error) {
	c.mu.RLock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		db := c.db
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil && time.Since(c.lastRefresh) < c.refreshRate {
		return c.db, nil
	}
	return c.refreshLocked()
}

// Refresh forces the views to be rebuilt.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.refreshLocked()
	return err
}

func (c *DBCache) refreshLocked() (*sql.DB, error) {
	start := time.Now()
	newDB, err := Open(c.roots)
	if err != nil {
		return nil, err
	}
	if c.db != nil {
		_ = c.db.Close()
	}
	c.db = newDB
	c.lastRefresh = time.Now()
	c.logger.Debug("duckdb views refreshed", "roots", c.roots, "took", time.Since(start))
	return c.db, nil
}

func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// Open returns a DuckDB connection with two views, games and placements,
// reading the parquet files under <root>/games and <root>/placements.
// Files still being written under a tmp/ directory are excluded.
func Open(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("PRAGMA threads=4")

	views := []struct {
		name   string
		subdir string
		empty  string
	}{
		{"games", "games", emptyGamesView},
		{"placements", "placements", emptyPlacementsView},
	}
	for _, v := range views {
		if err := createView(db, v.name, parquetGlobs(roots, v.subdir), v.empty); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func createView(db *sql.DB, name string, globs []string, empty string) error {
	if len(globs) == 0 {
		_, err := db.Exec(`CREATE OR REPLACE VIEW ` + name + ` AS SELECT * FROM (` + empty + `) WHERE 1=0`)
		return err
	}
	quoted := make([]string, len(globs))
	for i, g := range globs {
		quoted[i] = "'" + escapeSQLString(g) + "'"
	}
	sqlText := `CREATE OR REPLACE VIEW ` + name + ` AS
		SELECT * FROM read_parquet([` + strings.Join(quoted, ",") + `], filename=true, union_by_name=true)
		WHERE NOT contains(filename, '/tmp/')`
	_, err := db.Exec(sqlText)
	return err
}

// parquetGlobs returns one recursive glob per root whose subdir holds at least
// one finished parquet file. read_parquet fails on a glob with no matches, so
// empty roots are left out.
func parquetGlobs(roots []string, subdir string) []string {
	globs := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		dir := filepath.Join(root, subdir)
		if !hasParquet(dir) {
			continue
		}
		globs = append(globs, filepath.ToSlash(filepath.Join(dir, "**", "*.parquet")))
	}
	return globs
}

func hasParquet(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".parquet") {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	return found
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

const emptyGamesView = `SELECT
	NULL::VARCHAR AS game_id,
	NULL::VARCHAR AS run_id,
	NULL::INTEGER AS game,
	NULL::BIGINT AS score,
	NULL::BIGINT AS lines,
	NULL::INTEGER AS level,
	NULL::INTEGER AS placements,
	NULL::BOOLEAN AS capped,
	NULL::DOUBLE[] AS weights,
	NULL::DOUBLE AS epsilon,
	NULL::BIGINT AS ended_ns,
	NULL::VARCHAR AS source,
	NULL::VARCHAR AS filename`

const emptyPlacementsView = `SELECT
	NULL::VARCHAR AS game_id,
	NULL::INTEGER AS placement,
	NULL::INTEGER AS width,
	NULL::INTEGER AS height,
	NULL::VARCHAR AS shape,
	NULL::INTEGER AS rotation,
	NULL::INTEGER AS "offset",
	NULL::BOOLEAN AS explored,
	NULL::INTEGER AS legal,
	NULL::INTEGER AS lines,
	NULL::DOUBLE AS reward,
	NULL::DOUBLE AS score,
	NULL::INTEGER AS height_sum,
	NULL::INTEGER AS bumpiness,
	NULL::INTEGER AS max_height,
	NULL::INTEGER AS holes,
	NULL::DOUBLE[] AS weights,
	NULL::DOUBLE AS epsilon,
	NULL::BLOB AS board,
	NULL::VARCHAR AS source,
	NULL::VARCHAR AS filename`
