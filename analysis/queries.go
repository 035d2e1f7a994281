package analysis

import (
	"context"
	"database/sql"
	"fmt"
)

// CurvePoint is one finished game of a training run.
type CurvePoint struct {
	RunID      string     `json:"run_id"`
	Game       int        `json:"game"`
	Score      int64      `json:"score"`
	Lines      int64      `json:"lines"`
	Level      int        `json:"level"`
	Placements int        `json:"placements"`
	Capped     bool       `json:"capped"`
	Weights    [4]float64 `json:"weights"`
	Epsilon    float64    `json:"epsilon"`
}

// MeanPoint averages every run's game with the same index.
type MeanPoint struct {
	Game       int     `json:"game"`
	Runs       int     `json:"runs"`
	Score      float64 `json:"score"`
	Lines      float64 `json:"lines"`
	Placements float64 `json:"placements"`
}

type Stats struct {
	Games          int64   `json:"games"`
	Runs           int64   `json:"runs"`
	Placements     int64   `json:"placements"`
	Lines          int64   `json:"lines"`
	BestScore      int64   `json:"best_score"`
	MeanScore      float64 `json:"mean_score"`
	MeanPlacements float64 `json:"mean_placements"`
	CappedGames    int64   `json:"capped_games"`
	LastEndedNs    int64   `json:"last_ended_ns"`
}

// PlacementPoint is one placement of a recorded game.
type PlacementPoint struct {
	Placement int     `json:"placement"`
	Shape     string  `json:"shape"`
	Rotation  int     `json:"rotation"`
	Offset    int     `json:"offset"`
	Explored  bool    `json:"explored"`
	Lines     int     `json:"lines"`
	Reward    float64 `json:"reward"`
	HeightSum int     `json:"height_sum"`
	Bumpiness int     `json:"bumpiness"`
	MaxHeight int     `json:"max_height"`
	Holes     int     `json:"holes"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Board     []byte  `json:"board"`
}

// LearningCurve returns every game ordered by run and game index. A non-empty
// runID restricts the result to that run.
func LearningCurve(ctx context.Context, db *sql.DB, runID string) ([]CurvePoint, error) {
	query := `SELECT
			coalesce(run_id, '')::VARCHAR,
			game::INTEGER,
			score::BIGINT,
			lines::BIGINT,
			level::INTEGER,
			placements::INTEGER,
			coalesce(capped, false),
			coalesce(weights[1], 0)::DOUBLE,
			coalesce(weights[2], 0)::DOUBLE,
			coalesce(weights[3], 0)::DOUBLE,
			coalesce(weights[4], 0)::DOUBLE,
			coalesce(epsilon, 0)::DOUBLE
		FROM games`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY run_id, game`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query learning curve: %w", err)
	}
	defer rows.Close()

	out := make([]CurvePoint, 0, 128)
	for rows.Next() {
		var p CurvePoint
		if err := rows.Scan(&p.RunID, &p.Game, &p.Score, &p.Lines, &p.Level, &p.Placements, &p.Capped,
			&p.Weights[0], &p.Weights[1], &p.Weights[2], &p.Weights[3], &p.Epsilon); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MeanCurve averages score, lines and placements per game index across runs.
func MeanCurve(ctx context.Context, db *sql.DB) ([]MeanPoint, error) {
	rows, err := db.QueryContext(ctx, `SELECT
			game::INTEGER,
			COUNT(*)::INTEGER,
			avg(score)::DOUBLE,
			avg(lines)::DOUBLE,
			avg(placements)::DOUBLE
		FROM games
		GROUP BY game
		ORDER BY game`)
	if err != nil {
		return nil, fmt.Errorf("query mean curve: %w", err)
	}
	defer rows.Close()

	var out []MeanPoint
	for rows.Next() {
		var p MeanPoint
		if err := rows.Scan(&p.Game, &p.Runs, &p.Score, &p.Lines, &p.Placements); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func QueryStats(ctx context.Context, db *sql.DB) (Stats, error) {
	var s Stats
	err := db.QueryRowContext(ctx, `SELECT
			COUNT(*)::BIGINT,
			COUNT(DISTINCT run_id)::BIGINT,
			coalesce(sum(placements), 0)::BIGINT,
			coalesce(sum(lines), 0)::BIGINT,
			coalesce(max(score), 0)::BIGINT,
			coalesce(avg(score), 0)::DOUBLE,
			coalesce(avg(placements), 0)::DOUBLE,
			coalesce(sum(CASE WHEN capped THEN 1 ELSE 0 END), 0)::BIGINT,
			coalesce(max(ended_ns), 0)::BIGINT
		FROM games`).Scan(&s.Games, &s.Runs, &s.Placements, &s.Lines, &s.BestScore, &s.MeanScore,
		&s.MeanPlacements, &s.CappedGames, &s.LastEndedNs)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return s, nil
}

// GamePlacements returns the recorded placements of one game in order.
// sql.ErrNoRows is returned when the game has none.
func GamePlacements(ctx context.Context, db *sql.DB, gameID string) ([]PlacementPoint, error) {
	rows, err := db.QueryContext(ctx, `SELECT
			placement::INTEGER,
			shape::VARCHAR,
			rotation::INTEGER,
			"offset"::INTEGER,
			coalesce(explored, false),
			lines::INTEGER,
			reward::DOUBLE,
			height_sum::INTEGER,
			bumpiness::INTEGER,
			max_height::INTEGER,
			holes::INTEGER,
			width::INTEGER,
			height::INTEGER,
			board
		FROM placements
		WHERE game_id = ?
		ORDER BY placement`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer rows.Close()

	var out []PlacementPoint
	for rows.Next() {
		var p PlacementPoint
		if err := rows.Scan(&p.Placement, &p.Shape, &p.Rotation, &p.Offset, &p.Explored, &p.Lines, &p.Reward,
			&p.HeightSum, &p.Bumpiness, &p.MaxHeight, &p.Holes, &p.Width, &p.Height, &p.Board); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return out, nil
}
