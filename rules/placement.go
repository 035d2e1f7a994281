// Package rules simulates hypothetical placements: validity checks, hard
// drops, locking and the one-step reward of a placement.
package rules

import (
	"errors"

	"github.com/brensch/tetromino/game"
)

// ErrIllegalMove is returned when a candidate rotation/offset collides with
// the board or leaves its horizontal bounds.
var ErrIllegalMove = errors.New("illegal move")

// LineClearBonus scales the quadratic line-clear term of the reward.
const LineClearBonus = 5

// Move is a candidate placement relative to the piece's current state:
// Rotation forward rotation states, then Offset columns (negative is left).
type Move struct {
	Rotation int
	Offset   int
}

// Outcome is the result of a simulated placement.
type Outcome struct {
	Piece  game.Piece // locked position of the piece
	Lines  int        // rows cleared by the placement
	Reward float64
}

// IsValidPosition reports whether p shifted by (dx, dy) fits on b. Cells of
// the bitmap above the top of the board are never checked, so a piece may
// protrude above the playfield.
func IsValidPosition(b *game.Board, p game.Piece, dx, dy int) bool {
	bm := p.Bitmap()
	for row := 0; row < game.TemplateSize; row++ {
		if bm[row] == 0 {
			continue
		}
		y := p.Y + dy + row
		if y < 0 {
			continue
		}
		for col := 0; col < game.TemplateSize; col++ {
			if !bm.Filled(col, row) {
				continue
			}
			x := p.X + dx + col
			if x < 0 || x >= b.Width() || y >= b.Height() {
				return false
			}
			if b.Occupied(x, y) {
				return false
			}
		}
	}
	return true
}

// HardDrop moves p down one row at a time while the next row is still a
// valid position and returns the lowest valid position.
func HardDrop(b *game.Board, p game.Piece) game.Piece {
	for IsValidPosition(b, p, 0, 1) {
		p.Y++
	}
	return p
}

// Lock writes p's cells into b. Cells outside the board are dropped silently,
// which tolerates pieces locked while partly above the playfield.
func Lock(b *game.Board, p game.Piece) {
	p.Bitmap().Cells(func(col, row int) {
		b.Set(p.X+col, p.Y+row, p.Color)
	})
}

// Reward is the one-step reward of a placement that cleared lines rows and
// moved the aggregate height from heightBefore to heightAfter.
func Reward(lines, heightBefore, heightAfter int) float64 {
	return float64(LineClearBonus*lines*lines - (heightAfter - heightBefore))
}

// SimulateInto plays m for piece p on a copy of b written into dst, which
// must not alias b. Neither b nor p is modified. On ErrIllegalMove the
// contents of dst are unspecified.
func SimulateInto(dst, b *game.Board, p game.Piece, m Move) (Outcome, error) {
	p = p.Rotate(m.Rotation)
	if !IsValidPosition(b, p, m.Offset, 0) {
		return Outcome{}, ErrIllegalMove
	}
	p.X += m.Offset
	p = HardDrop(b, p)

	dst.CopyFrom(b)
	Lock(dst, p)
	lines := dst.ClearCompletedRows()

	return Outcome{
		Piece:  p,
		Lines:  lines,
		Reward: Reward(lines, b.AggregateHeight(), dst.AggregateHeight()),
	}, nil
}

// Simulate is SimulateInto with a freshly allocated result board.
func Simulate(b *game.Board, p game.Piece, m Move) (game.Board, Outcome, error) {
	var dst game.Board
	out, err := SimulateInto(&dst, b, p, m)
	if err != nil {
		return game.Board{}, Outcome{}, err
	}
	return dst, out, nil
}
