// Package policy implements the linear placement policy: board features, the
// weighted evaluator, the exhaustive move search with epsilon-greedy
// exploration and the online weight update.
package policy

import (
	"fmt"

	"github.com/brensch/tetromino/game"
)

// NumFeatures is the length of the feature and weight vectors.
const NumFeatures = 4

// Features summarises a board for the evaluator.
type Features struct {
	HeightSum int // sum of column heights
	Bumpiness int // sum of |h[i+1] - h[i]| over adjacent columns
	MaxHeight int
	Holes     int // empty cells with an occupied cell somewhere above them
}

// Vector returns the features in weight order.
func (f Features) Vector() [NumFeatures]float64 {
	return [NumFeatures]float64{
		float64(f.HeightSum),
		float64(f.Bumpiness),
		float64(f.MaxHeight),
		float64(f.Holes),
	}
}

func (f Features) String() string {
	return fmt.Sprintf("height=%d bump=%d max=%d holes=%d", f.HeightSum, f.Bumpiness, f.MaxHeight, f.Holes)
}

// Extract computes the four features of b. Each column is scanned top to
// bottom once: the first occupied cell fixes the column height and every
// empty cell below it is a hole.
func Extract(b *game.Board) Features {
	var f Features
	prev := 0
	for x := 0; x < b.Width(); x++ {
		height := 0
		seen := false
		for y := 0; y < b.Height(); y++ {
			if b.Occupied(x, y) {
				if !seen {
					height = b.Height() - y
					seen = true
				}
				continue
			}
			if seen {
				f.Holes++
			}
		}

		f.HeightSum += height
		if height > f.MaxHeight {
			f.MaxHeight = height
		}
		if x > 0 {
			d := height - prev
			if d < 0 {
				d = -d
			}
			f.Bumpiness += d
		}
		prev = height
	}
	return f
}
