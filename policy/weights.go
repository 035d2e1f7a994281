package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/brensch/tetromino/game"
)

// ErrDegenerateWeights is returned when renormalisation would divide by a
// zero or non-finite norm.
var ErrDegenerateWeights = errors.New("degenerate weight vector")

const (
	// WeightNorm is the L1 norm every updated weight vector is rescaled to.
	WeightNorm = 100
	// weightPrecision truncates weights to four decimal digits.
	weightPrecision = 1e4
)

// Weights are the coefficients of the linear evaluator, in feature order:
// height sum, bumpiness, max height, holes.
type Weights [NumFeatures]float64

// DefaultWeights is the starting policy.
var DefaultWeights = Weights{-1, -1, -1, -30}

// Score is the weighted sum of the features of b.
func (w Weights) Score(b *game.Board) float64 {
	return w.Dot(Extract(b))
}

// Dot is the weighted sum of f.
func (w Weights) Dot(f Features) float64 {
	v := f.Vector()
	var s float64
	for i := range w {
		s += w[i] * v[i]
	}
	return s
}

// Evaluate scores b under w.
func Evaluate(b *game.Board, w Weights) float64 {
	return w.Score(b)
}

// L1 is the sum of absolute weight values.
func (w Weights) L1() float64 {
	var n float64
	for _, v := range w {
		n += math.Abs(v)
	}
	return n
}

// Validate reports ErrDegenerateWeights for an all-zero or non-finite vector.
func (w Weights) Validate() error {
	n := w.L1()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("%w: %v", ErrDegenerateWeights, [NumFeatures]float64(w))
	}
	return nil
}

// Update applies one learning step and returns the new weights:
//
//	w[i] += rate * w[i] * (reward - before[i] + discount*after[i])
//
// followed by rescaling to an L1 norm of WeightNorm and truncation toward
// zero at four decimal digits.
//
// The correction is proportional to w[i] itself, so a weight that reaches
// zero stays there. The receiver is unchanged on error.
func (w Weights) Update(before, after Features, reward, rate, discount float64) (Weights, error) {
	old := before.Vector()
	cur := after.Vector()

	var next Weights
	for i := range w {
		next[i] = w[i] + rate*w[i]*(reward-old[i]+discount*cur[i])
	}
	out, err := next.Normalize()
	if err != nil {
		return w, err
	}
	return out, nil
}

// Normalize rescales w to an L1 norm of WeightNorm and truncates each weight
// toward zero at four decimal digits.
func (w Weights) Normalize() (Weights, error) {
	if err := w.Validate(); err != nil {
		return w, err
	}
	norm := w.L1()
	var out Weights
	for i, v := range w {
		out[i] = math.Trunc(weightPrecision*(WeightNorm*v/norm)) / weightPrecision
	}
	return out, nil
}

func (w Weights) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f %.4f]", w[0], w[1], w[2], w[3])
}
