package policy

import (
	"errors"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/tetromino/game"
	"github.com/brensch/tetromino/rules"
)

// ErrNoLegalMove is returned when no candidate placement is legal. Callers
// treat it as game over.
var ErrNoLegalMove = errors.New("no legal move")

// MaxOffset is the largest horizontal offset searched in either direction on
// a board of the given width.
func MaxOffset(width int) int {
	return width / 2
}

// Candidate is one simulated placement.
type Candidate struct {
	Move    rules.Move
	Outcome rules.Outcome
	Score   float64
	// Board is the resulting board. It points into the searcher's scratch
	// arena and is only valid until the next search.
	Board *game.Board
}

// Choice is the move picked by a search.
type Choice struct {
	Candidate
	Explored bool // picked uniformly at random instead of by score
	Legal    int  // number of legal candidates
}

type slot struct {
	move  rules.Move
	out   rules.Outcome
	score float64
	legal bool
}

// Searcher enumerates every (rotation, offset) candidate of a piece. It keeps
// one scratch board per candidate and reuses them across searches, so a
// Searcher must not be used by more than one goroutine at a time.
type Searcher struct {
	// Parallelism > 1 evaluates candidates on that many goroutines. Results
	// are reduced in enumeration order, so the choice does not depend on it.
	Parallelism int

	scratch []game.Board
	slots   []slot
}

func NewSearcher(parallelism int) *Searcher {
	return &Searcher{Parallelism: parallelism}
}

// Moves lists the candidates for p on a board of the given width in
// enumeration order: rotation count ascending, then offset ascending.
func Moves(p game.Piece, width int) []rules.Move {
	maxOff := MaxOffset(width)
	moves := make([]rules.Move, 0, p.Shape.Rotations()*(2*maxOff+1))
	for rot := 0; rot < p.Shape.Rotations(); rot++ {
		for off := -maxOff; off <= maxOff; off++ {
			moves = append(moves, rules.Move{Rotation: rot, Offset: off})
		}
	}
	return moves
}

func (s *Searcher) evaluate(i int, b *game.Board, p game.Piece, w Weights) {
	sl := &s.slots[i]
	out, err := rules.SimulateInto(&s.scratch[i], b, p, sl.move)
	if err != nil {
		sl.legal = false
		return
	}
	sl.out = out
	sl.score = w.Score(&s.scratch[i])
	sl.legal = true
}

// SelectMove simulates every candidate for p on b, scores the legal ones
// with w and returns the highest scoring move. Ties go to the candidate
// enumerated first. With probability epsilon a uniformly random legal move
// is returned instead; rng may be nil when epsilon is 0.
func (s *Searcher) SelectMove(b *game.Board, p game.Piece, w Weights, epsilon float64, rng *rand.Rand) (Choice, error) {
	moves := Moves(p, b.Width())
	if len(s.scratch) < len(moves) {
		s.scratch = append(s.scratch, make([]game.Board, len(moves)-len(s.scratch))...)
	}
	if cap(s.slots) < len(moves) {
		s.slots = make([]slot, len(moves))
	}
	s.slots = s.slots[:len(moves)]
	for i, m := range moves {
		s.slots[i] = slot{move: m}
	}

	if s.Parallelism > 1 {
		var g errgroup.Group
		g.SetLimit(s.Parallelism)
		for i := range moves {
			g.Go(func() error {
				s.evaluate(i, b, p, w)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range moves {
			s.evaluate(i, b, p, w)
		}
	}

	best := -1
	bestScore := math.Inf(-1)
	legal := make([]int, 0, len(moves))
	for i := range s.slots {
		if !s.slots[i].legal {
			continue
		}
		legal = append(legal, i)
		if best < 0 || s.slots[i].score > bestScore {
			best = i
			bestScore = s.slots[i].score
		}
	}
	if best < 0 {
		return Choice{}, ErrNoLegalMove
	}

	pick := best
	explored := false
	if epsilon > 0 && rng != nil && rng.Float64() < epsilon {
		pick = legal[rng.Intn(len(legal))]
		explored = true
	}

	sl := s.slots[pick]
	return Choice{
		Candidate: Candidate{
			Move:    sl.move,
			Outcome: sl.out,
			Score:   sl.score,
			Board:   &s.scratch[pick],
		},
		Explored: explored,
		Legal:    len(legal),
	}, nil
}

// SelectMove runs a one-off serial search. See Searcher.SelectMove.
func SelectMove(b *game.Board, p game.Piece, w Weights, epsilon float64, rng *rand.Rand) (rules.Move, error) {
	c, err := NewSearcher(1).SelectMove(b, p, w, epsilon, rng)
	if err != nil {
		return rules.Move{}, err
	}
	return c.Move, nil
}
