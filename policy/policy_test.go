package policy

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/brensch/tetromino/game"
	"github.com/brensch/tetromino/rules"
)

func emptyBoard() game.Board {
	return game.NewBoard(game.DefaultWidth, game.DefaultHeight)
}

func spawned(shape game.Shape) game.Piece {
	return game.Piece{Shape: shape, X: game.SpawnX(game.DefaultWidth), Y: game.SpawnY, Color: 1}
}

func TestExtract_EmptyBoard(t *testing.T) {
	b := emptyBoard()
	if got := Extract(&b); got != (Features{}) {
		t.Fatalf("Extract(empty) = %v, want zeros", got)
	}
}

func TestExtract_SingleColumn(t *testing.T) {
	b := emptyBoard()
	for y := b.Height() - 3; y < b.Height(); y++ {
		b.Set(0, y, 2)
	}
	want := Features{HeightSum: 3, Bumpiness: 3, MaxHeight: 3, Holes: 0}
	if got := Extract(&b); got != want {
		t.Fatalf("Extract = %v, want %v\n%s", got, want, b.String())
	}
}

func TestExtract_Holes(t *testing.T) {
	b := emptyBoard()
	b.Set(3, b.Height()-2, 1) // empty cell directly below it on the floor
	got := Extract(&b)
	if got.Holes != 1 {
		t.Fatalf("holes = %d, want 1\n%s", got.Holes, b.String())
	}
	if got.HeightSum != 2 || got.MaxHeight != 2 || got.Bumpiness != 4 {
		t.Fatalf("unexpected features %v", got)
	}

	// Every empty cell below the first occupied one counts.
	b.Set(6, 10, 1)
	b.Set(6, 15, 1)
	if got := Extract(&b).Holes; got != 1+8 {
		t.Fatalf("holes = %d, want 9\n%s", got, b.String())
	}
}

func TestScore_WeightedSum(t *testing.T) {
	b := emptyBoard()
	for y := b.Height() - 3; y < b.Height(); y++ {
		b.Set(0, y, 2)
	}
	b.Set(1, b.Height()-3, 1)
	// heights: 3,3 -> sum 6, bump 3, max 3, holes 2
	w := Weights{-1, -2, -3, -4}
	want := -6.0 - 2*3 - 3*3 - 4*2
	if got := Evaluate(&b, w); got != want {
		t.Fatalf("score = %v, want %v (features %v)", got, want, Extract(&b))
	}
}

func TestUpdate_Formula(t *testing.T) {
	before := Features{}
	after := Features{HeightSum: 4, Bumpiness: 2, MaxHeight: 2}
	got, err := DefaultWeights.Update(before, after, -4, 0.01, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	want := Weights{-3.1368, -3.0801, -3.0801, -90.7029}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1.5e-4 {
			t.Fatalf("weights = %v, want %v", got, want)
		}
	}
}

func TestUpdate_NormalisesToHundred(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w := DefaultWeights
	for i := 0; i < 500; i++ {
		before := Features{rng.Intn(120), rng.Intn(40), rng.Intn(20), rng.Intn(30)}
		after := Features{rng.Intn(120), rng.Intn(40), rng.Intn(20), rng.Intn(30)}
		reward := float64(rng.Intn(40) - 20)
		next, err := w.Update(before, after, reward, 0.01, 0.9)
		if errors.Is(err, ErrDegenerateWeights) {
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if n := next.L1(); math.Abs(n-WeightNorm) > NumFeatures*1e-4+1e-9 {
			t.Fatalf("step %d: L1 = %v, weights %v", i, n, next)
		}
		for _, v := range next {
			if v != math.Trunc(v*1e4)/1e4 && math.Abs(v*1e4-math.Round(v*1e4)) > 1e-6 {
				t.Fatalf("weight %v not truncated to four digits", v)
			}
		}
		w = next
	}
}

func TestNormalize_TruncatesTowardZero(t *testing.T) {
	w := Weights{-1, 0, 0, 2}
	got, err := w.Normalize()
	if err != nil {
		t.Fatal(err)
	}
	// -33.33333... and 66.66666...
	if got[0] != -33.3333 || got[3] != 66.6666 {
		t.Fatalf("got %v, want [-33.3333 0 0 66.6666]", got)
	}
}

func TestNormalize_RescalesBeforeTruncating(t *testing.T) {
	// 100*w/norm must be rounded to a float before the four-digit cut.
	rescaleThenTrunc := func(v, norm float64) float64 {
		return math.Trunc(1e4*(100*v/norm)) / 1e4
	}
	cases := []Weights{
		{-202.0 / 3, 5778.0 / 33, 0, 0},
		{-202.0 / 3, -1, -2, -5778.0/33 + 3},
	}
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 2000; i++ {
		var w Weights
		for j := range w {
			w[j] = (rng.Float64()*2 - 1) * 100
		}
		cases = append(cases, w)
	}
	for _, w := range cases {
		got, err := w.Normalize()
		if err != nil {
			t.Fatal(err)
		}
		norm := w.L1()
		for i, v := range w {
			if want := rescaleThenTrunc(v, norm); got[i] != want {
				t.Fatalf("Normalize(%v)[%d] = %v, want %v", w, i, got[i], want)
			}
		}
	}
}

func TestUpdate_DegenerateWeights(t *testing.T) {
	var zero Weights
	got, err := zero.Update(Features{}, Features{}, 0, 0.01, 0.9)
	if !errors.Is(err, ErrDegenerateWeights) {
		t.Fatalf("err = %v, want ErrDegenerateWeights", err)
	}
	if got != zero {
		t.Fatalf("weights changed on error: %v", got)
	}

	// rate*(...) == -1 drives every weight to exactly zero.
	w := Weights{1, 1, 1, 1}
	if _, err := w.Update(Features{}, Features{}, -1, 1, 0); !errors.Is(err, ErrDegenerateWeights) {
		t.Fatalf("err = %v, want ErrDegenerateWeights", err)
	}
}

func TestSelectMove_OPrefersWall(t *testing.T) {
	b := emptyBoard()
	p := spawned(game.ShapeO)

	m, err := SelectMove(&b, p, DefaultWeights, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Offsets -4 and +4 both put the O flush against a wall (score -8);
	// -4 is enumerated first.
	if m != (rules.Move{Rotation: 0, Offset: -4}) {
		t.Fatalf("move = %+v, want {0 -4}", m)
	}
}

func TestSelectMove_TieBreakIsEnumerationOrder(t *testing.T) {
	b := emptyBoard()
	p := spawned(game.ShapeI)

	// All-zero scores except holes: every flat placement ties.
	w := Weights{0, 0, 0, -1}
	c, err := NewSearcher(1).SelectMove(&b, p, w, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	first := Moves(p, b.Width())
	for _, m := range first {
		if _, _, err := rules.Simulate(&b, p, m); err == nil {
			if c.Move != m {
				t.Fatalf("move = %+v, want first legal %+v", c.Move, m)
			}
			return
		}
	}
	t.Fatalf("no legal move found")
}

func TestSelectMove_PrefersLineClear(t *testing.T) {
	b := emptyBoard()
	for x := 1; x < b.Width(); x++ {
		for y := b.Height() - 4; y < b.Height(); y++ {
			b.Set(x, y, 3)
		}
	}
	p := spawned(game.ShapeI)
	p.Rotation = 0 // vertical

	c, err := NewSearcher(1).SelectMove(&b, p, DefaultWeights, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Outcome.Lines != 4 {
		t.Fatalf("lines = %d, want 4 (move %+v)\n%s", c.Outcome.Lines, c.Move, c.Board.String())
	}
	if got := Extract(c.Board); got != (Features{}) {
		t.Fatalf("board not empty after tetris: %v", got)
	}
}

func TestSelectMove_NoLegalMove(t *testing.T) {
	b := emptyBoard()
	for y := 0; y < 2; y++ {
		for x := 0; x < b.Width(); x++ {
			b.Set(x, y, 1)
		}
	}
	for s := game.Shape(0); s < game.NumShapes; s++ {
		if _, err := SelectMove(&b, spawned(s), DefaultWeights, 0, nil); !errors.Is(err, ErrNoLegalMove) {
			t.Fatalf("%s: err = %v, want ErrNoLegalMove", s, err)
		}
	}
}

func TestSelectMove_ParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	serial := NewSearcher(1)
	parallel := NewSearcher(8)
	for trial := 0; trial < 100; trial++ {
		b := emptyBoard()
		for i := 0; i < 50; i++ {
			b.Set(rng.Intn(b.Width()), 6+rng.Intn(14), 1)
		}
		p := game.SpawnPiece(rng, b.Width())
		w := Weights{-rng.Float64(), -rng.Float64(), -rng.Float64(), -rng.Float64() * 30}

		a, errA := serial.SelectMove(&b, p, w, 0, nil)
		c, errC := parallel.SelectMove(&b, p, w, 0, nil)
		if (errA == nil) != (errC == nil) {
			t.Fatalf("trial %d: serial err %v, parallel err %v", trial, errA, errC)
		}
		if errA != nil {
			continue
		}
		if a.Move != c.Move || a.Score != c.Score || !a.Board.Equal(c.Board) {
			t.Fatalf("trial %d: serial %+v parallel %+v", trial, a.Move, c.Move)
		}
	}
}

func TestSelectMove_ExplorationIsUniform(t *testing.T) {
	b := emptyBoard()
	p := spawned(game.ShapeT)

	var legal []rules.Move
	for _, m := range Moves(p, b.Width()) {
		if _, _, err := rules.Simulate(&b, p, m); err == nil {
			legal = append(legal, m)
		}
	}
	if len(legal) < 2 {
		t.Fatalf("expected several legal moves, got %d", len(legal))
	}

	rng := rand.New(rand.NewSource(42))
	s := NewSearcher(1)
	const trials = 40000
	counts := make(map[rules.Move]int)
	for i := 0; i < trials; i++ {
		c, err := s.SelectMove(&b, p, DefaultWeights, 1.0, rng)
		if err != nil {
			t.Fatal(err)
		}
		if !c.Explored {
			t.Fatalf("epsilon=1 must always explore")
		}
		counts[c.Move]++
	}
	if len(counts) != len(legal) {
		t.Fatalf("saw %d distinct moves, want %d", len(counts), len(legal))
	}

	expected := float64(trials) / float64(len(legal))
	var chi2 float64
	for _, m := range legal {
		d := float64(counts[m]) - expected
		chi2 += d * d / expected
	}
	// Far above the 0.999 quantile for these degrees of freedom.
	df := float64(len(legal) - 1)
	if chi2 > 2*df+30 {
		t.Fatalf("chi2 = %.1f with %d moves; counts %v", chi2, len(legal), counts)
	}
}

func TestSession_StepLearnsAndDecays(t *testing.T) {
	cfg := DefaultConfig()
	sess, err := NewSession(DefaultWeights, cfg, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	sess.Epsilon = 0
	b := emptyBoard()
	snapshot := b.Clone()

	d, err := sess.Step(&b, spawned(game.ShapeO))
	if err != nil {
		t.Fatal(err)
	}
	if !b.Equal(&snapshot) {
		t.Fatalf("Step modified the caller's board")
	}
	if d.Move != (rules.Move{Offset: -4}) {
		t.Fatalf("move = %+v", d.Move)
	}
	if d.Reward != -4 || d.After.HeightSum != 4 {
		t.Fatalf("reward %v after %v", d.Reward, d.After)
	}
	if sess.Weights != d.Weights {
		t.Fatalf("decision weights %v differ from session %v", d.Weights, sess.Weights)
	}
	if math.Abs(sess.Weights.L1()-WeightNorm) > 1e-3 {
		t.Fatalf("weights not normalised: %v", sess.Weights)
	}
	if sess.Placements != 1 {
		t.Fatalf("placements = %d", sess.Placements)
	}
}

func TestSession_EpsilonSchedule(t *testing.T) {
	sess, err := NewSession(DefaultWeights, DefaultConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	sess.decayEpsilon()
	if math.Abs(sess.Epsilon-0.495) > 1e-12 {
		t.Fatalf("epsilon after one decay = %v", sess.Epsilon)
	}
	for i := 0; i < 1000; i++ {
		sess.decayEpsilon()
	}
	if sess.Epsilon != 0 {
		t.Fatalf("epsilon = %v, want 0 once below the floor", sess.Epsilon)
	}
}

func TestSession_NoLegalMoveLeavesStateUntouched(t *testing.T) {
	sess, err := NewSession(DefaultWeights, DefaultConfig(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	b := emptyBoard()
	for x := 0; x < b.Width(); x++ {
		b.Set(x, 0, 1)
		b.Set(x, 1, 1)
	}
	if _, err := sess.Step(&b, spawned(game.ShapeT)); !errors.Is(err, ErrNoLegalMove) {
		t.Fatalf("err = %v", err)
	}
	if sess.Weights != DefaultWeights || sess.Epsilon != 0.5 || sess.Placements != 0 {
		t.Fatalf("session changed: %v eps=%v n=%d", sess.Weights, sess.Epsilon, sess.Placements)
	}
}

func TestNewSession_RejectsZeroWeights(t *testing.T) {
	if _, err := NewSession(Weights{}, DefaultConfig(), rand.New(rand.NewSource(1))); !errors.Is(err, ErrDegenerateWeights) {
		t.Fatalf("err = %v", err)
	}
}
