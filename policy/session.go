package policy

import (
	"fmt"
	"math/rand"

	"github.com/brensch/tetromino/game"
	"github.com/brensch/tetromino/rules"
)

// Config holds the learning parameters of a Session.
type Config struct {
	LearningRate float64
	Discount     float64

	// Epsilon is the initial exploration rate. After every spawned piece it is
	// multiplied by EpsilonDecay, and once it is no longer above EpsilonFloor
	// it becomes exactly 0.
	Epsilon      float64
	EpsilonDecay float64
	EpsilonFloor float64

	// Parallelism is passed to the Searcher.
	Parallelism int
}

func DefaultConfig() Config {
	return Config{
		LearningRate: 0.01,
		Discount:     0.9,
		Epsilon:      0.5,
		EpsilonDecay: 0.99,
		EpsilonFloor: 0.001,
		Parallelism:  1,
	}
}

// Decision is the outcome of one Session.Step.
type Decision struct {
	Move     rules.Move
	Explored bool
	Legal    int

	Piece  game.Piece // piece as locked on the board
	Lines  int
	Reward float64
	Score  float64 // evaluator score of the resulting board before the update

	Before Features
	After  Features

	// Board is the board after the placement. The caller owns it.
	Board game.Board

	Weights Weights // weights after the update
	Epsilon float64 // exploration rate used for this decision
}

// Session is the policy state owned by one game loop: the weight vector, the
// exploration rate and the search arena. It is not safe for concurrent use.
type Session struct {
	Weights    Weights
	Epsilon    float64
	Placements int

	cfg    Config
	rng    *rand.Rand
	search *Searcher
}

// NewSession starts a session from w. The initial exploration rate comes
// from cfg.Epsilon.
func NewSession(w Weights, cfg Config, rng *rand.Rand) (*Session, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("session requires a random source")
	}
	return &Session{
		Weights: w,
		Epsilon: cfg.Epsilon,
		cfg:     cfg,
		rng:     rng,
		search:  NewSearcher(cfg.Parallelism),
	}, nil
}

func (s *Session) Config() Config { return s.cfg }

// Step plans and learns for one spawned piece: it selects a move for p on b,
// updates the weights from that move's simulated outcome and decays the
// exploration rate. b is not modified; the caller commits Decision.Board.
//
// ErrNoLegalMove leaves the session untouched. ErrDegenerateWeights leaves the
// weights unchanged and is not recoverable.
func (s *Session) Step(b *game.Board, p game.Piece) (Decision, error) {
	choice, err := s.search.SelectMove(b, p, s.Weights, s.Epsilon, s.rng)
	if err != nil {
		return Decision{}, err
	}

	before := Extract(b)
	after := Extract(choice.Board)
	if err := s.learn(before, after, choice.Outcome.Reward); err != nil {
		return Decision{}, err
	}

	d := Decision{
		Move:     choice.Move,
		Explored: choice.Explored,
		Legal:    choice.Legal,
		Piece:    choice.Outcome.Piece,
		Lines:    choice.Outcome.Lines,
		Reward:   choice.Outcome.Reward,
		Score:    choice.Score,
		Before:   before,
		After:    after,
		Board:    choice.Board.Clone(),
		Weights:  s.Weights,
		Epsilon:  s.Epsilon,
	}
	s.decayEpsilon()
	s.Placements++
	return d, nil
}

// Learn applies the weight update for a placement that turned before into
// after with the given reward.
func (s *Session) Learn(before, after *game.Board, reward float64) error {
	return s.learn(Extract(before), Extract(after), reward)
}

func (s *Session) learn(before, after Features, reward float64) error {
	next, err := s.Weights.Update(before, after, reward, s.cfg.LearningRate, s.cfg.Discount)
	if err != nil {
		return fmt.Errorf("update weights: %w", err)
	}
	s.Weights = next
	return nil
}

func (s *Session) decayEpsilon() {
	if s.Epsilon > s.cfg.EpsilonFloor {
		s.Epsilon *= s.cfg.EpsilonDecay
	} else {
		s.Epsilon = 0
	}
}
