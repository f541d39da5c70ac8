package grading

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mind-engage/safetytest/internal/exam"
)

var (
	ErrNoQuestions       = errors.New("submission has no questions")
	ErrDuplicateResponse = errors.New("question answered twice")
)

// DefaultPassThreshold is the minimum passing score.
const DefaultPassThreshold = 0.80

// Response is one answered question as posted by the quiz page.
type Response struct {
	Category   string `json:"category"`
	QuestionID int    `json:"id"`
	Chosen     int    `json:"response"`
}

type Submission struct {
	ClassCode    string     `json:"class_code"`
	StudentIndex int        `json:"id"`
	Responses    []Response `json:"answers"`
}

type QuestionResult struct {
	Key             exam.QuestionKey
	Chosen          int
	CorrectAnswerID int
	Correct         bool
}

// CounterUpdate is an instruction for the caller to bump one counter.
type CounterUpdate struct {
	Key     exam.QuestionKey
	Counter exam.Counter
}

type Result struct {
	Correct   int
	Total     int
	Score     float64 // Correct / Total
	Passed    bool
	Questions []QuestionResult
	// CounterUpdates are in response order; apply them in that order.
	CounterUpdates []CounterUpdate
}

// Percent is the score as a percentage rounded to two places.
func (r Result) Percent() decimal.Decimal {
	if r.Total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.Correct)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(r.Total)), 2)
}

// Engine options

type Option func(*config)

type config struct {
	PassThreshold float64
}

func WithPassThreshold(v float64) Option { return func(c *config) { c.PassThreshold = v } }

// Grader scores submissions against the authoritative bank. It never writes.
type Grader struct {
	threshold decimal.Decimal
}

func NewGrader(opts ...Option) *Grader {
	cfg := &config{PassThreshold: DefaultPassThreshold}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.PassThreshold <= 0 || cfg.PassThreshold > 1 {
		cfg.PassThreshold = DefaultPassThreshold
	}
	return &Grader{threshold: decimal.NewFromFloat(cfg.PassThreshold)}
}

func (g *Grader) Threshold() float64 { return g.threshold.InexactFloat64() }

// Grade looks every response up in bank. Only submitted questions count
// towards the total.
func (g *Grader) Grade(sub Submission, bank *exam.Bank) (Result, error) {
	if len(sub.Responses) == 0 {
		return Result{}, ErrNoQuestions
	}

	var res Result
	seen := make(map[exam.QuestionKey]bool, len(sub.Responses))
	for _, r := range sub.Responses {
		k := exam.QuestionKey{Category: r.Category, ID: r.QuestionID}
		q, ok := bank.Question(k)
		if !ok {
			return Result{}, fmt.Errorf("grade: %w: %s", exam.ErrUnknownQuestion, k)
		}
		if seen[k] {
			return Result{}, fmt.Errorf("grade: %w: %s", ErrDuplicateResponse, k)
		}
		seen[k] = true

		correct := r.Chosen == q.CorrectAnswerID
		res.Total++
		res.Questions = append(res.Questions, QuestionResult{Key: k, Chosen: r.Chosen, CorrectAnswerID: q.CorrectAnswerID, Correct: correct})
		res.CounterUpdates = append(res.CounterUpdates, CounterUpdate{Key: k, Counter: exam.CounterAnswered})
		if correct {
			res.Correct++
			res.CounterUpdates = append(res.CounterUpdates, CounterUpdate{Key: k, Counter: exam.CounterCorrect})
		}
	}

	// compare exactly so 4/5 passes at 0.80 regardless of float rounding
	ratio := decimal.NewFromInt(int64(res.Correct)).Div(decimal.NewFromInt(int64(res.Total)))
	res.Score = float64(res.Correct) / float64(res.Total)
	res.Passed = ratio.GreaterThanOrEqual(g.threshold)
	return res, nil
}
