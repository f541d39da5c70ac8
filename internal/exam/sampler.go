package exam

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Shortfall records a category whose quota exceeded the questions available.
type Shortfall struct {
	Category  string `json:"category"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Quiz is one student's randomized question list. It is never persisted.
type Quiz struct {
	Questions  []QuizQuestion `json:"questions"`
	Shortfalls []Shortfall    `json:"-"`
}

type Sampler struct {
	mu     sync.Mutex
	rng    *rand.Rand
	strict bool
}

type SamplerOption func(*Sampler)

// WithRand sets the random source; tests pass a seeded PCG.
func WithRand(r *rand.Rand) SamplerOption { return func(s *Sampler) { s.rng = r } }

// WithStrictQuota makes a quota larger than a category an error instead of a clamp.
func WithStrictQuota(b bool) SamplerOption { return func(s *Sampler) { s.strict = b } }

func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Sample draws quota[name] questions from each matching category, shuffles
// each question's answers and then the whole list.
func (s *Sampler) Sample(bank *Bank, quota Quota) (Quiz, error) {
	if len(quota) == 0 {
		return Quiz{}, fmt.Errorf("%w: empty quota", ErrInvalidConfiguration)
	}
	if err := quota.Validate(); err != nil {
		return Quiz{}, err
	}

	// rand.Rand is not safe for concurrent use
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		out     []QuizQuestion
		short   []Shortfall
		matched int
	)
	for _, c := range bank.Categories() {
		want, ok := quota[c.Name]
		if !ok {
			continue
		}
		matched++
		n := want
		if n > len(c.Questions) {
			if s.strict {
				return Quiz{}, fmt.Errorf("%w: %q wants %d of %d questions", ErrInvalidConfiguration, c.Name, want, len(c.Questions))
			}
			short = append(short, Shortfall{Category: c.Name, Requested: want, Available: len(c.Questions)})
			n = len(c.Questions)
		}
		if n == 0 {
			continue
		}

		picks := make([]int, len(c.Questions))
		for i := range picks {
			picks[i] = i
		}
		shuffle(s.rng, picks)
		for _, i := range picks[:n] {
			out = append(out, s.present(c.Questions[i]))
		}
	}
	if matched == 0 {
		return Quiz{}, fmt.Errorf("%w: quota matches no category", ErrInvalidConfiguration)
	}
	if len(out) == 0 {
		return Quiz{}, fmt.Errorf("%w: quiz has no questions", ErrInvalidConfiguration)
	}
	shuffle(s.rng, out)
	return Quiz{Questions: out, Shortfalls: short}, nil
}

// present copies q without its correct answer and with answers shuffled.
func (s *Sampler) present(q Question) QuizQuestion {
	answers := make([]QuizAnswer, len(q.Answers))
	for i, a := range q.Answers {
		answers[i] = QuizAnswer{ID: a.ID, Text: a.Text}
	}
	shuffle(s.rng, answers)
	return QuizQuestion{ID: q.ID, Category: q.Category, Text: q.Text, Answers: answers}
}

// shuffle is an in-place Fisher-Yates.
func shuffle[T any](r *rand.Rand, xs []T) {
	for i := len(xs) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}
