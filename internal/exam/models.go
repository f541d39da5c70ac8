package exam

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidQuota         = fmt.Errorf("%w: invalid quota", ErrInvalidConfiguration)
	ErrUnknownQuestion      = errors.New("unknown question")
)

// AnswersPerQuestion is fixed by the bank format.
const AnswersPerQuestion = 4

type Answer struct {
	ID   int    `json:"id"` // 1..4, position in the source row
	Text string `json:"text"`
}

type Question struct {
	ID              int      `json:"id"` // zero-based index within the category
	Category        string   `json:"category"`
	Text            string   `json:"text"`
	Answers         []Answer `json:"answers"`
	CorrectAnswerID int      `json:"correct_answer_id"`
}

func (q Question) Key() QuestionKey { return QuestionKey{Category: q.Category, ID: q.ID} }

type Category struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

type QuestionKey struct {
	Category string
	ID       int
}

func (k QuestionKey) String() string { return fmt.Sprintf("%s#%d", k.Category, k.ID) }

// QuizAnswer and QuizQuestion are the student-facing copies. They have no
// correctness field so nothing can leak through serialization.
type QuizAnswer struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

type QuizQuestion struct {
	ID       int          `json:"id"`
	Category string       `json:"category"`
	Text     string       `json:"text"`
	Answers  []QuizAnswer `json:"answers"`
}

// Counter names a per-question statistic column.
type Counter string

const (
	CounterAnswered Counter = "times_answered"
	CounterCorrect  Counter = "times_correct"
)

// QuestionStats is the per-question view of the counters.
type QuestionStats struct {
	Category      string `json:"category"`
	ID            int    `json:"id"`
	Text          string `json:"text"`
	TimesAnswered int64  `json:"times_answered"`
	TimesCorrect  int64  `json:"times_correct"`
}

// Bank is the authoritative, read-only question bank.
type Bank struct {
	categories []Category
	byKey      map[QuestionKey]Question
	byName     map[string]int
}

// NewBank validates categories and indexes them for lookup.
func NewBank(categories []Category) (*Bank, error) {
	b := &Bank{
		categories: categories,
		byKey:      map[QuestionKey]Question{},
		byName:     map[string]int{},
	}
	for ci, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: category %d has no name", ErrInvalidConfiguration, ci)
		}
		if _, dup := b.byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidConfiguration, c.Name)
		}
		b.byName[c.Name] = ci
		for qi, q := range c.Questions {
			if q.ID != qi || q.Category != c.Name {
				return nil, fmt.Errorf("%w: question %s#%d out of place", ErrInvalidConfiguration, c.Name, qi)
			}
			if err := validateAnswers(q); err != nil {
				return nil, err
			}
			b.byKey[q.Key()] = q
		}
	}
	return b, nil
}

func validateAnswers(q Question) error {
	if len(q.Answers) != AnswersPerQuestion {
		return fmt.Errorf("%w: question %s has %d answers", ErrInvalidConfiguration, q.Key(), len(q.Answers))
	}
	for i, a := range q.Answers {
		if a.ID != i+1 {
			return fmt.Errorf("%w: question %s answer %d has id %d", ErrInvalidConfiguration, q.Key(), i, a.ID)
		}
	}
	if q.CorrectAnswerID < 1 || q.CorrectAnswerID > AnswersPerQuestion {
		return fmt.Errorf("%w: question %s correct answer %d", ErrInvalidConfiguration, q.Key(), q.CorrectAnswerID)
	}
	return nil
}

// Categories returns categories in source order. Callers must not modify them.
func (b *Bank) Categories() []Category { return b.categories }

func (b *Bank) Category(name string) (Category, bool) {
	i, ok := b.byName[name]
	if !ok {
		return Category{}, false
	}
	return b.categories[i], true
}

func (b *Bank) Question(k QuestionKey) (Question, bool) {
	q, ok := b.byKey[k]
	return q, ok
}

// Len is the total number of questions across categories.
func (b *Bank) Len() int { return len(b.byKey) }
