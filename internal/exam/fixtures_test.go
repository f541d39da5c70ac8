package exam

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

type catSize struct {
	name string
	n    int
}

func fixtureCategories(sizes ...catSize) []Category {
	cats := make([]Category, 0, len(sizes))
	for _, s := range sizes {
		c := Category{Name: s.name}
		for i := 0; i < s.n; i++ {
			q := Question{
				ID:              i,
				Category:        s.name,
				Text:            fmt.Sprintf("%s question %d", s.name, i),
				CorrectAnswerID: i%AnswersPerQuestion + 1,
			}
			for a := 1; a <= AnswersPerQuestion; a++ {
				q.Answers = append(q.Answers, Answer{ID: a, Text: fmt.Sprintf("%s %d answer %d", s.name, i, a)})
			}
			c.Questions = append(c.Questions, q)
		}
		cats = append(cats, c)
	}
	return cats
}

func fixtureBank(t *testing.T, sizes ...catSize) *Bank {
	t.Helper()
	b, err := NewBank(fixtureCategories(sizes...))
	if err != nil {
		t.Fatalf("fixture bank: %v", err)
	}
	return b
}

func seeded(seed uint64) SamplerOption {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}
