package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBankIndexesQuestions(t *testing.T) {
	b := fixtureBank(t, catSize{"A", 2}, catSize{"B", 3})
	assert.Equal(t, 5, b.Len())

	q, ok := b.Question(QuestionKey{Category: "B", ID: 2})
	require.True(t, ok)
	assert.Equal(t, "B question 2", q.Text)

	_, ok = b.Question(QuestionKey{Category: "B", ID: 3})
	assert.False(t, ok)

	c, ok := b.Category("A")
	require.True(t, ok)
	assert.Len(t, c.Questions, 2)
	assert.Equal(t, []string{"A", "B"}, []string{b.Categories()[0].Name, b.Categories()[1].Name})
}

func TestNewBankRejectsMalformedQuestions(t *testing.T) {
	cases := map[string]func([]Category){
		"three answers":        func(c []Category) { c[0].Questions[0].Answers = c[0].Questions[0].Answers[:3] },
		"correct out of range": func(c []Category) { c[0].Questions[1].CorrectAnswerID = 5 },
		"ids out of place":     func(c []Category) { c[0].Questions[1].ID = 7 },
		"answer id gap":        func(c []Category) { c[0].Questions[0].Answers[2].ID = 9 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cats := fixtureCategories(catSize{"A", 2})
			mutate(cats)
			_, err := NewBank(cats)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}

	dup := append(fixtureCategories(catSize{"A", 1}), fixtureCategories(catSize{"A", 1})...)
	_, err := NewBank(dup)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
