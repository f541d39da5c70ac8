package exam

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuotaValue(t *testing.T) {
	ok := map[string]int{"0": 0, "3": 3, " 12 ": 12, "4.0": 4}
	for in, want := range ok {
		got, err := ParseQuotaValue(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "-1", "2.5", "three", "NaN", "-3.0"} {
		_, err := ParseQuotaValue(in)
		assert.ErrorIs(t, err, ErrInvalidQuota, in)
		assert.ErrorIs(t, err, ErrInvalidConfiguration, in)
	}
}

func TestReadQuotaCSV(t *testing.T) {
	q, err := ReadQuotaCSV(strings.NewReader("category,quota\nElectrical,3\nFire, 2\n"))
	require.NoError(t, err)
	assert.Equal(t, Quota{"Electrical": 3, "Fire": 2}, q)
	assert.Equal(t, 5, q.Total())
}

func TestReadQuotaCSVFailsFast(t *testing.T) {
	for name, in := range map[string]string{
		"negative":  "Electrical,-2\n",
		"fraction":  "Electrical,1.5\n",
		"duplicate": "Fire,1\nFire,2\n",
		"short row": "Fire\n",
	} {
		_, err := ReadQuotaCSV(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrInvalidQuota, name)
	}
}

func TestReadBankCSV(t *testing.T) {
	in := "category,text,correct,a1,a2,a3,a4\n" +
		"Electrical,Touch a live wire?,2,Yes,No,Maybe,Sometimes\n" +
		"Fire,Where is the extinguisher?,1,By the door,Nowhere,Roof,Basement\n" +
		"Electrical,\"Water, near outlets?\",4,Fine,Good,Great,Never\n"
	cats, err := ReadBankCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, cats, 2)

	assert.Equal(t, "Electrical", cats[0].Name)
	require.Len(t, cats[0].Questions, 2)
	assert.Equal(t, 1, cats[0].Questions[1].ID)
	assert.Equal(t, "Water, near outlets?", cats[0].Questions[1].Text)
	assert.Equal(t, 4, cats[0].Questions[1].CorrectAnswerID)
	assert.Equal(t, Answer{ID: 4, Text: "Never"}, cats[0].Questions[1].Answers[3])

	_, err = NewBank(cats)
	assert.NoError(t, err)
}

func TestReadBankCSVRejectsBadRows(t *testing.T) {
	for name, in := range map[string]string{
		"columns": "Fire,text,1,a,b,c\n",
		"correct": "Fire,text,5,a,b,c,d\n",
		"name":    ",text,1,a,b,c,d\n",
	} {
		_, err := ReadBankCSV(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrInvalidConfiguration, name)
	}
}
