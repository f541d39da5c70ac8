package exam

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadBankCSV reads rows of category,text,correct,a1,a2,a3,a4. Categories keep
// first-appearance order and question ids are assigned per category in file
// order. A leading header row is skipped.
func ReadBankCSV(r io.Reader) ([]Category, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var cats []Category
	pos := map[string]int{}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bank csv: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) != 3+AnswersPerQuestion {
			return nil, fmt.Errorf("%w: line %d: want %d columns, got %d", ErrInvalidConfiguration, line, 3+AnswersPerQuestion, len(rec))
		}
		name := strings.TrimSpace(rec[0])
		if name == "" {
			return nil, fmt.Errorf("%w: line %d: empty category", ErrInvalidConfiguration, line)
		}
		correct, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil || correct < 1 || correct > AnswersPerQuestion {
			return nil, fmt.Errorf("%w: line %d: correct answer %q", ErrInvalidConfiguration, line, rec[2])
		}

		ci, ok := pos[name]
		if !ok {
			ci = len(cats)
			pos[name] = ci
			cats = append(cats, Category{Name: name})
		}
		q := Question{
			ID:              len(cats[ci].Questions),
			Category:        name,
			Text:            strings.TrimSpace(rec[1]),
			CorrectAnswerID: correct,
		}
		for i := 0; i < AnswersPerQuestion; i++ {
			q.Answers = append(q.Answers, Answer{ID: i + 1, Text: strings.TrimSpace(rec[3+i])})
		}
		cats[ci].Questions = append(cats[ci].Questions, q)
	}
	return cats, nil
}
