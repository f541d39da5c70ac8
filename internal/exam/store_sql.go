package exam

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mind-engage/safetytest/internal/db"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(d *sql.DB) *SQLStore {
	return &SQLStore{db: d}
}

func (s *SQLStore) LoadCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, q.idx, q.text, q.answer1, q.answer2, q.answer3, q.answer4, q.correct_answer
		FROM categories c
		LEFT JOIN questions q ON q.category = c.name
		ORDER BY c.position, c.name, q.idx`)
	if err != nil {
		return nil, db.Unavailable("exam: load categories", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var (
			name    string
			idx     sql.NullInt64
			text    sql.NullString
			a       [AnswersPerQuestion]sql.NullString
			correct sql.NullInt64
		)
		if err := rows.Scan(&name, &idx, &text, &a[0], &a[1], &a[2], &a[3], &correct); err != nil {
			return nil, db.Unavailable("exam: scan question", err)
		}
		if len(cats) == 0 || cats[len(cats)-1].Name != name {
			cats = append(cats, Category{Name: name})
		}
		if !idx.Valid {
			continue // category with no questions
		}
		q := Question{
			ID:              int(idx.Int64),
			Category:        name,
			Text:            text.String,
			CorrectAnswerID: int(correct.Int64),
		}
		for i := range a {
			q.Answers = append(q.Answers, Answer{ID: i + 1, Text: a[i].String})
		}
		c := &cats[len(cats)-1]
		c.Questions = append(c.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("exam: load categories", err)
	}
	return cats, nil
}

func (s *SQLStore) LoadQuota(ctx context.Context, profile string) (Quota, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, quota FROM quota_profiles WHERE profile=$1`, profile)
	if err != nil {
		return nil, db.Unavailable("exam: load quota", err)
	}
	defer rows.Close()

	q := Quota{}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, db.Unavailable("exam: scan quota", err)
		}
		q[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("exam: load quota", err)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", profile, err)
	}
	return q, nil
}

func (s *SQLStore) IncrementCounter(ctx context.Context, k QuestionKey, c Counter) error {
	var stmt string
	switch c {
	case CounterAnswered:
		stmt = `UPDATE questions SET times_answered = times_answered + 1 WHERE category=$1 AND idx=$2`
	case CounterCorrect:
		stmt = `UPDATE questions SET times_correct = times_correct + 1 WHERE category=$1 AND idx=$2`
	default:
		return fmt.Errorf("exam: unknown counter %q", c)
	}
	res, err := s.db.ExecContext(ctx, stmt, k.Category, k.ID)
	if err != nil {
		return db.Unavailable("exam: increment "+string(c), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, k)
	}
	return nil
}

// PutBank replaces bank content. Counters of questions that keep their
// (category, id) survive a re-import.
func (s *SQLStore) PutBank(ctx context.Context, cats []Category) error {
	if _, err := NewBank(cats); err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		names := map[string]bool{}
		for pos, c := range cats {
			names[c.Name] = true
			if _, err := tx.ExecContext(ctx, `INSERT INTO categories (name, position) VALUES ($1,$2)
				ON CONFLICT (name) DO UPDATE SET position=EXCLUDED.position`, c.Name, pos); err != nil {
				return db.Unavailable("exam: put category", err)
			}
			for _, q := range c.Questions {
				if _, err := tx.ExecContext(ctx, `INSERT INTO questions
					(category, idx, text, answer1, answer2, answer3, answer4, correct_answer)
					VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
					ON CONFLICT (category, idx) DO UPDATE SET
					  text=EXCLUDED.text, answer1=EXCLUDED.answer1, answer2=EXCLUDED.answer2,
					  answer3=EXCLUDED.answer3, answer4=EXCLUDED.answer4, correct_answer=EXCLUDED.correct_answer`,
					c.Name, q.ID, q.Text, q.Answers[0].Text, q.Answers[1].Text, q.Answers[2].Text, q.Answers[3].Text, q.CorrectAnswerID); err != nil {
					return db.Unavailable("exam: put question", err)
				}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE category=$1 AND idx >= $2`,
				c.Name, len(c.Questions)); err != nil {
				return db.Unavailable("exam: trim questions", err)
			}
		}

		// drop categories that are no longer in the bank
		rows, err := tx.QueryContext(ctx, `SELECT name FROM categories`)
		if err != nil {
			return db.Unavailable("exam: list categories", err)
		}
		var stale []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return db.Unavailable("exam: list categories", err)
			}
			if !names[n] {
				stale = append(stale, n)
			}
		}
		rows.Close()
		for _, n := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE category=$1`, n); err != nil {
				return db.Unavailable("exam: drop category", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE name=$1`, n); err != nil {
				return db.Unavailable("exam: drop category", err)
			}
		}
		return nil
	})
}

// PutQuota replaces the rows of one quota profile.
func (s *SQLStore) PutQuota(ctx context.Context, profile string, q Quota) error {
	if err := q.Validate(); err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM quota_profiles WHERE profile=$1`, profile); err != nil {
			return db.Unavailable("exam: clear quota", err)
		}
		for name, n := range q {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO quota_profiles (profile, category, quota) VALUES ($1,$2,$3)`,
				profile, name, n); err != nil {
				return db.Unavailable("exam: put quota", err)
			}
		}
		return nil
	})
}

func (s *SQLStore) Stats(ctx context.Context) ([]QuestionStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.category, q.idx, q.text, q.times_answered, q.times_correct
		FROM questions q JOIN categories c ON c.name = q.category
		ORDER BY c.position, q.idx`)
	if err != nil {
		return nil, db.Unavailable("exam: stats", err)
	}
	defer rows.Close()

	var out []QuestionStats
	for rows.Next() {
		var st QuestionStats
		if err := rows.Scan(&st.Category, &st.ID, &st.Text, &st.TimesAnswered, &st.TimesCorrect); err != nil {
			return nil, db.Unavailable("exam: stats", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("exam: stats", err)
	}
	return out, nil
}
