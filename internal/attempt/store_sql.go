package attempt

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mind-engage/safetytest/internal/db"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(d *sql.DB) *SQLStore {
	return &SQLStore{db: d}
}

func (s *SQLStore) GetClass(ctx context.Context, code string) (Class, error) {
	var c Class
	err := s.db.QueryRowContext(ctx,
		`SELECT code, enabled, quota_profile, certificate_template FROM classes WHERE code=$1`, code).
		Scan(&c.Code, &c.Enabled, &c.QuotaProfile, &c.CertificateTemplate)
	if errors.Is(err, sql.ErrNoRows) {
		return Class{}, ErrClassNotFound
	}
	if err != nil {
		return Class{}, db.Unavailable("attempt: get class", err)
	}
	return c, nil
}

func (s *SQLStore) PutClass(ctx context.Context, c Class) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO classes (code, enabled, quota_profile, certificate_template)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (code) DO UPDATE SET enabled=EXCLUDED.enabled, quota_profile=EXCLUDED.quota_profile,
		  certificate_template=EXCLUDED.certificate_template`,
		c.Code, c.Enabled, c.QuotaProfile, c.CertificateTemplate)
	if err != nil {
		return db.Unavailable("attempt: put class", err)
	}
	return nil
}

const recordCols = `class_code, idx, email, first_name, last_name, external_id, registered_at,
	emailed_at, link_clicked_at, submitted_at, score, passed, raw_response_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r                           Record
		registered                  int64
		emailed, clicked, submitted sql.NullInt64
		score                       sql.NullFloat64
		passed                      sql.NullBool
	)
	if err := sc.Scan(&r.ClassCode, &r.Index, &r.Email, &r.FirstName, &r.LastName, &r.ExternalID,
		&registered, &emailed, &clicked, &submitted, &score, &passed, &r.RawResponseJSON); err != nil {
		return Record{}, err
	}
	r.RegisteredAt = time.Unix(registered, 0).UTC()
	r.EmailedAt = unixPtr(emailed)
	r.LinkClickedAt = unixPtr(clicked)
	r.SubmittedAt = unixPtr(submitted)
	if score.Valid {
		r.Score = &score.Float64
	}
	if passed.Valid {
		r.Passed = &passed.Bool
	}
	return r, nil
}

func unixPtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func (s *SQLStore) Get(ctx context.Context, k Key) (Record, error) {
	if k.Index < 0 {
		return Record{}, ErrNotFound
	}
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM attempts WHERE class_code=$1 AND idx=$2`, k.ClassCode, k.Index))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, db.Unavailable("attempt: get", err)
	}
	return r, nil
}

func (s *SQLStore) List(ctx context.Context, classCode string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordCols+` FROM attempts WHERE class_code=$1 ORDER BY idx`, classCode)
	if err != nil {
		return nil, db.Unavailable("attempt: list", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, db.Unavailable("attempt: list", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Unavailable("attempt: list", err)
	}
	return out, nil
}

func (s *SQLStore) Append(ctx context.Context, r Record) (Record, error) {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM classes WHERE code=$1`, r.ClassCode).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrClassNotFound
		}
		if err != nil {
			return db.Unavailable("attempt: append", err)
		}

		err = tx.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE class_code=$1 AND LOWER(email)=$2`,
			r.ClassCode, strings.ToLower(r.Email)).Scan(&one)
		if err == nil {
			return ErrDuplicateEmail
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return db.Unavailable("attempt: append", err)
		}

		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE class_code=$1`,
			r.ClassCode).Scan(&r.Index); err != nil {
			return db.Unavailable("attempt: append", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO attempts
			(class_code, idx, email, first_name, last_name, external_id, registered_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			r.ClassCode, r.Index, r.Email, r.FirstName, r.LastName, r.ExternalID, r.RegisteredAt.Unix()); err != nil {
			return db.Unavailable("attempt: append", err)
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	r.RegisteredAt = time.Unix(r.RegisteredAt.Unix(), 0).UTC()
	return r, nil
}

func (s *SQLStore) SetEmailed(ctx context.Context, k Key, at time.Time) (bool, error) {
	return s.cas(ctx, "attempt: set emailed",
		`UPDATE attempts SET emailed_at=$1 WHERE class_code=$2 AND idx=$3 AND emailed_at IS NULL`,
		at.Unix(), k.ClassCode, k.Index)
}

func (s *SQLStore) SetLinkClicked(ctx context.Context, k Key, at time.Time) (bool, error) {
	return s.cas(ctx, "attempt: set link clicked",
		`UPDATE attempts SET link_clicked_at=$1
		 WHERE class_code=$2 AND idx=$3 AND emailed_at IS NOT NULL AND link_clicked_at IS NULL`,
		at.Unix(), k.ClassCode, k.Index)
}

func (s *SQLStore) SetSubmitted(ctx context.Context, k Key, sub Submission) (bool, error) {
	return s.cas(ctx, "attempt: set submitted",
		`UPDATE attempts SET submitted_at=$1, score=$2, passed=$3, raw_response_json=$4
		 WHERE class_code=$5 AND idx=$6 AND link_clicked_at IS NOT NULL AND submitted_at IS NULL`,
		sub.At.Unix(), sub.Score, sub.Passed, sub.RawResponseJSON, k.ClassCode, k.Index)
}

func (s *SQLStore) cas(ctx context.Context, op, stmt string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, db.Unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, db.Unavailable(op, err)
	}
	return n == 1, nil
}
