// Package directory resolves a registering student's email to their
// institutional record.
package directory

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mind-engage/safetytest/internal/db"
)

// NotFound fills every name field of a student missing from the directory.
const NotFound = "Not Found"

type Person struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ExternalID string `json:"external_id"`
}

type Directory interface {
	Lookup(ctx context.Context, email string) (Person, bool, error)
}

// Unknown is the placeholder person used when Lookup finds nothing.
func Unknown(email string) Person {
	return Person{Email: email, FirstName: NotFound, LastName: NotFound, ExternalID: NotFound}
}

type SQLDirectory struct {
	db *sql.DB
}

func NewSQLDirectory(d *sql.DB) *SQLDirectory { return &SQLDirectory{db: d} }

func (s *SQLDirectory) Lookup(ctx context.Context, email string) (Person, bool, error) {
	var p Person
	err := s.db.QueryRowContext(ctx,
		`SELECT email, first_name, last_name, external_id FROM people WHERE email=$1`,
		normalize(email)).Scan(&p.Email, &p.FirstName, &p.LastName, &p.ExternalID)
	if errors.Is(err, sql.ErrNoRows) {
		return Person{}, false, nil
	}
	if err != nil {
		return Person{}, false, db.Unavailable("directory: lookup", err)
	}
	return p, true, nil
}

// Put upserts people keyed by lower-cased email.
func (s *SQLDirectory) Put(ctx context.Context, people []Person) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, p := range people {
			if _, err := tx.ExecContext(ctx, `INSERT INTO people (email, first_name, last_name, external_id)
				VALUES ($1,$2,$3,$4)
				ON CONFLICT (email) DO UPDATE SET first_name=EXCLUDED.first_name,
				  last_name=EXCLUDED.last_name, external_id=EXCLUDED.external_id`,
				normalize(p.Email), p.FirstName, p.LastName, p.ExternalID); err != nil {
				return db.Unavailable("directory: put", err)
			}
		}
		return nil
	})
}

// Map is an in-memory Directory keyed by lower-cased email.
type Map map[string]Person

func (m Map) Lookup(_ context.Context, email string) (Person, bool, error) {
	p, ok := m[normalize(email)]
	return p, ok, nil
}

func normalize(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// ReadPeopleCSV reads email,first_name,last_name,external_id rows.
func ReadPeopleCSV(r io.Reader) ([]Person, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	var out []Person
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("people csv: %w", err)
		}
		if line == 1 && strings.EqualFold(rec[0], "email") {
			continue
		}
		if !strings.Contains(rec[0], "@") {
			return nil, fmt.Errorf("people csv: line %d: bad email %q", line, rec[0])
		}
		out = append(out, Person{Email: normalize(rec[0]), FirstName: rec[1], LastName: rec[2], ExternalID: rec[3]})
	}
}
