package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mind-engage/safetytest/internal/db"
)

type SQLRepo struct {
	db     *sql.DB
	siteID string
}

func NewSQLRepo(d *sql.DB, siteID string) *SQLRepo { return &SQLRepo{db: d, siteID: siteID} }

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, severity, correlation_id, operation, fields, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		r.siteID, string(e.Severity), e.CorrelationID, e.Operation, string(fields), e.At.Unix())
	if err != nil {
		return db.Unavailable("eventlog: append", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *SQLRepo) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT severity, correlation_id, operation, fields, created_at
		 FROM event_log WHERE site_id=$1 ORDER BY seq DESC LIMIT $2`, r.siteID, limit)
	if err != nil {
		return nil, db.Unavailable("eventlog: recent", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e      Event
			sev    string
			fields string
			at     int64
		)
		if err := rows.Scan(&sev, &e.CorrelationID, &e.Operation, &fields, &at); err != nil {
			return nil, db.Unavailable("eventlog: recent", err)
		}
		e.Severity = Severity(sev)
		e.At = time.Unix(at, 0).UTC()
		if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
