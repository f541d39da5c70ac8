package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]Driver{
		"":         DriverSQLite,
		"sqlite3":  DriverSQLite,
		"Postgres": DriverPostgres,
		"pgx":      DriverPostgres,
	} {
		got, err := ParseDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDriver("mysql")
	assert.Error(t, err)
}

func TestOpenEnsuresSchemaAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "s.db")

	d, err := Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	for _, table := range []string{"categories", "questions", "quota_profiles", "classes", "attempts", "people", "event_log"} {
		var n int
		require.NoError(t, d.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n), table)
	}
	require.NoError(t, d.Close())

	d, err = Open(ctx, DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, DriverSQLite, "file:"+filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	defer d.Close()

	boom := errors.New("boom")
	err = WithTx(ctx, d, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO people (email, first_name, last_name, external_id) VALUES ('a@x','A','B','1')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, d.QueryRowContext(ctx, `SELECT COUNT(*) FROM people`).Scan(&n))
	assert.Zero(t, n)
}

func TestUnavailableWraps(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Unavailable("load", cause)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
}
