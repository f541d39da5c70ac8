package directory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/safetytest/internal/db/dbtest"
)

func TestSQLDirectoryLookup(t *testing.T) {
	ctx := context.Background()
	dir := NewSQLDirectory(dbtest.Open(t))

	people, err := ReadPeopleCSV(strings.NewReader("email,first_name,last_name,external_id\nAda@Example.edu,Ada,Lovelace,B001\n"))
	require.NoError(t, err)
	require.NoError(t, dir.Put(ctx, people))

	p, ok, err := dir.Lookup(ctx, " ADA@example.edu")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Person{Email: "ada@example.edu", FirstName: "Ada", LastName: "Lovelace", ExternalID: "B001"}, p)

	_, ok, err = dir.Lookup(ctx, "nobody@example.edu")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, dir.Put(ctx, []Person{{Email: "ada@example.edu", FirstName: "Augusta", LastName: "King", ExternalID: "B001"}}))
	p, _, err = dir.Lookup(ctx, "ada@example.edu")
	require.NoError(t, err)
	assert.Equal(t, "Augusta", p.FirstName)
}

func TestReadPeopleCSVRejectsBadRows(t *testing.T) {
	_, err := ReadPeopleCSV(strings.NewReader("not-an-email,A,B,C\n"))
	assert.Error(t, err)
	_, err = ReadPeopleCSV(strings.NewReader("a@b,A,B\n"))
	assert.Error(t, err)
}

func TestUnknownPerson(t *testing.T) {
	p := Unknown("x@y")
	assert.Equal(t, NotFound, p.FirstName)
	assert.Equal(t, NotFound, p.ExternalID)

	_, ok, _ := Map{}.Lookup(context.Background(), "x@y")
	assert.False(t, ok)
}
