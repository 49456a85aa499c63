package sqldb

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pqDup := &pq.Error{Code: "23505", Constraint: "sessions_token_key"}

	assert.True(t, IsUniqueViolation(pqDup, ""))
	assert.True(t, IsUniqueViolation(pqDup, "sessions_token_key"))
	assert.False(t, IsUniqueViolation(pqDup, "push_subscriptions_endpoint_key"))
	assert.True(t, IsUniqueViolation(fmt.Errorf("wrapped: %w", pqDup), ""))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))

	liteDup := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	assert.True(t, IsUniqueViolation(liteDup, ""))
	assert.False(t, IsUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}, ""))

	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
}

func TestSchema(t *testing.T) {
	for _, d := range []Dialect{DialectSQLite, DialectPostgres} {
		s, err := Schema(d)
		assert.NoError(t, err)
		assert.Contains(t, s, "push_subscriptions")
		assert.Contains(t, s, "endpoint TEXT NOT NULL UNIQUE")
	}

	_, err := Schema("mysql")
	assert.Error(t, err)
}
