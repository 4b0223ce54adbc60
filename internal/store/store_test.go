package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	uniqueErr := &pgconn.PgError{Code: "23505", ConstraintName: "identifiers_type_value_key"}
	assert.True(t, isUniqueViolation(uniqueErr))
	assert.True(t, isUniqueViolation(fmt.Errorf("failed to insert: %w", uniqueErr)))

	fkErr := &pgconn.PgError{Code: "23503"}
	assert.False(t, isUniqueViolation(fkErr))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}

func TestJSONB_ValueAndScan(t *testing.T) {
	payload := JSONB{"event_type": "deposit", "deposit_amount": 50.0}

	value, err := payload.Value()
	assert.NoError(t, err)

	var scanned JSONB
	assert.NoError(t, scanned.Scan(value))
	assert.Equal(t, "deposit", scanned["event_type"])
	assert.Equal(t, 50.0, scanned["deposit_amount"])
}

func TestJSONB_ScanNullAndEmpty(t *testing.T) {
	var fromNil JSONB
	assert.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	var fromNullLiteral JSONB
	assert.NoError(t, fromNullLiteral.Scan([]byte("null")))
	assert.NotNil(t, fromNullLiteral)
	assert.Empty(t, fromNullLiteral)

	var fromInt JSONB
	assert.Error(t, fromInt.Scan(42))
}
