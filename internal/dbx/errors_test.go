package dbx

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, MapError(nil))
	assert.ErrorIs(t, MapError(sql.ErrNoRows), common.ErrorNotFound)

	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}
	err := MapError(dup)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "users_email_key")

	other := &pgconn.PgError{Code: "40001"}
	assert.ErrorIs(t, MapError(other), common.ErrStorageUnavailable)

	down := errors.New("connection refused")
	err = MapError(down)
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "db error")
}
