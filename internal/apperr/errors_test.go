package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKinds(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		kind   error
		status int
		code   string
	}{
		{"validation", Validation("name is required"), ErrValidation, http.StatusBadRequest, "validation_error"},
		{"not found", NotFound("room %d not found", 3), ErrNotFound, http.StatusNotFound, "not_found"},
		{"conflict", Conflict("room is full"), ErrConflict, http.StatusConflict, "conflict"},
		{"wrapped conflict", fmt.Errorf("allocate: %w", Conflict("room is full")), ErrConflict, http.StatusConflict, "conflict"},
		{"internal", errors.New("disk on fire"), nil, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.kind != nil {
				assert.ErrorIs(t, tc.err, tc.kind)
			}
			assert.Equal(t, tc.status, HTTPStatus(tc.err))
			assert.Equal(t, tc.code, Code(tc.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "room 3 not found", Message(NotFound("room %d not found", 3)))
	assert.Equal(t, "internal server error", Message(errors.New("pq: connection refused")))
}

func TestFromDB(t *testing.T) {
	assert.NoError(t, FromDB(nil, "x"))

	err := FromDB(gorm.ErrRecordNotFound, "application 9 not found")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, "application 9 not found", Message(err))

	assert.ErrorIs(t, FromDB(gorm.ErrDuplicatedKey, "duplicate"), ErrConflict)

	raw := errors.New("boom")
	err = FromDB(raw, "query failed")
	assert.ErrorIs(t, err, raw)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}
