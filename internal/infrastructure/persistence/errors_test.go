package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type sqlStateErr string

func (e sqlStateErr) Error() string    { return "sqlstate " + string(e) }
func (e sqlStateErr) SQLState() string { return string(e) }

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"not found", gorm.ErrRecordNotFound, shared.ErrNotFound},
		{"duplicate", gorm.ErrDuplicatedKey, shared.ErrAlreadyExists},
		{"deadlock", fmt.Errorf("select: %w", sqlStateErr("40P01")), shared.ErrConcurrencyConflict},
		{"serialization", sqlStateErr("40001"), shared.ErrConcurrencyConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError(tc.in), tc.want)
		})
	}

	assert.NoError(t, translateError(nil))
	other := errors.New("boom")
	assert.Same(t, other, translateError(other))
	assert.False(t, errors.Is(translateError(sqlStateErr("23503")), shared.ErrConcurrencyConflict))
}
