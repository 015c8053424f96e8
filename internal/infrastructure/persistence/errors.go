package persistence

import (
	"errors"

	"github.com/bundlesync/engine/internal/domain/shared"
	"github.com/bundlesync/engine/internal/infrastructure/logger"
	"gorm.io/gorm"
)

// translateError maps gorm errors onto domain sentinels. Duplicate keys are
// only recognised when the connection was opened with TranslateError.
// Deadlocks and serialization failures become ErrConcurrencyConflict so the
// caller's conflict retry reruns the whole transaction.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists
	case logger.IsRetryableSQLError(err):
		return conflict("row")
	default:
		return err
	}
}

// conflict is returned by SaveWithLock when the stored version moved on.
func conflict(entity string) error {
	return shared.NewDomainError(shared.ErrConcurrencyConflict.Code, entity+" was modified by another transaction")
}
