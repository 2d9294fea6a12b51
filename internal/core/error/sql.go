package errx

import (
	"database/sql"
	"errors"
	"net/http"
)

// WrapSQL maps database/sql errors to an AppError.
func WrapSQL(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return New(err, http.StatusNotFound, SQLErrorMessage)
	}
	return New(err, http.StatusBadGateway, SQLErrorMessage)
}

// WrapSQLStore wraps a SQL failure of a memory store operation.
func WrapSQLStore(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryStoreError{Op: op, Err: WrapSQL(err)}
}

func as[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
