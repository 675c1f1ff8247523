package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

const duplicateKeyCode = 11000

// Error carries repository semantics for MongoDB failures.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string       { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *Error) Unwrap() error       { return e.err }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return e.unavailable }

func notFoundError(op string, err error) error { return &Error{op: op, err: err, notFound: true} }
func conflictError(op string, err error) error { return &Error{op: op, err: err, conflict: true} }

// wrapError classifies driver errors. Context errors pass through untouched.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	e := &Error{op: op, err: err}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		e.notFound = true
	case isDuplicateKey(err):
		e.conflict = true
	case mongo.IsNetworkError(err) || mongo.IsTimeout(err):
		e.unavailable = true
	}
	return e
}

func isDuplicateKey(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, writeErr := range we.WriteErrors {
			if writeErr.Code == duplicateKeyCode {
				return true
			}
		}
	}
	return mongo.IsDuplicateKeyError(err)
}
