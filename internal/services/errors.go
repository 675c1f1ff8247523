package services

import (
	"errors"
	"fmt"

	"github.com/campushub/api/internal/repositories"
)

var (
	// ErrNotFound indicates the target or order does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition indicates the requested status is not reachable from the current one.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrExpired indicates the order can no longer be accepted.
	ErrExpired = errors.New("order expired")
	// ErrAlreadyRated indicates the order carries a rating already.
	ErrAlreadyRated = errors.New("order already rated")
	// ErrConflict indicates a concurrent write won the race and retries were exhausted.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput indicates malformed command data.
	ErrInvalidInput = errors.New("invalid input")
)

func mapRepositoryError(scope string, err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%s: %w: %v", scope, ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%s: %w: %v", scope, ErrConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%s: repository unavailable: %w", scope, err)
		}
	}

	return err
}
