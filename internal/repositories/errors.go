package repositories

import "errors"

// IsNotFound reports whether err is a repository error signalling a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a repository error signalling a lost race.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a repository error signalling a backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// ErrCountersPending is returned alongside a valid toggle result when the reaction row was
// committed but the counter increments kept failing. The toggle took effect and must not be
// retried; reconciliation brings the counters back in line.
var ErrCountersPending = errors.New("reaction recorded; counters pending reconciliation")
