package cache

import "errors"

// PreconditionError reports a request that was rejected before any work
// happened: a missing local snapshot, an empty file list, a bad name.
// Retrying without changing the request cannot succeed.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// IsPrecondition reports whether err or anything it wraps is a
// PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
