package errs

import "errors"

// PermanentTaskError marks a task failure that retrying cannot fix (bad target, 4xx, bad payload).
type PermanentTaskError struct{ Err error }

func (e *PermanentTaskError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentTaskError) Unwrap() error { return e.Err }

// TransientTaskError marks a failure that may succeed on a later attempt.
type TransientTaskError struct{ Err error }

func (e *TransientTaskError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientTaskError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentTaskError. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentTaskError{Err: err}
}

// Transient wraps err as a TransientTaskError. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientTaskError{Err: err}
}

// IsPermanent reports whether err is classified permanent. Unclassified errors are transient.
func IsPermanent(err error) bool {
	var p *PermanentTaskError
	return errors.As(err, &p)
}
