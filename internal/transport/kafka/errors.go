package kafka

import "errors"

// ErrPermanent matches every error wrapped by Permanent.
var ErrPermanent = errors.New("permanent")

// PermanentError wraps an order event failure that retrying cannot fix.
// The consumer commits past such events instead of stalling the partition.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return ErrPermanent.Error()
	}
	return ErrPermanent.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the marker and the cause to errors.Is and errors.As.
func (e PermanentError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPermanent}
	}
	return []error{ErrPermanent, e.Err}
}

// Permanent marks err as not worth retrying. Already marked errors are returned as is.
func Permanent(err error) error {
	if IsPermanent(err) {
		return err
	}
	return PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked by Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
