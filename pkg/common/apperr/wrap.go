package apperr

import "github.com/pkg/errors"

// Wrap annotates err with msg, preserving the original error for errors.Is
// / errors.As callers.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}
