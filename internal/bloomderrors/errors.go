// Package bloomderrors holds the sentinel errors the filter manager
// surfaces to its callers.
package bloomderrors

import "errors"

var (
	ErrNoSuchFilter  = errors.New("bloomd: no such filter")
	ErrAlreadyExists = errors.New("bloomd: filter already exists")
	ErrCreateFailed  = errors.New("bloomd: filter create failed")
	ErrInternal      = errors.New("bloomd: internal error")
)
