package crowdfund

import (
	"errors"
	"fmt"
)

// Rejection kinds. Every rejection returned by the contract wraps exactly one of them.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotYetEligible = errors.New("not yet eligible")
	ErrWrongAsset     = errors.New("wrong asset")
	ErrInvalidState   = errors.New("invalid state")
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrNoProject is returned by stores before the project is instantiated.
var ErrNoProject = errors.New("project not instantiated")

// Rejection reports which precondition of an operation failed.
type Rejection struct {
	Op     string
	Reason string
	kind   error
}

func reject(op string, kind error, format string, args ...interface{}) *Rejection {
	return &Rejection{Op: op, Reason: fmt.Sprintf(format, args...), kind: kind}
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %v: %s", r.Op, r.kind, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.kind
}

// IsRejection reports whether err is a refused request rather than a
// failure of the host: a Rejection, one of the rejection kinds, or ErrNoProject.
func IsRejection(err error) bool {
	var r *Rejection
	if errors.As(err, &r) || errors.Is(err, ErrNoProject) {
		return true
	}
	for _, kind := range []error{ErrUnauthorized, ErrNotYetEligible, ErrWrongAsset, ErrInvalidState, ErrNotFound, ErrInvalidRequest} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
