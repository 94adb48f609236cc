package platform

import (
	"errors"
	"fmt"
)

// ErrAuthExpired means the platform rejected our credentials. Never retried;
// the caller must force re-authentication.
var ErrAuthExpired = errors.New("platform: authentication expired or invalid")

// RemoteError is a transport-level or server-side failure (network error,
// 5xx). These are candidates for retry.
type RemoteError struct {
	StatusCode int // 0 when the request never got a response
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("platform unreachable: %s", e.Message)
	}
	return fmt.Sprintf("platform error %d: %s", e.StatusCode, e.Message)
}

// BusinessError is a platform-side rule violation (4xx other than auth).
// Never retried, surfaced verbatim to the operator.
type BusinessError struct {
	StatusCode int
	Message    string
}

func (e *BusinessError) Error() string {
	return fmt.Sprintf("platform rejected request: %s", e.Message)
}

// IsTransient reports whether the error is worth retrying
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsBusiness reports whether the error is a platform business-rule violation
func IsBusiness(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}
