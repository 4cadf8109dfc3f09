package exchange

import (
	"errors"
	"fmt"
)

// Non-retryable rejections. The engine marks the affected level as
// failed and carries on; it never retries these.
var (
	ErrInsufficientFunds = errors.New("exchange: insufficient funds")
	ErrInvalidOrder      = errors.New("exchange: invalid order parameters")
)

// ErrAuth indicates the exchange rejected our credentials. During
// startup this faults the engine; no further calls are attempted.
var ErrAuth = errors.New("exchange: authentication failed")

// TransientError wraps failures worth retrying: network errors, 5xx
// responses and exchange-side rate limiting.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("exchange: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsRetryable reports whether the engine may retry the failed call.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
