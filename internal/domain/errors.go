package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")

	ErrConfiguration      = errors.New("configuration error")
	ErrTransientVenue     = errors.New("transient venue error")
	ErrOrderRejected      = errors.New("order rejected")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrStopRequested      = errors.New("strategy stop requested")
)

// ConfigurationError reports an invalid or inconsistent strategy parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvariantError reports broken ladder bookkeeping. Rule names the violated
// invariant so operators can find it in the dumped state.
type InvariantError struct {
	Rule   string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s: %s", e.Rule, e.Detail)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// NewInvariantError builds an InvariantError with a formatted detail.
func NewInvariantError(rule, format string, args ...any) error {
	return &InvariantError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// Transient marks err as a retryable venue failure while keeping it
// inspectable with errors.Is.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransientVenue) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientVenue, err)
}

// IsFatal reports whether err must stop the strategy with a non-zero status.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrInvariantViolation)
}
