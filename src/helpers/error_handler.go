package helpers

import (
	"fmt"
	"time"

	"market-relay/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type RelayError struct {
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Distinct error types for the failure classes the engine degrades through:
// a FetchError leaves the cache stale until the next tick, a ParseError skips
// the single offending record, a BroadcastError drops one connection.
type ConfigurationError struct{ RelayError }
type FetchError struct{ RelayError }
type ParseError struct{ RelayError }
type BroadcastError struct{ RelayError }

// -----------------------------------------------------------------------------

func NewFetchError(op string, cause error) *FetchError {
	return &FetchError{RelayError{Message: op + " failed", Cause: cause}}
}

func NewParseError(op string, cause error) *ParseError {
	return &ParseError{RelayError{Message: op + " failed", Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts fn up to maxRetries times with exponential backoff.
// Used for one-shot setup work (initial store connect); the periodic loops
// retry implicitly by ticking.
func RetryWithBackoff(log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, lastErr, delay)
		time.Sleep(delay)
	}

	return &RelayError{Message: fmt.Sprintf("%s failed after %d attempts", operation, maxRetries), Cause: lastErr}
}
