package trackvia

import (
	"errors"
	"fmt"
)

// AuthError reports a rejected or expired session. Fatal to a pipeline run.
type AuthError struct {
	Op      string
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (status %d): %s", e.Op, e.Status, e.Message)
}

// NotFoundError reports a distinguishable "no such record/file" response,
// separate from transport or auth failures. Non-fatal only for per-record
// image fetches.
type NotFoundError struct {
	Op  string
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found: %s", e.Op, e.URL)
}

// NotFound marks the error as a distinguishable missing-resource condition.
func (e *NotFoundError) NotFound() bool { return true }

// RemoteError reports any other non-2xx store response, with enough context
// to diagnose without re-running in a debugger.
type RemoteError struct {
	Op     string
	URL    string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d: %s", e.Op, e.URL, e.Status, e.Body)
}

// IsNotFound reports whether err is a store not-found response.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
