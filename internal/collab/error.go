// Package collab holds the error type shared by clients of external services.
package collab

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned by a client whose credentials are absent.
var ErrNotConfigured = errors.New("collaborator not configured")

// Error describes a failed call to an external service.
type Error struct {
	Service    string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s failed", e.Service, e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		fmt.Fprintf(&b, ": %s", Truncate(body, 300))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsCollaborator reports whether err originated from an external service.
func IsCollaborator(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
