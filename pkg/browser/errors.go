package browser

import (
	"errors"
	"fmt"
)

// ErrSessionNotReady is returned when an interaction is attempted on a
// session without an active page, typically because Setup did not run.
var ErrSessionNotReady = errors.New("browser session is not ready: no active page")

// UnknownRoleError reports a role name outside the supported vocabulary.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown ARIA role %q", e.Role)
}

// UnknownStrategyError reports an unsupported locator strategy tag.
type UnknownStrategyError struct {
	Strategy string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown locator strategy %q (must be role, text, label, testid, placeholder or selector)", e.Strategy)
}

// UnknownFamilyError reports an unsupported browser family.
type UnknownFamilyError struct {
	Family string
}

func (e *UnknownFamilyError) Error() string {
	return fmt.Sprintf("unknown browser %q (must be 'chromium', 'firefox', or 'webkit')", e.Family)
}

// TimeoutError reports a wait or action that did not complete in time.
// Exactly one of Selector and URL is set. The session stays usable.
type TimeoutError struct {
	Selector  string
	URL       string
	TimeoutMs float64
	Err       error
}

func (e *TimeoutError) Error() string {
	target := "selector " + e.Selector
	if e.URL != "" {
		target = "URL " + e.URL
	}
	return fmt.Sprintf("timed out after %gms waiting for %s", e.TimeoutMs, target)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// TeardownResourceError reports a teardown stage that failed. Later stages
// still run.
type TeardownResourceError struct {
	Resource string
	Err      error
}

func (e *TeardownResourceError) Error() string {
	return fmt.Sprintf("teardown %s: %v", e.Resource, e.Err)
}

func (e *TeardownResourceError) Unwrap() error {
	return e.Err
}
