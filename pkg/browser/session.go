package browser

import (
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/uitest/pkg/logging"
)

// SessionState is the lifecycle position of a Session.
type SessionState int

const (
	Uninitialized SessionState = iota
	DriverLaunched
	ContextCreated
	PageReady
	TornDown
)

func (s SessionState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case DriverLaunched:
		return "driver-launched"
	case ContextCreated:
		return "context-created"
	case PageReady:
		return "page-ready"
	case TornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// Session owns the driver, browser, context and single page of one
// scenario. Handles are released in reverse order of acquisition by
// Manager.Teardown.
type Session struct {
	// ID correlates the session's logs and vault staging file
	ID string

	Family   Family
	Headless bool
	Viewport Viewport

	// TimeoutMs and BaseURL are the defaults handed to Actions
	TimeoutMs float64
	BaseURL   string

	// StateAttached reports whether the context started from cached
	// credential state
	StateAttached bool

	CreatedAt time.Time

	mu      sync.Mutex
	state   SessionState
	driver  Driver
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	logger  *logging.Logger
}

// State returns the session's lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Page returns the active page, or nil before PageReady and after teardown.
func (s *Session) Page() playwright.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != PageReady {
		return nil
	}
	return s.page
}

// Context returns the browser context, or nil if none is open.
func (s *Session) Context() playwright.BrowserContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.context
}

func (s *Session) advance(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.logger.Debugf("session %s -> %s", s.ID, state)
}
