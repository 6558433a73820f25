package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/entrhq/uitest/pkg/logging"
)

var tracer = otel.Tracer("github.com/entrhq/uitest/pkg/browser")

// CredentialStore caches a context's storage state between sessions.
// *vault.Vault implements it.
type CredentialStore interface {
	// Load stages cached state for the session and returns its path
	Load(ctx context.Context, sessionID string) (string, bool)

	// Save persists the session's staged state and removes the staging file
	Save(ctx context.Context, sessionID string) error

	// StagingPath is where the session's plaintext state is exchanged
	StagingPath(sessionID string) string

	// Discard removes the session's staging file
	Discard(sessionID string)
}

// TeardownStage is one isolated step of Manager.Teardown.
type TeardownStage struct {
	Name string
	Run  func(ctx context.Context, s *Session) error
}

// Teardown stage names, in execution order around any extra stages.
const (
	StageSaveState    = "save-state"
	StageClosePage    = "close-page"
	StageCloseContext = "close-context"
	StageCloseBrowser = "close-browser"
	StageStopDriver   = "stop-driver"
)

// Manager creates and tears down sessions.
type Manager struct {
	drivers DriverFactory
	config  ManagerConfig
	store   CredentialStore
	logger  *logging.Logger
}

// NewManager creates a session manager. store may be nil to disable
// credential caching.
func NewManager(drivers DriverFactory, cfg ManagerConfig, store CredentialStore, logger *logging.Logger) *Manager {
	return &Manager{
		drivers: drivers,
		config:  cfg.withDefaults(),
		store:   store,
		logger:  logger,
	}
}

// Config returns the effective session settings.
func (m *Manager) Config() ManagerConfig {
	return m.config
}

// Setup starts a driver, launches the browser, creates a context (with
// cached credential state when available) and opens its page. Any failure
// releases what was already acquired and is returned.
func (m *Manager) Setup(ctx context.Context) (*Session, error) {
	ctx, span := tracer.Start(ctx, "session.setup")
	defer span.End()

	s := &Session{
		ID:        uuid.NewString(),
		Family:    m.config.Family,
		Headless:  m.config.Headless,
		Viewport:  m.config.Viewport,
		TimeoutMs: m.config.TimeoutMs,
		BaseURL:   m.config.BaseURL,
		CreatedAt: time.Now(),
	}
	s.logger = m.logger.With(s.ID[:8])
	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("browser.family", string(s.Family)),
		attribute.Bool("browser.headless", s.Headless),
	)

	if err := m.setup(ctx, s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if terr := m.Teardown(ctx, s); terr != nil {
			s.logger.Warnf("cleanup after failed setup: %v", terr)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Bool("session.state_attached", s.StateAttached))
	s.logger.Infof("session ready: %s headless=%v viewport=%dx%d cached_state=%v",
		s.Family, s.Headless, s.Viewport.Width, s.Viewport.Height, s.StateAttached)
	return s, nil
}

func (m *Manager) setup(ctx context.Context, s *Session) error {
	driver, err := m.drivers(ctx)
	if err != nil {
		return fmt.Errorf("failed to start driver: %w", err)
	}
	s.driver = driver

	browserType, err := driver.BrowserType(s.Family)
	if err != nil {
		return err
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.Headless),
	}
	if m.config.SlowMoMs > 0 {
		launchOpts.SlowMo = playwright.Float(m.config.SlowMoMs)
	}
	browser, err := browserType.Launch(launchOpts)
	if err != nil {
		return fmt.Errorf("failed to launch %s: %w", s.Family, err)
	}
	s.browser = browser
	s.advance(DriverLaunched)

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  s.Viewport.Width,
			Height: s.Viewport.Height,
		},
	}
	if m.store != nil {
		if staging, ok := m.store.Load(ctx, s.ID); ok {
			contextOpts.StorageStatePath = playwright.String(staging)
			s.StateAttached = true
		}
	}

	browserContext, err := browser.NewContext(contextOpts)
	if m.store != nil && s.StateAttached {
		// The context has read the staged state; the plaintext goes now.
		m.store.Discard(s.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create context: %w", err)
	}
	s.mu.Lock()
	s.context = browserContext
	s.mu.Unlock()
	s.advance(ContextCreated)

	page, err := browserContext.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(s.TimeoutMs)
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	s.advance(PageReady)
	return nil
}

// Teardown runs the teardown stages in order: save-state, the extra stages,
// close-page, close-context, close-browser, stop-driver. Each stage is
// isolated, so a failure or panic in one never skips the rest. Failures are
// logged as *TeardownResourceError and joined into the returned error.
// Tearing down a session twice is a no-op.
func (m *Manager) Teardown(ctx context.Context, s *Session, extra ...TeardownStage) error {
	if s == nil || s.State() == TornDown {
		return nil
	}

	ctx, span := tracer.Start(ctx, "session.teardown")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.ID))

	stages := make([]TeardownStage, 0, len(extra)+5)
	stages = append(stages, TeardownStage{Name: StageSaveState, Run: m.saveState})
	stages = append(stages, extra...)
	stages = append(stages,
		TeardownStage{Name: StageClosePage, Run: closePage},
		TeardownStage{Name: StageCloseContext, Run: closeContext},
		TeardownStage{Name: StageCloseBrowser, Run: closeBrowser},
		TeardownStage{Name: StageStopDriver, Run: stopDriver},
	)

	var errs []error
	for _, stage := range stages {
		if err := runStage(ctx, s, stage); err != nil {
			terr := &TeardownResourceError{Resource: stage.Name, Err: err}
			s.logger.Warnf("%v", terr)
			span.RecordError(terr)
			errs = append(errs, terr)
		}
	}

	s.advance(TornDown)
	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, "teardown incomplete")
		return err
	}
	s.logger.Infof("session torn down")
	return nil
}

func runStage(ctx context.Context, s *Session, stage TeardownStage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Run(ctx, s)
}

func (m *Manager) saveState(ctx context.Context, s *Session) error {
	browserContext := s.Context()
	if m.store == nil || browserContext == nil {
		return nil
	}
	defer m.store.Discard(s.ID)

	staging := m.store.StagingPath(s.ID)
	if err := os.MkdirAll(filepath.Dir(staging), 0700); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	if _, err := browserContext.StorageState(staging); err != nil {
		return fmt.Errorf("failed to snapshot storage state: %w", err)
	}
	return m.store.Save(ctx, s.ID)
}

func closePage(_ context.Context, s *Session) error {
	s.mu.Lock()
	page := s.page
	s.page = nil
	s.mu.Unlock()
	if page == nil {
		return nil
	}
	return page.Close()
}

func closeContext(_ context.Context, s *Session) error {
	s.mu.Lock()
	browserContext := s.context
	s.context = nil
	s.mu.Unlock()
	if browserContext == nil {
		return nil
	}
	return browserContext.Close()
}

func closeBrowser(_ context.Context, s *Session) error {
	s.mu.Lock()
	browser := s.browser
	s.browser = nil
	s.mu.Unlock()
	if browser == nil {
		return nil
	}
	return browser.Close()
}

func stopDriver(_ context.Context, s *Session) error {
	s.mu.Lock()
	driver := s.driver
	s.driver = nil
	s.mu.Unlock()
	if driver == nil {
		return nil
	}
	return driver.Stop()
}
