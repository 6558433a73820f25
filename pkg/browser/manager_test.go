package browser

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uitest/pkg/logging"
	"github.com/entrhq/uitest/pkg/vault"
)

func TestManager_SetupHeaded(t *testing.T) {
	stack := newFakeStack()
	manager := NewManager(stack.factory(), ManagerConfig{SlowMoMs: 50, TimeoutMs: 1500}, nil, logging.Discard("browser"))

	s, err := manager.Setup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PageReady, s.State())
	assert.Equal(t, []string{"start-driver", "new-context", "new-page"}, stack.events)
	assert.Equal(t, []Family{Chromium}, stack.driver.families)

	require.Len(t, stack.btype.launchOpts, 1)
	opts := stack.btype.launchOpts[0]
	require.NotNil(t, opts.Headless)
	assert.False(t, *opts.Headless)
	require.NotNil(t, opts.SlowMo)
	assert.Equal(t, 50.0, *opts.SlowMo)

	require.Len(t, stack.browser.contexts, 1)
	viewport := stack.browser.contexts[0].viewport
	require.NotNil(t, viewport)
	assert.Equal(t, 960, viewport.Width)
	assert.Equal(t, 1080, viewport.Height)
	assert.Equal(t, 1500.0, stack.page.defaultTimeout)
	assert.False(t, s.StateAttached)
	assert.NotEmpty(t, s.ID)
}

func TestManager_SetupHeadlessHasNoSlowMo(t *testing.T) {
	stack := newFakeStack()
	manager := NewManager(stack.factory(), ManagerConfig{Family: Firefox, Headless: true, SlowMoMs: 50}, nil, nil)

	_, err := manager.Setup(context.Background())
	require.NoError(t, err)

	opts := stack.btype.launchOpts[0]
	assert.True(t, *opts.Headless)
	assert.Nil(t, opts.SlowMo)
	assert.Equal(t, []Family{Firefox}, stack.driver.families)
}

func TestManager_SetupFailureReleasesResources(t *testing.T) {
	stack := newFakeStack()
	stack.browser.newContextErr = errors.New("cannot attach state")
	manager := NewManager(stack.factory(), ManagerConfig{}, nil, nil)

	s, err := manager.Setup(context.Background())
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "cannot attach state")
	assert.Equal(t, []string{"start-driver", "new-context", "close-browser", "stop-driver"}, stack.events)
}

func TestManager_SetupDriverFailure(t *testing.T) {
	failing := func(context.Context) (Driver, error) { return nil, errors.New("driver missing") }
	manager := NewManager(failing, ManagerConfig{}, nil, nil)

	_, err := manager.Setup(context.Background())
	assert.ErrorContains(t, err, "driver missing")
}

func TestManager_TeardownOrderAndIdempotence(t *testing.T) {
	stack := newFakeStack()
	manager := NewManager(stack.factory(), ManagerConfig{}, nil, nil)
	s, err := manager.Setup(context.Background())
	require.NoError(t, err)
	stack.events = nil

	var captured bool
	capture := TeardownStage{Name: "capture", Run: func(_ context.Context, s *Session) error {
		captured = s.Page() != nil
		stack.events = append(stack.events, "capture")
		return nil
	}}

	require.NoError(t, manager.Teardown(context.Background(), s, capture))
	assert.True(t, captured, "extra stages run while the page is open")
	assert.Equal(t, []string{"capture", "close-page", "close-context", "close-browser", "stop-driver"}, stack.events)
	assert.Equal(t, TornDown, s.State())
	assert.Nil(t, s.Page())

	stack.events = nil
	require.NoError(t, manager.Teardown(context.Background(), s))
	assert.Empty(t, stack.events)
}

func TestManager_TeardownIsTotal(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)

	stack := newFakeStack()
	manager := NewManager(stack.factory(), ManagerConfig{}, store, nil)
	s, err := manager.Setup(context.Background())
	require.NoError(t, err)
	stack.events = nil

	stack.browser.contexts[0].stateErr = errors.New("context crashed")
	stack.page.closeErr = errors.New("page already gone")
	panicking := TeardownStage{Name: "capture", Run: func(context.Context, *Session) error {
		panic("boom")
	}}

	err = manager.Teardown(context.Background(), s, panicking)
	require.Error(t, err)
	assert.Equal(t, []string{"storage-state", "close-page", "close-context", "close-browser", "stop-driver"}, stack.events)

	var terr *TeardownResourceError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StageSaveState, terr.Resource)
	assert.ErrorContains(t, err, "teardown capture: panic: boom")
	assert.ErrorContains(t, err, "teardown close-page: page already gone")

	matches, err := filepath.Glob(filepath.Join(dir, "staging", "*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, vault.Absent, store.Status().State)
}

func TestManager_CachedCredentialsCarryOver(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, t.TempDir())

	first := newFakeStack()
	manager := NewManager(first.factory(), ManagerConfig{}, store, nil)
	s, err := manager.Setup(ctx)
	require.NoError(t, err)
	assert.False(t, s.StateAttached, "no cached state on the first run")

	cookie := map[string]interface{}{"name": "session", "value": "token-1", "domain": "crm.example.com", "path": "/"}
	first.browser.contexts[0].cookies = []map[string]interface{}{cookie}
	require.NoError(t, manager.Teardown(ctx, s))
	assert.Equal(t, vault.Present, store.Status().State)

	second := newFakeStack()
	manager = NewManager(second.factory(), ManagerConfig{}, store, nil)
	s, err = manager.Setup(ctx)
	require.NoError(t, err)
	assert.True(t, s.StateAttached)

	require.Len(t, second.browser.contexts, 1)
	assert.Equal(t, first.browser.contexts[0].cookies, second.browser.contexts[0].cookies)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(store.BlobPath()), "staging", "*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "staged plaintext is removed once the context has read it")
	require.NoError(t, manager.Teardown(ctx, s))
}

func newTestStore(t *testing.T, dir string) *vault.Vault {
	t.Helper()
	v, err := vault.New(vault.Options{
		Dir:         dir,
		Identity:    "tester",
		Protector:   vault.NewKeyFileProtector(filepath.Join(dir, "key"), []byte("tester@test")),
		LockTimeout: time.Second,
	})
	require.NoError(t, err)
	return v
}
