package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uitest/pkg/logging"
)

const sampleState = `{"cookies":[{"name":"session","value":"abc123","domain":"crm.example.com","path":"/","expires":-1,"httpOnly":true,"secure":true,"sameSite":"Lax"}],"origins":[{"origin":"https://crm.example.com","localStorage":[{"name":"tenant","value":"42"}]}]}`

func newTestVault(t *testing.T, dir string, binding string) *Vault {
	t.Helper()
	v, err := New(Options{
		Dir:         dir,
		Identity:    "admin",
		Protector:   NewKeyFileProtector(filepath.Join(dir, "test.key"), []byte(binding)),
		Logger:      logging.Discard("vault"),
		LockTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return v
}

func stage(t *testing.T, v *Vault, sessionID, content string) {
	t.Helper()
	path := v.StagingPath(sessionID)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestNew_RejectsBadOptions(t *testing.T) {
	_, err := New(Options{Identity: "admin"})
	assert.Error(t, err)

	for _, identity := range []string{"", "..", "a/b", `a\b`} {
		_, err := New(Options{Dir: t.TempDir(), Identity: identity, Protector: NewKeyFileProtector("k", nil)})
		assert.Error(t, err, identity)
	}
}

func TestVault_LoadAbsent(t *testing.T) {
	v := newTestVault(t, t.TempDir(), "user")

	path, ok := v.Load(context.Background(), uuid.NewString())
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Equal(t, Absent, v.Status().State)
}

func TestVault_SaveThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, t.TempDir(), "user")

	first := uuid.NewString()
	stage(t, v, first, sampleState)
	require.NoError(t, v.Save(ctx, first))

	_, err := os.Stat(v.StagingPath(first))
	assert.True(t, os.IsNotExist(err), "staging file must be removed after save")

	blob, err := os.ReadFile(v.BlobPath())
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "abc123", "blob must not contain plaintext")

	status := v.Status()
	assert.Equal(t, Present, status.State)
	assert.Equal(t, int64(len(blob)), status.Size)

	second := uuid.NewString()
	path, ok := v.Load(ctx, second)
	require.True(t, ok)
	assert.Equal(t, v.StagingPath(second), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleState, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if filepath.Separator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestVault_SaveWithoutStagingIsNoop(t *testing.T) {
	v := newTestVault(t, t.TempDir(), "user")

	require.NoError(t, v.Save(context.Background(), uuid.NewString()))
	assert.Equal(t, Absent, v.Status().State)
}

func TestVault_SaveRejectsGarbageAndRemovesStaging(t *testing.T) {
	v := newTestVault(t, t.TempDir(), "user")
	id := uuid.NewString()
	stage(t, v, id, "not json")

	assert.Error(t, v.Save(context.Background(), id))
	_, err := os.Stat(v.StagingPath(id))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, Absent, v.Status().State)
}

func TestVault_ClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, t.TempDir(), "user")

	id := uuid.NewString()
	stage(t, v, id, sampleState)
	require.NoError(t, v.Save(ctx, id))
	leftover := uuid.NewString()
	stage(t, v, leftover, sampleState)

	require.NoError(t, v.Clear(ctx))
	require.NoError(t, v.Clear(ctx))

	assert.Equal(t, Absent, v.Status().State)
	_, err := os.Stat(v.StagingPath(leftover))
	assert.True(t, os.IsNotExist(err))

	_, ok := v.Load(ctx, uuid.NewString())
	assert.False(t, ok)
}

func TestVault_ClearLeavesOtherIdentities(t *testing.T) {
	dir := t.TempDir()
	v := newTestVault(t, dir, "user")
	other, err := New(Options{Dir: dir, Identity: "admin-eu", Protector: v.protector})
	require.NoError(t, err)

	id := uuid.NewString()
	stage(t, other, id, sampleState)

	require.NoError(t, v.Clear(context.Background()))
	_, err = os.Stat(other.StagingPath(id))
	assert.NoError(t, err)
}

func TestVault_CorruptBlobIsDeleted(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, t.TempDir(), "user")
	require.NoError(t, os.WriteFile(v.BlobPath(), []byte("UTV1 definitely not ciphertext"), 0600))

	path, ok := v.Load(ctx, uuid.NewString())
	assert.False(t, ok)
	assert.Empty(t, path)
	assert.Equal(t, int64(1), v.Recoveries())

	_, err := os.Stat(v.BlobPath())
	assert.True(t, os.IsNotExist(err), "corrupt blob must be deleted")

	_, ok = v.Load(ctx, uuid.NewString())
	assert.False(t, ok)
	assert.Equal(t, int64(1), v.Recoveries(), "absent is not a recovery")
}

func TestVault_ForeignPrincipalSelfHeals(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	alice := newTestVault(t, dir, "alice@host-a")
	id := uuid.NewString()
	stage(t, alice, id, sampleState)
	require.NoError(t, alice.Save(ctx, id))

	bob := newTestVault(t, dir, "bob@host-b")
	_, err := bob.Inspect(ctx)
	var corrupt *CorruptStateError
	require.True(t, errors.As(err, &corrupt))
	assert.ErrorIs(t, err, ErrUnprotect)
	assert.Equal(t, Present, bob.Status().State, "Inspect must not delete")

	_, ok := bob.Load(ctx, uuid.NewString())
	assert.False(t, ok)
	assert.Equal(t, Absent, bob.Status().State)
}

func TestVault_Inspect(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, t.TempDir(), "user")
	id := uuid.NewString()
	stage(t, v, id, sampleState)
	require.NoError(t, v.Save(ctx, id))

	state, err := v.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, state.Cookies, 1)
	assert.Equal(t, "session", state.Cookies[0].Name)
	require.Len(t, state.Origins, 1)
	assert.Equal(t, "42", state.Origins[0].LocalStorage[0].Value)
}

func TestVault_ConcurrentSessionsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, t.TempDir(), "user")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.NewString()
			if _, ok := v.Load(ctx, id); ok {
				v.Discard(id)
			}
			stage(t, v, id, sampleState)
			errs <- v.Save(ctx, id)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	state, err := v.Inspect(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Cookies, 1)

	entries, err := os.ReadDir(filepath.Join(v.dir, stagingDir))
	require.NoError(t, err)
	assert.Empty(t, entries, "no plaintext may survive the sessions")
}

func TestVault_LockTimesOut(t *testing.T) {
	dir := t.TempDir()
	v, err := New(Options{
		Dir:         dir,
		Identity:    "admin",
		Protector:   NewKeyFileProtector(filepath.Join(dir, "test.key"), nil),
		LockTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	unlock, err := v.lock(context.Background())
	require.NoError(t, err)
	defer unlock()

	original := acquireFileLock
	t.Cleanup(func() { acquireFileLock = original })
	acquireFileLock = func(string) (*os.File, error) { return nil, ErrWouldBlock }

	err = v.Clear(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseStorageState(t *testing.T) {
	_, err := ParseStorageState([]byte(sampleState))
	assert.NoError(t, err)

	for _, bad := range []string{"", "null", "[]", `"cookies"`, "{"} {
		_, err := ParseStorageState([]byte(bad))
		assert.Error(t, err, bad)
	}
}
