// Package vault caches a browser context's storage state (cookies and local
// storage) between runs, encrypted at rest with a key scoped to the current
// OS user.
//
// The plaintext form only exists as a per-session staging file, written by
// Load just before the context is created and consumed by Save at teardown.
// A blob that fails to decrypt is deleted and treated as absent, which costs
// one extra login on the next run.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/uitest/pkg/logging"
)

const (
	blobSuffix  = ".state.enc"
	lockSuffix  = ".lock"
	stagingDir  = "staging"
	stagingExt  = ".json"
	defaultLock = 30 * time.Second
)

// Options configures a Vault.
type Options struct {
	// Dir holds the encrypted blobs, the staging directory and lock files.
	Dir string

	// Identity names the cached login. Each identity has its own blob.
	Identity string

	// Protector encrypts blobs. Nil selects DefaultProtector.
	Protector Protector

	Logger *logging.Logger

	// LockTimeout bounds the wait for the identity lock. Zero means 30s.
	LockTimeout time.Duration
}

// State is the on-disk state of an identity's blob.
type State int

const (
	// Absent means no blob is cached for the identity
	Absent State = iota
	// Present means a blob exists; it may still fail to decrypt
	Present
)

func (s State) String() string {
	if s == Present {
		return "present"
	}
	return "absent"
}

// Status describes the cached blob for the CLI.
type Status struct {
	Identity string
	State    State
	Path     string
	Size     int64
	ModTime  time.Time
}

// Vault is the credential state cache for one identity. It is safe for
// concurrent use by sessions in this and other processes.
type Vault struct {
	dir         string
	identity    string
	protector   Protector
	logger      *logging.Logger
	lockTimeout time.Duration
	recoveries  atomic.Int64
}

// New creates a vault. It does not touch the filesystem.
func New(opts Options) (*Vault, error) {
	if opts.Dir == "" {
		return nil, errors.New("vault directory is required")
	}
	if opts.Identity == "" || strings.ContainsAny(opts.Identity, `/\:`) || opts.Identity == "." || opts.Identity == ".." {
		return nil, fmt.Errorf("invalid vault identity %q", opts.Identity)
	}

	protector := opts.Protector
	if protector == nil {
		var err error
		protector, err = DefaultProtector()
		if err != nil {
			return nil, fmt.Errorf("failed to create protector: %w", err)
		}
	}

	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLock
	}

	return &Vault{
		dir:         opts.Dir,
		identity:    opts.Identity,
		protector:   protector,
		logger:      opts.Logger,
		lockTimeout: lockTimeout,
	}, nil
}

// Identity returns the identity this vault caches.
func (v *Vault) Identity() string {
	return v.identity
}

// BlobPath returns the path of the encrypted blob.
func (v *Vault) BlobPath() string {
	return filepath.Join(v.dir, v.identity+blobSuffix)
}

// StagingPath returns the plaintext staging path for one session.
func (v *Vault) StagingPath(sessionID string) string {
	return filepath.Join(v.dir, stagingDir, v.identity+"-"+sessionID+stagingExt)
}

func (v *Vault) lockPath() string {
	return filepath.Join(v.dir, v.identity+lockSuffix)
}

// Recoveries returns how many corrupt blobs this vault has deleted.
func (v *Vault) Recoveries() int64 {
	return v.recoveries.Load()
}

// Load decrypts the cached state into the session's staging file and returns
// its path. ok is false when nothing usable is cached; Load never fails the
// caller, since a missing login state only costs a fresh login.
func (v *Vault) Load(ctx context.Context, sessionID string) (string, bool) {
	unlock, err := v.lock(ctx)
	if err != nil {
		v.logger.Warnf("skipping cached state for %s: %v", v.identity, err)
		return "", false
	}
	defer unlock()

	blobPath := v.BlobPath()
	blob, err := os.ReadFile(blobPath)
	if os.IsNotExist(err) {
		v.logger.Debugf("no cached state for %s", v.identity)
		return "", false
	}
	if err != nil {
		v.logger.Warnf("failed to read cached state %s: %v", blobPath, err)
		return "", false
	}

	plaintext, err := v.open(blob)
	if err != nil {
		v.heal(&CorruptStateError{Path: blobPath, Err: err})
		return "", false
	}

	staging := v.StagingPath(sessionID)
	if err := writeFileAtomic(staging, plaintext, 0600); err != nil {
		v.logger.Warnf("failed to stage cached state for session %s: %v", sessionID, err)
		return "", false
	}

	v.logger.Infof("loaded cached state for %s into session %s", v.identity, sessionID)
	return staging, true
}

// Save encrypts the session's staging file into the blob. Without a staging
// file there is nothing to persist and Save returns nil. The staging file is
// removed whether or not Save succeeds.
func (v *Vault) Save(ctx context.Context, sessionID string) error {
	staging := v.StagingPath(sessionID)
	plaintext, err := os.ReadFile(staging)
	if os.IsNotExist(err) {
		return nil
	}
	defer v.Discard(sessionID)
	if err != nil {
		return fmt.Errorf("failed to read staged state: %w", err)
	}

	if _, err := ParseStorageState(plaintext); err != nil {
		return fmt.Errorf("refusing to cache staged state: %w", err)
	}

	blob, err := v.protector.Protect(plaintext)
	if err != nil {
		return fmt.Errorf("failed to protect state: %w", err)
	}

	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := writeFileAtomic(v.BlobPath(), blob, 0600); err != nil {
		return fmt.Errorf("failed to write cached state: %w", err)
	}
	v.logger.Infof("saved state for %s from session %s (%d bytes)", v.identity, sessionID, len(blob))
	return nil
}

// Discard removes a session's staging file if it exists.
func (v *Vault) Discard(sessionID string) {
	if err := removeIfExists(v.StagingPath(sessionID)); err != nil {
		v.logger.Warnf("failed to remove staging file for session %s: %v", sessionID, err)
	}
}

// Clear deletes the blob and every staging file of the identity, forcing a
// fresh login on the next run. Clearing an empty vault is a no-op.
func (v *Vault) Clear(ctx context.Context) error {
	unlock, err := v.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	var errs []error
	if err := removeIfExists(v.BlobPath()); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove cached state: %w", err))
	}

	pattern := filepath.Join(v.dir, stagingDir, v.identity+"-*"+stagingExt)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		errs = append(errs, err)
	}
	prefix := v.identity + "-"
	for _, path := range matches {
		// Only session-id suffixes belong to this identity; "a-b-<id>" is identity "a-b".
		id := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), prefix), stagingExt)
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		if err := removeIfExists(path); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove staging file: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	v.logger.Infof("cleared cached state for %s", v.identity)
	return nil
}

// Status reports whether a blob is cached. It does not decrypt it.
func (v *Vault) Status() Status {
	status := Status{Identity: v.identity, State: Absent, Path: v.BlobPath()}
	info, err := os.Stat(status.Path)
	if err != nil {
		return status
	}
	status.State = Present
	status.Size = info.Size()
	status.ModTime = info.ModTime()
	return status
}

// Inspect decrypts and decodes the cached state without staging it.
// Unlike Load it reports corruption as a *CorruptStateError and leaves the
// blob in place.
func (v *Vault) Inspect(ctx context.Context) (*StorageState, error) {
	unlock, err := v.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	blobPath := v.BlobPath()
	blob, err := os.ReadFile(blobPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached state: %w", err)
	}
	plaintext, err := v.open(blob)
	if err != nil {
		return nil, &CorruptStateError{Path: blobPath, Err: err}
	}
	return ParseStorageState(plaintext)
}

func (v *Vault) open(blob []byte) ([]byte, error) {
	plaintext, err := v.protector.Unprotect(blob)
	if err != nil {
		return nil, err
	}
	if _, err := ParseStorageState(plaintext); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// heal deletes a corrupt blob. Must hold the identity lock.
func (v *Vault) heal(corrupt *CorruptStateError) {
	v.recoveries.Add(1)
	v.logger.Warnf("%v; deleting it, a fresh login will be required", corrupt)
	if err := removeIfExists(corrupt.Path); err != nil {
		v.logger.Errorf("failed to delete corrupt state %s: %v", corrupt.Path, err)
	}
}
