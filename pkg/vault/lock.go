package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrWouldBlock is returned by a non-blocking lock attempt when another
// session holds the identity lock.
var ErrWouldBlock = errors.New("identity lock is held by another session")

// lock serializes access to the identity's encrypted blob across goroutines
// and processes. It retries with exponential backoff until the vault's lock
// timeout or ctx expires. The returned func releases the lock.
func (v *Vault) lock(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, v.lockTimeout)
	defer cancel()

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 20 * time.Millisecond
	backoffCfg.MaxInterval = 500 * time.Millisecond

	if err := os.MkdirAll(v.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	path := v.lockPath()
	for {
		lockFile, err := acquireFileLock(path)
		if err == nil {
			return func() {
				if err := releaseFileLock(lockFile); err != nil {
					v.logger.Warnf("failed to release identity lock %s: %v", path, err)
				}
			}, nil
		}
		if !errors.Is(err, ErrWouldBlock) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for identity lock %s: %w", path, ctx.Err())
		case <-time.After(backoffCfg.NextBackOff()):
		}
	}
}
