package vault

import "fmt"

// CorruptStateError reports an encrypted blob that could not be decrypted
// or did not decode as a storage state. Load recovers from it by deleting
// the blob; it is only ever logged.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("credential state %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}
