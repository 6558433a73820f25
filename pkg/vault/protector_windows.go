//go:build windows

package vault

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// dpapiEntropy scopes blobs to this tool so other DPAPI consumers of the
// same user cannot decrypt them by accident.
var dpapiEntropy = []byte("uitest storage state v1")

// dpapiProtector uses the Windows Data Protection API in CurrentUser scope.
type dpapiProtector struct{}

// DefaultProtector returns the DPAPI protector.
func DefaultProtector() (Protector, error) {
	return dpapiProtector{}, nil
}

func (dpapiProtector) Protect(plaintext []byte) ([]byte, error) {
	var out windows.DataBlob
	err := windows.CryptProtectData(newBlob(plaintext), nil, newBlob(dpapiEntropy), 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, fmt.Errorf("CryptProtectData failed: %w", err)
	}
	return takeBlob(&out), nil
}

func (dpapiProtector) Unprotect(blob []byte) ([]byte, error) {
	var out windows.DataBlob
	err := windows.CryptUnprotectData(newBlob(blob), nil, newBlob(dpapiEntropy), 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, &out)
	if err != nil {
		return nil, fmt.Errorf("%w: CryptUnprotectData failed: %v", ErrUnprotect, err)
	}
	return takeBlob(&out), nil
}

func newBlob(data []byte) *windows.DataBlob {
	if len(data) == 0 {
		return &windows.DataBlob{}
	}
	return &windows.DataBlob{Size: uint32(len(data)), Data: &data[0]}
}

// takeBlob copies a DPAPI output buffer into Go memory and frees it.
func takeBlob(b *windows.DataBlob) []byte {
	if b.Data == nil {
		return nil
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(b.Data)))
	out := make([]byte, b.Size)
	copy(out, unsafe.Slice(b.Data, b.Size))
	return out
}
