package vault

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// StorageState is the browser context snapshot produced by the driver:
// cookies plus per-origin local storage. The vault encrypts the raw bytes
// and only decodes them to reject garbage.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Cookie is one cookie entry of a storage state.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Origin holds the local storage entries of one origin.
type Origin struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

// NameValue is a local storage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var errNotStorageState = errors.New("document is not a storage state object")

// ParseStorageState decodes data as a storage state document. The top level
// must be a JSON object.
func ParseStorageState(data []byte) (*StorageState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotStorageState, err)
	}
	if raw == nil {
		return nil, errNotStorageState
	}

	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode storage state: %w", err)
	}
	return &state, nil
}
