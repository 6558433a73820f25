//go:build !windows

package vault

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// DefaultProtector returns the per-user protector for this platform: a key
// file under the user config directory bound to uid, username and machine id.
func DefaultProtector() (Protector, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config directory: %w", err)
	}
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}
	binding := strings.Join([]string{u.Uid, u.Username, machineID()}, "\x00")
	return NewKeyFileProtector(filepath.Join(configDir, "uitest", "vault.key"), []byte(binding)), nil
}

func machineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id
			}
		}
	}
	host, _ := os.Hostname()
	return host
}
