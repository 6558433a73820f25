package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic writes data through a temporary file in the same directory
// and renames it over filename, so readers never observe a partial blob.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	var success bool
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := os.Chmod(tempPath, perm); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %q: %w", tempPath, err)
	}

	if err := replaceFile(tempPath, filename); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filename, err)
	}
	success = true
	return nil
}

// removeIfExists deletes path, treating a missing file as success.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
