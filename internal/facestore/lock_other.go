//go:build !unix

package facestore

import (
	"fmt"
	"os"
)

// lockFile only creates the lock file; advisory locking is unix-only.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f, nil
}

func unlockFile(f *os.File) error {
	return f.Close()
}
