package facestore

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// writeAtomically streams the encoded store into a temp file next to path
// and renames it over path once it is fsynced. A crash mid-write leaves
// the previous file untouched.
func writeAtomically(path string, dim int, records []Record, compress bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	pf, err := renameio.TempFile(dir, path)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer pf.Cleanup() //nolint:errcheck // no-op after a successful replace

	buf := bufio.NewWriterSize(pf, 256*1024)
	if err := encodeStore(buf, dim, records, compress); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flushing store: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

// readFile returns the raw store bytes. exists is false on first run.
func readFile(path string) (data []byte, exists bool, err error) {
	data, err = os.ReadFile(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("reading store file: %w", err)
	}
	return data, true, nil
}
