package util

import (
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/zeebo/xxh3"
)

// ContentHash returns the xxh3-128 digest of a file's content and its size.
// The ledger uses it to recognise files that were already loaded.
func ContentHash(fs afero.Fs, path string) (string, int64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := xxh3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash file: %w", err)
	}

	sum := h.Sum128().Bytes()
	return fmt.Sprintf("%x", sum[:]), n, nil
}
