package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxSuffix bounds the numbered-name search in UniquePath.
const maxSuffix = 10000

// ErrNoFreeName is returned when every numbered variant of a name is taken.
var ErrNoFreeName = errors.New("no free file name")

// UniquePath returns dir/name when it does not exist yet, otherwise the first
// free "stem (n).ext" variant.
func UniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
		return candidate, nil
	} else if err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; n < maxSuffix; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w for %s in %s", ErrNoFreeName, name, dir)
}

// WriteExclusive streams r into a new file at path. It fails with an
// os.ErrExist error when path already exists and removes partial output on
// any other failure.
func WriteExclusive(path string, r io.Reader, mode os.FileMode) (int64, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return written, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return written, err
	}
	return written, nil
}
