package manifest

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// NormalizePath converts a path relative to an asset root into deploy space:
// forward slashes, no leading "./" or "/".
func NormalizePath(relativePath string) (string, error) {
	normalized := filepath.ToSlash(relativePath)
	normalized = strings.TrimPrefix(path.Clean("/"+normalized), "/")

	if len(normalized) == 0 {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	if strings.ContainsAny(normalized, "#?") {
		return "", fmt.Errorf("%w: %q: deployed filenames cannot contain # or ? characters", ErrInvalidPath, normalized)
	}

	return normalized, nil
}
