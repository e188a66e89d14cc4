// Package input provides helpers for reading flag values from stdin and files
// (@file syntax).
package input

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ExpandValue resolves a free-text flag value: "-" reads stdin, "@path"
// reads the named file, anything else passes through unchanged. Expanded
// content is trimmed of surrounding whitespace.
func ExpandValue(v string) (string, error) {
	switch {
	case v == "-":
		return readAll(os.Stdin, "stdin")
	case strings.HasPrefix(v, "@"):
		path := strings.TrimPrefix(v, "@")
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		defer f.Close()
		return readAll(f, path)
	default:
		return v, nil
	}
}

func readAll(r io.Reader, name string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
