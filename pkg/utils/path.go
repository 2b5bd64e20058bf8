// Package utils holds small cross-cutting helpers shared by more than
// one package, with no domain knowledge of their own.
package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// JoinWithinBase joins base with elements the same way filepath.Join
// does, then rejects the result if it would resolve outside base —
// the check an OS-backed Resolver needs before handing a caller's
// path components to os.Open, since ".." segments smuggled in through
// a VFS path string must not escape the resolver's root.
func JoinWithinBase(base string, elements ...string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}
	cleanBase := filepath.Clean(base)
	fullPath := filepath.Join(append([]string{cleanBase}, elements...)...)

	if !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) && fullPath != cleanBase {
		return "", fmt.Errorf("path escapes base directory")
	}
	return fullPath, nil
}
