package security

import (
	"path/filepath"
	"strings"

	"github.com/flemzord/snapkeep/internal/errdefs"
)

// ResolveWithin joins rel onto root and returns the absolute result. It
// fails with errdefs.ErrSecurity when the result, after cleaning and
// best-effort symlink resolution of root, lies outside root. Absolute rel
// values are rejected outright.
func ResolveWithin(root, rel string) (string, error) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", errdefs.Security(rel, root)
	}

	base, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", errdefs.Storage("resolve root", err)
	}
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		base = resolved
	}

	full := filepath.Join(base, filepath.FromSlash(rel))
	if !within(base, full) {
		return "", errdefs.Security(rel, root)
	}

	// A symlink inside the tree may still point elsewhere.
	if resolved, err := filepath.EvalSymlinks(full); err == nil && !within(base, resolved) {
		return "", errdefs.Security(rel, root)
	}
	return full, nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
