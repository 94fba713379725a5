// Package resource defines resource identity and the value types shared
// across the build engine: canonicalized ids, the closed attribute-value
// grammar, and the tagged-variant resource holder.
package resource

import "path/filepath"

// ID identifies a resource by its absolute, canonicalized path.
type ID string

// Canonicalize resolves path to an absolute, symlink-free form. Symlink
// resolution failures (the path does not exist, a component is not
// traversable, ...) fall back to the absolute path rather than erroring.
func Canonicalize(path string) (ID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return ID(resolved), nil
	}
	return ID(abs), nil
}
