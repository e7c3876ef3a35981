package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideSkill is returned when a reference escapes the skill directory.
type ErrOutsideSkill struct {
	Ref string
}

func (e *ErrOutsideSkill) Error() string {
	return fmt.Sprintf("reference %q escapes the skill directory", e.Ref)
}

// ResolveReference resolves a relative reference from a skill body against
// the skill's directory. References that escape the directory (absolute
// paths, ".." traversal, symlinks pointing outside) are refused with
// ErrOutsideSkill rather than surfaced as filesystem errors.
func (s *Skill) ResolveReference(ref string) (string, error) {
	if ref == "" {
		return "", &ErrOutsideSkill{Ref: ref}
	}
	if filepath.IsAbs(ref) {
		return "", &ErrOutsideSkill{Ref: ref}
	}

	root, err := filepath.Abs(s.Path)
	if err != nil {
		return "", fmt.Errorf("resolve skill path: %w", err)
	}

	joined := filepath.Clean(filepath.Join(root, ref))
	if !isDescendant(root, joined) {
		return "", &ErrOutsideSkill{Ref: ref}
	}

	// The lexical check above misses symlinks inside the skill directory
	// that point outside it. Compare the physical paths too.
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve skill path: %w", err)
	}
	real, err := resolveExisting(joined)
	if err != nil {
		return "", fmt.Errorf("resolve reference: %w", err)
	}
	if !isDescendant(realRoot, real) {
		return "", &ErrOutsideSkill{Ref: ref}
	}

	return joined, nil
}

func isDescendant(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of
// path and reattaches the non-existing remainder, so references to files
// that are not created yet can still be checked.
func resolveExisting(path string) (string, error) {
	suffix := ""
	for cur := path; ; {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}
