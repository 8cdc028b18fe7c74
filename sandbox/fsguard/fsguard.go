// Package fsguard implements the sandbox's path capability guard: it
// resolves a caller-supplied path against a root directory and rejects
// anything that would escape it, including paths that don't exist yet.
package fsguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned (wrapped) when a requested path resolves
// outside root.
var ErrPathTraversal = errors.New("path escapes sandbox root")

// ValidatePath resolves requested against root and returns the resolved
// absolute path. requested may be relative or absolute; it is always
// treated as relative to root.
//
// If the resolved path exists, it is canonicalized (symlinks resolved) before
// the containment check, so a symlink inside root that points outside it is
// still caught. If it does not exist, the path is normalized component-wise
// (".." pops a segment, "." is dropped) without touching the filesystem, so
// callers can validate the target of a future write or mkdir.
func ValidatePath(root, requested string) (string, error) {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("fsguard: resolving root %q: %w", root, err)
	}

	full := filepath.Join(resolvedRoot, requested)

	var resolved string

	if _, statErr := os.Lstat(full); statErr == nil {
		resolved, err = filepath.EvalSymlinks(full)
		if err != nil {
			return "", fmt.Errorf("fsguard: resolving %q: %w", requested, err)
		}
	} else {
		resolved = normalize(full)
	}

	if !withinRoot(resolvedRoot, resolved) {
		return "", fmt.Errorf("fsguard: %q escapes sandbox root %q: %w", requested, resolvedRoot, ErrPathTraversal)
	}

	return resolved, nil
}

func withinRoot(root, resolved string) bool {
	if resolved == root {
		return true
	}

	return strings.HasPrefix(resolved, root+string(filepath.Separator))
}

// normalize collapses "." and ".." components without consulting the
// filesystem, mirroring filepath.Clean but popping a segment for each ".."
// rather than leaving a leading "../" when the path would climb above an
// empty result (which can't happen here since full is always root-joined and
// therefore absolute).
func normalize(path string) string {
	volume := filepath.VolumeName(path)
	rest := path[len(volume):]

	isAbs := strings.HasPrefix(rest, string(filepath.Separator))

	parts := strings.Split(rest, string(filepath.Separator))
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}

	joined := strings.Join(out, string(filepath.Separator))

	if isAbs {
		return volume + string(filepath.Separator) + joined
	}

	return volume + joined
}
