// Package overlay tracks filesystem changes made to a sandbox's work
// directory by comparing a content-hashed snapshot taken at sandbox creation
// against the directory's current state.
package overlay

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// ChangeKind classifies a detected filesystem change.
type ChangeKind int

const (
	// Created means the path did not exist in the snapshot but exists now.
	Created ChangeKind = iota
	// Modified means the path's content hash changed since the snapshot.
	Modified
	// Deleted means the path existed in the snapshot but no longer exists.
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change describes one detected filesystem difference, with Path relative to
// the overlay's root.
type Change struct {
	Path string
	Kind ChangeKind
}

// Overlay snapshots a directory tree's file contents and can later report
// what changed.
type Overlay struct {
	root     string
	snapshot map[string][sha256.Size]byte
}

// New snapshots root and returns an Overlay ready to diff against it.
func New(root string) (*Overlay, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("overlay: resolving root %q: %w", root, err)
	}

	snapshot, err := snapshotDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("overlay: snapshotting %q: %w", resolved, err)
	}

	return &Overlay{root: resolved, snapshot: snapshot}, nil
}

// Diff compares the current state of the overlay's root against the
// snapshot taken at construction and returns changes sorted by path.
func (o *Overlay) Diff() ([]Change, error) {
	current, err := snapshotDir(o.root)
	if err != nil {
		return nil, fmt.Errorf("overlay: snapshotting %q: %w", o.root, err)
	}

	var changes []Change

	for path, hash := range current {
		oldHash, existed := o.snapshot[path]

		switch {
		case !existed:
			changes = append(changes, Change{Path: path, Kind: Created})
		case oldHash != hash:
			changes = append(changes, Change{Path: path, Kind: Modified})
		}
	}

	for path := range o.snapshot {
		if _, stillExists := current[path]; !stillExists {
			changes = append(changes, Change{Path: path, Kind: Deleted})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	return changes, nil
}

func snapshotDir(root string) (map[string][sha256.Size]byte, error) {
	snapshot := make(map[string][sha256.Size]byte)

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot, nil
		}

		return nil, err
	}

	if !info.IsDir() {
		return snapshot, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		snapshot[filepath.ToSlash(rel)] = sha256.Sum256(content)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}
