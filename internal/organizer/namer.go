package organizer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Layout describes where outputs go.
type Layout struct {
	InputRoot         string
	OutputRoot        string
	PreserveStructure bool
	Policy            UnsupportedPolicy
	// UnsupportedRoot is the redirect target for PolicyRedirect.
	UnsupportedRoot string
}

// Namer assigns collision-free output paths. It keeps the set of paths
// already claimed in this run and is not safe for concurrent use: naming
// happens before any work is dispatched.
type Namer struct {
	layout  Layout
	claimed map[string]bool
}

// NewNamer returns a Namer for the layout.
func NewNamer(layout Layout) *Namer {
	return &Namer{layout: layout, claimed: make(map[string]bool)}
}

// ImageDestination returns the output path for an image encoded with the
// given extension. Structure-preserving mode mirrors the relative path,
// flattening mode keeps only the base name.
func (n *Namer) ImageDestination(entry FileEntry, ext string) string {
	rel := entry.RelPath
	if !n.layout.PreserveStructure {
		rel = filepath.Base(rel)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + ext
	return n.claim(filepath.Join(n.layout.OutputRoot, rel))
}

// CopyDestination returns where a file that is copied rather than encoded
// goes, and false when the policy skips it.
func (n *Namer) CopyDestination(entry FileEntry) (string, bool) {
	var root string
	switch n.layout.Policy {
	case PolicySkip:
		return "", false
	case PolicyRedirect:
		root = n.layout.UnsupportedRoot
	default:
		root = n.layout.OutputRoot
	}
	if root == "" {
		return "", false
	}
	return n.claim(filepath.Join(root, entry.RelPath)), true
}

// Claimed reports whether path was handed out already.
func (n *Namer) Claimed(path string) bool {
	return n.claimed[claimKey(path)]
}

// claim returns path, or the first "name_N.ext" variant not claimed yet.
func (n *Namer) claim(path string) string {
	candidate := path
	if n.claimed[claimKey(candidate)] {
		dir := filepath.Dir(path)
		name := filepath.Base(path)
		ext := filepath.Ext(name)
		nameWithoutExt := strings.TrimSuffix(name, ext)

		for counter := 1; ; counter++ {
			candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", nameWithoutExt, counter, ext))
			if !n.claimed[claimKey(candidate)] {
				break
			}
		}
	}
	n.claimed[claimKey(candidate)] = true
	return candidate
}

// Paths are compared case-insensitively so outputs stay distinct on
// case-insensitive filesystems.
func claimKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
