package organizer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ewasince/photo-compresser/internal/extractor"
	"github.com/Ewasince/photo-compresser/internal/fsutil"
)

var (
	// ErrOutputAlreadyExists is returned when the output root is present
	// before a run starts.
	ErrOutputAlreadyExists = errors.New("output directory already exists")
	// ErrInvalidInputRoot is returned when the input root is missing or not
	// a directory.
	ErrInvalidInputRoot = errors.New("invalid input directory")
)

// FileKind classifies a discovered file.
type FileKind int

const (
	KindUnsupported FileKind = iota
	KindImage
)

// String returns the string representation of the FileKind.
func (k FileKind) String() string {
	if k == KindImage {
		return "image"
	}
	return "unsupported"
}

// FileEntry is a regular file found under the input root.
type FileEntry struct {
	Path      string
	RelPath   string
	Size      int64
	ModTime   time.Time
	Extension string
	Kind      FileKind
}

// UnsupportedPolicy decides what happens to files that are not compressed.
type UnsupportedPolicy string

const (
	// PolicyCopy mirrors unsupported files into the output tree.
	PolicyCopy UnsupportedPolicy = "copy"
	// PolicyRedirect mirrors them into a separate tree.
	PolicyRedirect UnsupportedPolicy = "redirect"
	// PolicySkip leaves them out.
	PolicySkip UnsupportedPolicy = "skip"
)

// ParsePolicy validates a policy name. Empty means copy.
func ParsePolicy(s string) (UnsupportedPolicy, error) {
	switch p := UnsupportedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyCopy, nil
	case PolicyCopy, PolicyRedirect, PolicySkip:
		return p, nil
	}
	return "", fmt.Errorf("invalid unsupported file policy: %s (valid: copy, redirect, skip)", s)
}

// CheckInputRoot verifies that root is an existing directory.
func CheckInputRoot(root string) error {
	if root == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidInputRoot)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInputRoot, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidInputRoot, root)
	}
	return nil
}

// CheckOutputRoot fails when root already exists.
func CheckOutputRoot(root string) error {
	if root == "" {
		return errors.New("output directory is required")
	}
	if fsutil.Exists(root) {
		return fmt.Errorf("%w: %s", ErrOutputAlreadyExists, root)
	}
	return nil
}

// Walker enumerates and classifies files under an input root.
type Walker struct {
	logger  *logrus.Logger
	isImage func(ext string) bool
}

// NewWalker returns a Walker that treats the extractor's supported
// extensions as images.
func NewWalker(logger *logrus.Logger) *Walker {
	return &Walker{logger: logger, isImage: extractor.IsSupportedExtension}
}

// Walk returns every regular file under root in lexical order. Unreadable
// entries are logged and skipped.
func (w *Walker) Walk(root string) ([]FileEntry, error) {
	if err := CheckInputRoot(root); err != nil {
		return nil, err
	}

	var files []FileEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warnf("Error accessing path %s: %v", path, err)
			return nil
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		entry := FileEntry{
			Path:      path,
			RelPath:   rel,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Extension: ext,
			Kind:      KindUnsupported,
		}
		if w.isImage(ext) {
			entry.Kind = KindImage
		}
		files = append(files, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	w.logger.WithFields(logrus.Fields{
		"root":  root,
		"files": len(files),
	}).Debug("Discovered files")
	return files, nil
}

// Split separates images from unsupported files, keeping order.
func Split(files []FileEntry) (images, unsupported []FileEntry) {
	for _, f := range files {
		if f.Kind == KindImage {
			images = append(images, f)
		} else {
			unsupported = append(unsupported, f)
		}
	}
	return images, unsupported
}

// DefaultOutputRoot names an output directory next to input,
// "<input>_compressed_YYYY.MM.DD HHMMSS", suffixed until it does not exist.
func DefaultOutputRoot(input string, now time.Time) string {
	clean := filepath.Clean(input)
	return firstFree(fmt.Sprintf("%s_compressed_%s", clean, now.Format("2006.01.02 150405")))
}

// DefaultUnsupportedRoot names the redirect tree for an output root.
func DefaultUnsupportedRoot(output string) string {
	return firstFree(filepath.Clean(output) + "_not_proceed")
}

func firstFree(base string) string {
	if !fsutil.Exists(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !fsutil.Exists(candidate) {
			return candidate
		}
	}
}
