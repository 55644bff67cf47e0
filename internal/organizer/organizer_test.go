package organizer

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func touch(t *testing.T, root string, rel string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(rel), 0644))
}

func TestWalkClassifies(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a.jpg")
	touch(t, root, "sub/B.PNG")
	touch(t, root, "sub/notes.txt")
	touch(t, root, "sub/deep/c.webp")
	touch(t, root, "raw.heic")

	files, err := NewWalker(quietLogger()).Walk(root)
	require.NoError(t, err)
	require.Len(t, files, 5)

	kinds := make(map[string]FileKind)
	for _, f := range files {
		kinds[filepath.ToSlash(f.RelPath)] = f.Kind
		assert.Equal(t, filepath.Join(root, f.RelPath), f.Path)
	}
	assert.Equal(t, map[string]FileKind{
		"a.jpg":           KindImage,
		"sub/B.PNG":       KindImage,
		"sub/notes.txt":   KindUnsupported,
		"sub/deep/c.webp": KindImage,
		"raw.heic":        KindUnsupported,
	}, kinds)

	images, unsupported := Split(files)
	assert.Len(t, images, 3)
	assert.Len(t, unsupported, 2)
}

func TestWalkInvalidRoot(t *testing.T) {
	_, err := NewWalker(quietLogger()).Walk(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, ErrInvalidInputRoot))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	assert.True(t, errors.Is(CheckInputRoot(file), ErrInvalidInputRoot))
}

func TestCheckOutputRoot(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, errors.Is(CheckOutputRoot(dir), ErrOutputAlreadyExists))
	assert.NoError(t, CheckOutputRoot(filepath.Join(dir, "fresh")))
}

func TestImageDestinationPreserveStructure(t *testing.T) {
	n := NewNamer(Layout{InputRoot: "/in", OutputRoot: "/out", PreserveStructure: true})

	got := n.ImageDestination(FileEntry{RelPath: filepath.Join("2020", "x.png")}, ".jpg")
	assert.Equal(t, filepath.Join("/out", "2020", "x.jpg"), got)

	// Same stem, different source extension in the same folder.
	got = n.ImageDestination(FileEntry{RelPath: filepath.Join("2020", "x.jpeg")}, ".jpg")
	assert.Equal(t, filepath.Join("/out", "2020", "x_1.jpg"), got)
}

func TestImageDestinationFlatteningNeverCollides(t *testing.T) {
	n := NewNamer(Layout{OutputRoot: "/out"})

	first := n.ImageDestination(FileEntry{RelPath: filepath.Join("a", "img.jpg")}, ".webp")
	second := n.ImageDestination(FileEntry{RelPath: filepath.Join("b", "img.jpg")}, ".webp")
	third := n.ImageDestination(FileEntry{RelPath: filepath.Join("c", "IMG.jpg")}, ".webp")

	assert.Equal(t, filepath.Join("/out", "img.webp"), first)
	assert.Equal(t, filepath.Join("/out", "img_1.webp"), second)
	assert.Equal(t, filepath.Join("/out", "IMG_2.webp"), third)
	assert.True(t, n.Claimed(filepath.Join("/out", "img_1.webp")))
}

func TestSuffixSkipsExistingSuffixedNames(t *testing.T) {
	n := NewNamer(Layout{OutputRoot: "/out"})

	n.ImageDestination(FileEntry{RelPath: "img_1.jpg"}, ".jpg")
	n.ImageDestination(FileEntry{RelPath: "img.jpg"}, ".jpg")
	got := n.ImageDestination(FileEntry{RelPath: filepath.Join("x", "img.jpg")}, ".jpg")

	assert.Equal(t, filepath.Join("/out", "img_2.jpg"), got)
}

func TestCopyDestination(t *testing.T) {
	entry := FileEntry{RelPath: filepath.Join("docs", "readme.txt")}

	tests := []struct {
		name   string
		layout Layout
		want   string
		ok     bool
	}{
		{"copy mirrors", Layout{OutputRoot: "/out", Policy: PolicyCopy}, filepath.Join("/out", "docs", "readme.txt"), true},
		{"redirect", Layout{OutputRoot: "/out", Policy: PolicyRedirect, UnsupportedRoot: "/other"}, filepath.Join("/other", "docs", "readme.txt"), true},
		{"skip", Layout{OutputRoot: "/out", Policy: PolicySkip}, "", false},
		{"flattening still mirrors", Layout{OutputRoot: "/out", Policy: PolicyCopy, PreserveStructure: false}, filepath.Join("/out", "docs", "readme.txt"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewNamer(tt.layout).CopyDestination(entry)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyCopy, p)

	p, err = ParsePolicy("Redirect")
	require.NoError(t, err)
	assert.Equal(t, PolicyRedirect, p)

	_, err = ParsePolicy("delete")
	assert.Error(t, err)
}

func TestDefaultRoots(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "photos")
	now := time.Date(2024, 3, 5, 7, 8, 9, 0, time.Local)

	want := input + "_compressed_2024.03.05 070809"
	assert.Equal(t, want, DefaultOutputRoot(input, now))

	require.NoError(t, os.Mkdir(want, 0755))
	assert.Equal(t, want+"_1", DefaultOutputRoot(input, now))

	assert.Equal(t, want+"_not_proceed", DefaultUnsupportedRoot(want))
}
