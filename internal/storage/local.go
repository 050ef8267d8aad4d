// Package storage keeps uploaded and generated files under the media root.
// References handed out are slash-separated paths relative to that root.
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrInvalidRef rejects references that escape the media root.
	ErrInvalidRef = errors.New("storage: invalid reference")
	// ErrSourceMissing reports that a file to import does not exist.
	ErrSourceMissing = errors.New("storage: source file missing")
	// ErrNotFound reports a missing stored file.
	ErrNotFound = errors.New("storage: file not found")
)

// Local stores files on the local filesystem.
type Local struct {
	root string
}

// NewLocal prepares the media root.
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: media root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create media root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute media root.
func (l *Local) Root() string { return l.root }

// Path resolves a reference to an absolute path inside the media root.
func (l *Local) Path(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "\\") || path.IsAbs(ref) {
		return "", ErrInvalidRef
	}
	clean := path.Clean(ref)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidRef
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Save streams r into dir under a name derived from the BLAKE2b-256 digest
// of its content. Saving identical content twice yields the same reference.
func (l *Local) Save(dir, ext string, r io.Reader) (string, error) {
	target, err := l.Path(path.Join(dir, "x"))
	if err != nil {
		return "", err
	}
	targetDir := filepath.Dir(target)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(targetDir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	h, err := blake2b.New256(nil)
	if err != nil {
		tmp.Close()
		return "", err
	}
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	name := hex.EncodeToString(h.Sum(nil)) + normaliseExt(ext)
	ref := path.Join(dir, name)
	final, err := l.Path(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(final); err == nil {
		return ref, nil
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", err
	}
	return ref, nil
}

// ImportLocal copies an absolute filesystem path into content-addressed
// storage under dir. The source is never referenced in place.
func (l *Local) ImportLocal(dir, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" || !filepath.IsAbs(src) {
		return "", fmt.Errorf("%w: %q is not an absolute path", ErrSourceMissing, src)
	}
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("storage: open %s: %w", src, err)
	}
	defer f.Close()
	return l.Save(dir, filepath.Ext(src), f)
}

// WriteFile writes data at ref, replacing any existing file.
func (l *Local) WriteFile(ref string, data []byte) error {
	p, err := l.Path(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// ReadFile returns the content stored at ref.
func (l *Local) ReadFile(ref string) ([]byte, error) {
	p, err := l.Path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return data, err
}

// Open opens the file stored at ref.
func (l *Local) Open(ref string) (*os.File, error) {
	p, err := l.Path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return f, err
}

// Remove deletes the file at ref. Missing files are ignored.
func (l *Local) Remove(ref string) error {
	p, err := l.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func normaliseExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
