package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveIsContentAddressed(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	a, err := l.Save("uploads", ".PDF", strings.NewReader("same bytes"))
	require.NoError(t, err)
	b, err := l.Save("uploads", "pdf", strings.NewReader("same bytes"))
	require.NoError(t, err)
	c, err := l.Save("uploads", ".pdf", strings.NewReader("other bytes"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "uploads/"))
	assert.True(t, strings.HasSuffix(a, ".pdf"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(a, "uploads/"), ".pdf"), 64)

	data, err := l.ReadFile(a)
	require.NoError(t, err)
	assert.Equal(t, "same bytes", string(data))

	entries, err := os.ReadDir(filepath.Join(l.Root(), "uploads"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPathRejectsEscapes(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	for _, ref := range []string{"", "../etc/passwd", "/etc/passwd", "a/../../b", `a\b`, ".."} {
		_, err := l.Path(ref)
		assert.ErrorIs(t, err, ErrInvalidRef, ref)
	}
	p, err := l.Path("images/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.Root(), "images", "x.jpg"), p)
}

func TestImportLocal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "po.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4"), 0o644))

	ref, err := l.ImportLocal("confirmation_docs", src)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "confirmation_docs/"))
	assert.FileExists(t, src)

	_, err = l.ImportLocal("confirmation_docs", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, ErrSourceMissing)
	_, err = l.ImportLocal("confirmation_docs", "relative/po.pdf")
	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestWriteReadRemove(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, l.WriteFile("confirmations/a.pdf", []byte("one")))
	require.NoError(t, l.WriteFile("confirmations/a.pdf", []byte("two")))
	data, err := l.ReadFile("confirmations/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, l.Remove("confirmations/a.pdf"))
	require.NoError(t, l.Remove("confirmations/a.pdf"))
	_, err = l.ReadFile("confirmations/a.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}
