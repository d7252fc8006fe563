package content

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestNormalizeNoSource(t *testing.T) {
	_, err := Normalize(context.Background(), Source{Text: "   "})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestNormalizeText(t *testing.T) {
	parts, err := Normalize(context.Background(), Source{Text: "  heart failure notes \n"})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.True(t, parts[0].IsText())
	assert.Equal(t, "heart failure notes", parts[0].Text)
}

func TestNormalizeFilesKeepOrder(t *testing.T) {
	dir := t.TempDir()
	pdf := writeFile(t, dir, "lecture.pdf", []byte("%PDF-1.4 fake"))
	md := writeFile(t, dir, "notes.md", []byte("# Notes"))
	png := writeFile(t, dir, "figure.png", []byte("\x89PNG\r\n\x1a\nxxxx"))

	parts, err := Normalize(context.Background(), Source{Text: "intro", Files: []string{pdf, md, png}})
	require.NoError(t, err)
	require.Len(t, parts, 4)

	assert.Equal(t, "intro", parts[0].Text)
	assert.False(t, parts[1].IsText())
	assert.Equal(t, "application/pdf", parts[1].MIMEType)
	assert.True(t, parts[2].IsText())
	assert.Equal(t, "text/markdown", parts[2].MIMEType)
	assert.Equal(t, "image/png", parts[3].MIMEType)
}

func TestNormalizeMissingFile(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "a.txt", []byte("fine"))
	missing := filepath.Join(dir, "missing.pdf")

	_, err := Normalize(context.Background(), Source{Files: []string{ok, missing}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.pdf")
}

func TestNormalizeEmptyFile(t *testing.T) {
	empty := writeFile(t, t.TempDir(), "empty.pdf", nil)
	_, err := Normalize(context.Background(), Source{Files: []string{empty}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty.pdf")
}

func TestDetectMIMESniffs(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMIME("noext", []byte("%PDF-1.7")))
	assert.Equal(t, "text/plain", DetectMIME("noext", []byte("plain words")))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Pasted Text", DisplayName(Source{Text: "x"}))
	assert.Equal(t, "a.pdf", DisplayName(Source{Files: []string{"/tmp/a.pdf"}}))
	assert.Equal(t, "2 files", DisplayName(Source{Files: []string{"a", "b"}}))
	assert.Equal(t, "Custom", DisplayName(Source{Name: "Custom", Files: []string{"a"}}))
}

func TestSize(t *testing.T) {
	assert.Equal(t, 7, Size([]Part{{Text: "abc"}, {Data: []byte("defg")}}))
}
