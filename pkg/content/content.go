// Package content turns raw text and document files into the content parts
// sent to the LLM backend.
package content

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrNoSource is returned when neither text nor files are supplied.
var ErrNoSource = errors.New("no content source provided")

// maxParallelReads bounds concurrent file reads in Normalize.
const maxParallelReads = 4

// Part is one piece of document content: plain text or inline binary data.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// IsText reports whether p is a plain-text part.
func (p Part) IsText() bool {
	return p.Data == nil
}

// Size returns the payload size of p in bytes.
func (p Part) Size() int {
	if p.IsText() {
		return len(p.Text)
	}
	return len(p.Data)
}

// Source is a document to normalize: pasted text, one or more files, or both.
type Source struct {
	Text  string
	Files []string
	// Name overrides the display name used in prompts.
	Name string
}

// Empty reports whether s carries no usable input.
func (s Source) Empty() bool {
	return strings.TrimSpace(s.Text) == "" && len(s.Files) == 0
}

// Normalize converts src into content parts. Text comes first, followed by
// one part per file in the order given. Any unreadable or empty file fails
// the whole call.
func Normalize(ctx context.Context, src Source) ([]Part, error) {
	if src.Empty() {
		return nil, ErrNoSource
	}

	var parts []Part
	if text := strings.TrimSpace(src.Text); text != "" {
		parts = append(parts, Part{Text: text, MIMEType: "text/plain"})
	}

	fileParts := make([]Part, len(src.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, path := range src.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := FromFile(path)
			if err != nil {
				return err
			}
			fileParts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return append(parts, fileParts...), nil
}

// FromFile reads path into a single part.
func FromFile(path string) (Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Part{}, fmt.Errorf("read %s: %w", path, err)
	}
	p, err := FromBytes(filepath.Base(path), data)
	if err != nil {
		return Part{}, fmt.Errorf("read %s: %w", path, err)
	}
	return p, nil
}

// FromBytes builds a part from named file contents. Text formats become text
// parts; everything else stays inline binary with its detected MIME type.
func FromBytes(name string, data []byte) (Part, error) {
	if len(data) == 0 {
		return Part{}, errors.New("file is empty")
	}
	mt := DetectMIME(name, data)
	if isTextMIME(mt) {
		return Part{Text: string(data), MIMEType: mt}, nil
	}
	return Part{Data: data, MIMEType: mt}, nil
}

// DetectMIME resolves the MIME type of a file from its extension, falling
// back to content sniffing.
func DetectMIME(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return stripParams(mt)
	}
	return stripParams(http.DetectContentType(data))
}

func stripParams(mt string) string {
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	return mt
}

func isTextMIME(mt string) bool {
	switch mt {
	case "text/plain", "text/markdown", "text/csv", "text/html":
		return true
	}
	return false
}

// DisplayName returns the document name used in prompts and logs.
func DisplayName(src Source) string {
	if src.Name != "" {
		return src.Name
	}
	switch len(src.Files) {
	case 0:
		return "Pasted Text"
	case 1:
		return filepath.Base(src.Files[0])
	default:
		return fmt.Sprintf("%d files", len(src.Files))
	}
}

// Size returns the total payload size of parts in bytes.
func Size(parts []Part) int {
	n := 0
	for _, p := range parts {
		n += p.Size()
	}
	return n
}
