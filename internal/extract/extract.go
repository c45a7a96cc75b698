// Package extract pulls plain text out of downloaded PDF artifacts.
package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Text extracts the plain text of the first maxPages pages of the PDF at
// path. maxPages <= 0 means all pages. A corrupt or unreadable artifact
// yields an error; the caller drops the article.
func Text(path string, maxPages int) (text string, err error) {
	// The pdf library panics on some malformed files; turn that into an
	// extraction error instead of killing the run.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract: malformed pdf %s: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	if maxPages <= 0 || maxPages > total {
		maxPages = total
	}

	var sb strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract: page %d of %s: %w", i, path, err)
		}
		sb.WriteString(content)
		sb.WriteByte('\n')
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("extract: no text in first %d pages of %s", maxPages, path)
	}
	return out, nil
}
