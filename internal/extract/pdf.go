// Package extract turns raw PDF bytes into page-indexed plain text.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"

	"server/internal/domain"
)

// Page is one physical page of the source document. Err is non-empty when the
// page could not be parsed; Text then holds a placeholder so downstream page
// numbering stays aligned with the source.
type Page struct {
	Number int
	Text   string
	Err    string
}

// Document is the extraction result for one PDF.
type Document struct {
	Pages     []Page
	PageCount int
	// TotalChars counts characters recovered from readable pages only;
	// placeholder text does not contribute.
	TotalChars int
}

// Text assembles the labeled page texts into a single prompt-ready string.
func (d *Document) Text() string {
	var b strings.Builder
	for _, p := range d.Pages {
		fmt.Fprintf(&b, "--- Page %d ---\n", p.Number)
		b.WriteString(p.Text)
		if !strings.HasSuffix(p.Text, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Extractor parses PDFs with per-page failure recovery.
type Extractor struct{}

// NewExtractor returns a PDF text extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses the document and returns page-indexed text. A page-level
// parse failure contributes a placeholder segment and extraction continues;
// the whole call fails only when the document cannot be opened, has zero
// pages, or yields zero extracted characters across all pages.
func (e *Extractor) Extract(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: document is empty (0 bytes)", domain.ErrExtraction)
	}

	reader, err := openReader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable document: %v", domain.ErrExtraction, err)
	}

	numPages := reader.NumPage()
	if numPages <= 0 {
		return nil, fmt.Errorf("%w: document has no pages", domain.ErrExtraction)
	}

	doc := &Document{PageCount: numPages}
	for i := 1; i <= numPages; i++ {
		text, pageErr := pageText(reader, i)
		page := Page{Number: i}
		if pageErr != nil {
			page.Err = pageErr.Error()
			page.Text = fmt.Sprintf("[page %d could not be read: %v]", i, pageErr)
		} else {
			page.Text = norm.NFC.String(text)
			doc.TotalChars += len(page.Text)
		}
		doc.Pages = append(doc.Pages, page)
	}

	if doc.TotalChars == 0 {
		return nil, fmt.Errorf("%w: no text could be extracted from %d page(s)", domain.ErrExtraction, numPages)
	}
	return doc, nil
}

func openReader(data []byte) (r *pdf.Reader, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func pageText(reader *pdf.Reader, num int) (text string, err error) {
	// Content-stream decoding panics on corrupt pages; recover so one bad
	// page does not take the rest of the document with it.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("page parse: %v", rec)
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is missing", num)
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return text, nil
}
