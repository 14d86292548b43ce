package extract

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"server/internal/domain"
)

// buildPDF assembles a minimal but valid PDF with one page per entry in
// pageTexts, computing the cross-reference offsets from the actual buffer
// positions.
func buildPDF(t *testing.T, pageTexts []string) []byte {
	t.Helper()

	var b strings.Builder
	offsets := map[int]int{}
	writeObj := func(num int, body string) {
		offsets[num] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	b.WriteString("%PDF-1.4\n")

	numPages := len(pageTexts)
	fontObj := 3 + 2*numPages

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, 0, numPages)
	for i := 0; i < numPages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+2*i))
	}
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), numPages))

	for i, text := range pageTexts {
		pageObj := 3 + 2*i
		contentObj := pageObj + 1
		writeObj(pageObj, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>",
			contentObj, fontObj))
		var stream string
		if text != "" {
			stream = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		}
		writeObj(contentObj, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	writeObj(fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	xrefOffset := b.Len()
	total := fontObj + 1
	fmt.Fprintf(&b, "xref\n0 %d\n", total)
	b.WriteString("0000000000 65535 f \n")
	for num := 1; num < total; num++ {
		fmt.Fprintf(&b, "%010d %05d n \n", offsets[num], 0)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total, xrefOffset)

	return []byte(b.String())
}

func TestExtractSinglePage(t *testing.T) {
	data := buildPDF(t, []string{"Hello World"})

	doc, err := NewExtractor().Extract(data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if doc.PageCount != 1 {
		t.Fatalf("page count = %d, want 1", doc.PageCount)
	}
	if doc.TotalChars == 0 {
		t.Fatal("expected a positive extracted character count")
	}
	if !strings.Contains(doc.Pages[0].Text, "Hello") {
		t.Fatalf("page text %q does not contain extracted content", doc.Pages[0].Text)
	}
	if doc.Pages[0].Err != "" {
		t.Fatalf("unexpected page error: %s", doc.Pages[0].Err)
	}
	if !strings.Contains(doc.Text(), "--- Page 1 ---") {
		t.Fatalf("assembled text is missing the page label: %q", doc.Text())
	}
}

func TestExtractMultiPageNumbering(t *testing.T) {
	data := buildPDF(t, []string{"Question one", "Question two", "Question three"})

	doc, err := NewExtractor().Extract(data)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if doc.PageCount != 3 {
		t.Fatalf("page count = %d, want 3", doc.PageCount)
	}
	if len(doc.Pages) != 3 {
		t.Fatalf("len(pages) = %d, want 3", len(doc.Pages))
	}
	for i, p := range doc.Pages {
		if p.Number != i+1 {
			t.Fatalf("page %d has number %d", i, p.Number)
		}
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty input", data: nil},
		{name: "garbage bytes", data: []byte("this is not a pdf at all, just prose long enough to look like one")},
		{name: "truncated header", data: []byte("%PDF-1.4\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExtractor().Extract(tt.data)
			if err == nil {
				t.Fatal("expected an extraction error")
			}
			if !errors.Is(err, domain.ErrExtraction) {
				t.Fatalf("expected domain.ErrExtraction, got %v", err)
			}
		})
	}
}

func TestExtractZeroCharactersFailsAfterAllPages(t *testing.T) {
	// Two parseable pages, neither of which carries any text.
	data := buildPDF(t, []string{"", ""})

	_, err := NewExtractor().Extract(data)
	if err == nil {
		t.Fatal("expected an extraction error for a text-free document")
	}
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected domain.ErrExtraction, got %v", err)
	}
	if !strings.Contains(err.Error(), "2 page(s)") {
		t.Fatalf("error should mention all attempted pages: %v", err)
	}
}
