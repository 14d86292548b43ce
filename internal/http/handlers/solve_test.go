package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/extract"
	"server/internal/middleware"
	"server/internal/solver"
)

type staticExtractor struct{ text string }

func (s staticExtractor) Extract(data []byte) (*extract.Document, error) {
	return &extract.Document{
		Pages:      []extract.Page{{Number: 1, Text: s.text}},
		PageCount:  1,
		TotalChars: len(s.text),
	}, nil
}

type staticGenerator struct {
	answer string
	err    error
}

func (s staticGenerator) Generate(ctx context.Context, req solver.GenerateRequest) (string, int, error) {
	if s.err != nil {
		return "", 0, s.err
	}
	return s.answer, 7, nil
}

func (s staticGenerator) GenerateStream(ctx context.Context, req solver.GenerateRequest, emit func(solver.Fragment) error) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if err := emit(solver.Fragment{Text: s.answer, Tokens: 7}); err != nil {
		return 0, err
	}
	return 7, nil
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func newSolveApp(gen solver.Generator) *App {
	app := newTestApp()
	app.Pipeline = solver.NewPipeline(
		staticExtractor{text: "What is 6 x 7?"},
		gen,
		solver.NewJobRecorder(nil, zerolog.Nop()),
		zerolog.Nop(),
	)
	return app
}

func TestProcessPDF(t *testing.T) {
	app := newSolveApp(staticGenerator{answer: "The answer is 42."})
	billing := app.Billing.(*memBillingRepo)
	billing.balances["user-1"] = 5

	body, contentType := multipartUpload(t, "file", "algebra_exam.pdf", []byte("%PDF-1.4 exam"))
	req := httptest.NewRequest("POST", "/api/v1/solver/process", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()
	app.ProcessPDF(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp solveResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Solutions != "The answer is 42." {
		t.Fatalf("solutions = %q", resp.Solutions)
	}
	if resp.Metrics.TokenCount != 7 {
		t.Fatalf("token count = %d", resp.Metrics.TokenCount)
	}
	if resp.Metrics.PrimaryChars != len("What is 6 x 7?") {
		t.Fatalf("primary chars = %d", resp.Metrics.PrimaryChars)
	}

	// One credit charged and a retained copy written.
	if billing.balances["user-1"] != 4 {
		t.Fatalf("balance = %d, want 4", billing.balances["user-1"])
	}
	items, _ := app.History.ListByUser(req.Context(), "user-1", 10, 0)
	if len(items) != 1 {
		t.Fatalf("history items = %d, want 1", len(items))
	}
	if items[0].Title != "The answer is 42." {
		t.Fatalf("history title = %q", items[0].Title)
	}
	if items[0].PDFName != "algebra_exam.pdf" {
		t.Fatalf("history pdf name = %q", items[0].PDFName)
	}
	if items[0].Result != resp.Solutions {
		t.Fatal("history result differs from response")
	}
}

func TestProcessPDFMissingFile(t *testing.T) {
	app := newSolveApp(staticGenerator{answer: "x"})

	body, contentType := multipartUpload(t, "wrong_field", "a.pdf", []byte("%PDF"))
	req := httptest.NewRequest("POST", "/api/v1/solver/process", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()
	app.ProcessPDF(rr, req)
	if rr.Code != 400 {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestProcessPDFGenerationFailure(t *testing.T) {
	app := newSolveApp(staticGenerator{err: fmt.Errorf("%w: refused", domain.ErrGeneration)})
	billing := app.Billing.(*memBillingRepo)
	billing.balances["user-1"] = 5

	body, contentType := multipartUpload(t, "file", "exam.pdf", []byte("%PDF"))
	req := httptest.NewRequest("POST", "/api/v1/solver/process", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
	rr := httptest.NewRecorder()
	app.ProcessPDF(rr, req)

	if rr.Code != 502 {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	// Failed runs are free and leave no history.
	if billing.balances["user-1"] != 5 {
		t.Fatalf("balance = %d, want 5", billing.balances["user-1"])
	}
	items, _ := app.History.ListByUser(req.Context(), "user-1", 10, 0)
	if len(items) != 0 {
		t.Fatalf("history items = %d, want 0", len(items))
	}
}

func TestHistoryTitleTruncatesOnRuneBoundary(t *testing.T) {
	// One ASCII byte followed by 3-byte runes puts the 120-byte mark inside
	// a rune.
	long := "# Q" + strings.Repeat("数", 60)
	title := historyTitle(long, "exam.pdf")
	if !utf8.ValidString(title) {
		t.Fatalf("title is not valid UTF-8: %q", title)
	}
	if len(title) > 120 {
		t.Fatalf("title length = %d bytes, want at most 120", len(title))
	}
	if !strings.HasPrefix(title, "Q数") {
		t.Fatalf("title lost its content: %q", title)
	}
}

func TestProcessPDFRequiresAuth(t *testing.T) {
	app := newSolveApp(staticGenerator{answer: "x"})
	body, contentType := multipartUpload(t, "file", "exam.pdf", []byte("%PDF"))
	req := httptest.NewRequest("POST", "/api/v1/solver/process", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	app.ProcessPDF(rr, req)
	if rr.Code != 401 {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}
