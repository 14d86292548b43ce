// Package solver drives the PDF ingestion pipeline: extraction, prompt
// assembly, and streamed generation, with the processing-job lifecycle
// recorded around it.
package solver

import (
	"context"
	"time"

	"server/internal/extract"
)

// Fragment is one incremental unit of generated text.
type Fragment struct {
	Text   string
	Tokens int
}

// GenerateRequest carries the assembled prompt and, optionally, the source
// document to stage with the provider for layout-aware answers.
type GenerateRequest struct {
	Prompt   string
	PDF      []byte
	Filename string
}

// Generator wraps the third-party text-generation service.
type Generator interface {
	// Generate performs a single aggregate call and returns the full text
	// plus a token estimate.
	Generate(ctx context.Context, req GenerateRequest) (string, int, error)
	// GenerateStream emits fragments as they arrive. Streams are one-shot;
	// a new call is a new sequence. The emit callback aborting stops the
	// stream with the callback's error. The returned count is the token
	// estimate accumulated before any failure.
	GenerateStream(ctx context.Context, req GenerateRequest, emit func(Fragment) error) (int, error)
}

// Extractor produces page-indexed text from raw document bytes.
type Extractor interface {
	Extract(data []byte) (*extract.Document, error)
}

// ProgressSink receives incremental pipeline output. The request/response
// transport passes NopSink; the streaming transport forwards everything to
// the client as it happens.
type ProgressSink interface {
	Notice(ctx context.Context, msg string) error
	Warning(ctx context.Context, msg string) error
	Fragment(ctx context.Context, text string) error
}

// NopSink discards all progress output.
type NopSink struct{}

func (NopSink) Notice(context.Context, string) error   { return nil }
func (NopSink) Warning(context.Context, string) error  { return nil }
func (NopSink) Fragment(context.Context, string) error { return nil }

// Metrics summarizes one pipeline run.
type Metrics struct {
	ExtractionTime time.Duration
	GenerationTime time.Duration
	TokenCount     int
	PrimaryChars   int
	ReferenceChars int
}

// Input is one document-processing request.
type Input struct {
	UserID      string
	Filename    string
	Primary     []byte
	Reference   []byte
	RefFilename string
	// Streaming selects the streaming generation call and incremental
	// fragment forwarding; otherwise the aggregate call is used.
	Streaming bool
}

// Result is the terminal outcome of a successful pipeline run.
type Result struct {
	JobID     string
	Solutions string
	Metrics   Metrics
}
