package solver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/extract"
)

// Pipeline runs one document through validate → extract → prompt → generate.
// Both transports share it; the sink decides whether progress reaches the
// client incrementally or not at all.
type Pipeline struct {
	extractor Extractor
	generator Generator
	jobs      *JobRecorder
	logger    zerolog.Logger
}

// NewPipeline wires the pipeline dependencies.
func NewPipeline(extractor Extractor, generator Generator, jobs *JobRecorder, logger zerolog.Logger) *Pipeline {
	return &Pipeline{extractor: extractor, generator: generator, jobs: jobs, logger: logger}
}

// Run processes one input to completion. The job record is created up front
// (best-effort) and finalized exactly once; on error the returned error wraps
// the matching domain sentinel and the job is marked failed with the same
// message the client sees.
func (p *Pipeline) Run(ctx context.Context, in Input, sink ProgressSink) (*Result, error) {
	if sink == nil {
		sink = NopSink{}
	}

	jobID := p.jobs.Create(ctx, in.UserID, in.Filename)

	fail := func(err error) (*Result, error) {
		// Finalize even when the session context is already canceled
		// (client disconnects mid-flight).
		p.jobs.Fail(context.WithoutCancel(ctx), jobID, err.Error())
		return nil, err
	}

	if err := sink.Notice(ctx, fmt.Sprintf("Received %s (%d bytes)", in.Filename, len(in.Primary))); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}

	if len(in.Primary) == 0 {
		return fail(fmt.Errorf("%w: uploaded file is empty (0 bytes)", domain.ErrValidation))
	}

	p.jobs.Start(ctx, jobID)

	// Extraction.
	if err := sink.Notice(ctx, "Extracting text..."); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}
	extractStart := time.Now()
	doc, err := p.extract(ctx, in.Primary)
	if err != nil {
		return fail(err)
	}
	for _, page := range doc.Pages {
		if page.Err == "" {
			continue
		}
		p.logger.Warn().Str("filename", in.Filename).Int("page", page.Number).Str("error", page.Err).Msg("page extraction failed")
		if err := sink.Warning(ctx, fmt.Sprintf("Page %d could not be read: %s", page.Number, page.Err)); err != nil {
			return fail(fmt.Errorf("%w: %v", domain.ErrTransport, err))
		}
	}

	referenceText := ""
	referenceChars := 0
	if len(in.Reference) > 0 {
		refDoc, refErr := p.extract(ctx, in.Reference)
		if refErr != nil {
			// The reference is an aid, not a requirement.
			p.logger.Warn().Err(refErr).Str("filename", in.RefFilename).Msg("reference extraction failed")
			if err := sink.Warning(ctx, "Reference material could not be read; solving without it"); err != nil {
				return fail(fmt.Errorf("%w: %v", domain.ErrTransport, err))
			}
		} else {
			referenceText = refDoc.Text()
			referenceChars = refDoc.TotalChars
		}
	}
	extractionTime := time.Since(extractStart)

	if err := sink.Notice(ctx, fmt.Sprintf("Extracted %d characters from %d page(s)", doc.TotalChars, doc.PageCount)); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}

	// Generation.
	req := GenerateRequest{
		Prompt:   BuildPrompt(doc.Text(), referenceText),
		PDF:      in.Primary,
		Filename: in.Filename,
	}
	if err := sink.Notice(ctx, "Generating solutions..."); err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrTransport, err))
	}

	generationStart := time.Now()
	var solutions strings.Builder
	var tokens int
	if in.Streaming {
		tokens, err = p.generator.GenerateStream(ctx, req, func(f Fragment) error {
			solutions.WriteString(f.Text)
			return sink.Fragment(ctx, f.Text)
		})
	} else {
		var text string
		text, tokens, err = p.generator.Generate(ctx, req)
		solutions.WriteString(text)
	}
	if err != nil {
		return fail(err)
	}
	generationTime := time.Since(generationStart)

	p.jobs.Complete(context.WithoutCancel(ctx), jobID)

	return &Result{
		JobID:     jobID,
		Solutions: solutions.String(),
		Metrics: Metrics{
			ExtractionTime: extractionTime,
			GenerationTime: generationTime,
			TokenCount:     tokens,
			PrimaryChars:   doc.TotalChars,
			ReferenceChars: referenceChars,
		},
	}, nil
}

// extract runs the parser on a worker goroutine so a canceled session does
// not stay pinned behind a slow or pathological document.
func (p *Pipeline) extract(ctx context.Context, data []byte) (*extract.Document, error) {
	type outcome struct {
		doc *extract.Document
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		doc, err := p.extractor.Extract(data)
		ch <- outcome{doc: doc, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		return out.doc, out.err
	}
}

var _ Extractor = (*extract.Extractor)(nil)
