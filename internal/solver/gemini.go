package solver

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"server/internal/domain"
)

const uploadCleanupTimeout = 15 * time.Second

// GeminiGenerator implements Generator on top of the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGeminiGenerator builds a Gemini-backed generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash-lite"
	}
	return &GeminiGenerator{client: client, model: model, logger: logger}, nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiGenerator) generativeModel() *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(0.7)
	m.SetTopP(0.95)
	m.SetTopK(40)
	m.ResponseMIMEType = "text/plain"
	return m
}

// buildParts assembles the request parts, staging the source PDF with the
// Files API when present. The returned cleanup deletes any staged upload and
// must run regardless of how the call ends.
func (g *GeminiGenerator) buildParts(ctx context.Context, req GenerateRequest) ([]genai.Part, func()) {
	parts := []genai.Part{genai.Text(req.Prompt)}
	cleanup := func() {}

	if len(req.PDF) == 0 {
		return parts, cleanup
	}

	uploaded, err := g.client.UploadFile(ctx, "", bytes.NewReader(req.PDF), &genai.UploadFileOptions{
		MIMEType:    "application/pdf",
		DisplayName: req.Filename,
	})
	if err != nil {
		// Degrade to a text-only request rather than failing the whole call.
		g.logger.Warn().Err(err).Str("filename", req.Filename).Msg("pdf staging failed, continuing with extracted text only")
		return parts, cleanup
	}

	parts = append(parts, genai.FileData{MIMEType: "application/pdf", URI: uploaded.URI})
	cleanup = func() {
		// The session context may already be canceled; the remote artifact
		// still has to go.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadCleanupTimeout)
		defer cancel()
		if err := g.client.DeleteFile(cctx, uploaded.Name); err != nil {
			g.logger.Warn().Err(err).Str("file", uploaded.Name).Msg("staged upload cleanup failed")
		}
	}
	return parts, cleanup
}

// Generate performs one aggregate generation call.
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (string, int, error) {
	parts, cleanup := g.buildParts(ctx, req)
	defer cleanup()

	resp, err := g.generativeModel().GenerateContent(ctx, parts...)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}

	text := responseText(resp)
	tokens := 0
	if resp.UsageMetadata != nil && resp.UsageMetadata.CandidatesTokenCount > 0 {
		tokens = int(resp.UsageMetadata.CandidatesTokenCount)
	} else {
		tokens = len(strings.Fields(text))
	}
	return text, tokens, nil
}

// GenerateStream drives one streaming generation call, emitting fragments as
// they arrive. Fragments already emitted are never retracted; a provider
// failure mid-stream surfaces as domain.ErrGeneration after them.
func (g *GeminiGenerator) GenerateStream(ctx context.Context, req GenerateRequest, emit func(Fragment) error) (int, error) {
	parts, cleanup := g.buildParts(ctx, req)
	defer cleanup()

	iter := g.generativeModel().GenerateContentStream(ctx, parts...)
	tokens := 0
	lastUsage := 0
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			return tokens, nil
		}
		if err != nil {
			return tokens, fmt.Errorf("%w: %v", domain.ErrGeneration, err)
		}

		text := responseText(resp)
		if text == "" {
			continue
		}

		frag := Fragment{Text: text}
		if resp.UsageMetadata != nil && int(resp.UsageMetadata.CandidatesTokenCount) > lastUsage {
			// Usage counts are cumulative across the stream.
			frag.Tokens = int(resp.UsageMetadata.CandidatesTokenCount) - lastUsage
			lastUsage = int(resp.UsageMetadata.CandidatesTokenCount)
		} else {
			frag.Tokens = len(strings.Fields(text))
		}
		tokens += frag.Tokens

		if err := emit(frag); err != nil {
			return tokens, err
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

var _ Generator = (*GeminiGenerator)(nil)
