package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/solver"
)

// maxUploadBytes bounds a single question paper upload.
const maxUploadBytes = 32 << 20

type solveMetricsDTO struct {
	ExtractionTime float64 `json:"extraction_time"`
	GenerationTime float64 `json:"generation_time"`
	TokenCount     int     `json:"token_count"`
	PrimaryChars   int     `json:"primary_chars"`
	ReferenceChars int     `json:"reference_chars"`
}

type solveResponse struct {
	Message   string          `json:"message"`
	JobID     string          `json:"job_id"`
	Solutions string          `json:"solutions"`
	Metrics   solveMetricsDTO `json:"metrics"`
}

// ProcessPDF accepts a multipart upload and returns the full solution set in
// one response. Clients wanting incremental output use the websocket route.
func (a *App) ProcessPDF(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}

	primary, filename, err := readFormFile(r, "file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file field is required")
		return
	}
	reference, refName, _ := readFormFile(r, "ref_book")

	res, err := a.Pipeline.Run(r.Context(), solver.Input{
		UserID:      userID,
		Filename:    filename,
		Primary:     primary,
		Reference:   reference,
		RefFilename: refName,
	}, nil)
	if err != nil {
		a.pipelineError(w, err)
		return
	}

	a.RecordCompletion(r.Context(), userID, filename, res)

	a.json(w, http.StatusOK, solveResponse{
		Message:   "PDF processed successfully",
		JobID:     res.JobID,
		Solutions: res.Solutions,
		Metrics: solveMetricsDTO{
			ExtractionTime: res.Metrics.ExtractionTime.Seconds(),
			GenerationTime: res.Metrics.GenerationTime.Seconds(),
			TokenCount:     res.Metrics.TokenCount,
			PrimaryChars:   res.Metrics.PrimaryChars,
			ReferenceChars: res.Metrics.ReferenceChars,
		},
	})
}

// recordCompletion persists the retained copy and charges one credit. Both
// are best-effort; the generated result is already on its way back.
func (a *App) RecordCompletion(ctx context.Context, userID, filename string, res *solver.Result) {
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	item := &domain.HistoryItem{
		ID:        uuid.NewString(),
		UserID:    userID,
		PDFName:   filename,
		Title:     historyTitle(res.Solutions, filename),
		Result:    res.Solutions,
		CreatedAt: now,
		ExpiresAt: now.AddDate(0, 0, a.Cfg.HistoryRetentionDays),
	}
	if err := a.History.Create(ctx, item); err != nil {
		a.Logger.Error().Err(err).Str("job_id", res.JobID).Msg("history insert failed")
	}
	if err := a.Billing.AddCredits(ctx, userID, -1); err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("credit deduction failed")
	}
}

func (a *App) pipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrExtraction):
		a.error(w, http.StatusUnprocessableEntity, "extraction_failed", err.Error())
	case errors.Is(err, domain.ErrGeneration):
		a.error(w, http.StatusBadGateway, "generation_failed", "solution generation failed")
	default:
		a.Logger.Error().Err(err).Msg("pipeline failed")
		a.error(w, http.StatusInternalServerError, "internal", "processing failed")
	}
}

func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, filepath.Base(hdr.Filename), nil
}

// historyTitle takes the first non-empty result line, stripped of heading
// markup, falling back to the upload's name.
func historyTitle(result, filename string) string {
	for _, line := range strings.Split(result, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			const maxTitle = 120
			if len(line) > maxTitle {
				cut := maxTitle
				for cut > 0 && !utf8.RuneStart(line[cut]) {
					cut--
				}
				line = line[:cut]
			}
			return line
		}
	}
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return "Untitled paper"
}

// GetJob reports the lifecycle status of one processing job.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	resp := map[string]any{
		"id":         job.ID,
		"filename":   job.Filename,
		"status":     string(job.Status),
		"created_at": job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
	}
	if job.CompletedAt != nil {
		resp["completed_at"] = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	a.json(w, http.StatusOK, resp)
}
