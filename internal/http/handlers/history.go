package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type historySummaryDTO struct {
	ID        string `json:"id"`
	PDFName   string `json:"pdf_name"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

type historyDetailDTO struct {
	historySummaryDTO
	Result string `json:"result"`
}

func toHistorySummary(item *domain.HistoryItem) historySummaryDTO {
	return historySummaryDTO{
		ID:        item.ID,
		PDFName:   item.PDFName,
		Title:     item.Title,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: item.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// HistoryList returns the caller's unexpired results, newest first.
func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	items, err := a.History.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		a.Logger.Error().Err(err).Msg("history list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	out := make([]historySummaryDTO, 0, len(items))
	for i := range items {
		out = append(out, toHistorySummary(&items[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": out})
}

// HistoryDetail returns one retained result including the generated text.
func (a *App) HistoryDetail(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	item, err := a.History.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "history item not found")
		return
	}
	a.json(w, http.StatusOK, historyDetailDTO{
		historySummaryDTO: toHistorySummary(item),
		Result:            item.Result,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i >= 0 {
			return i
		}
	}
	return fallback
}
