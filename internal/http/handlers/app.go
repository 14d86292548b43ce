package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/auth"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/solver"
)

type App struct {
	Logger    zerolog.Logger
	Cfg       *infra.Config
	Users     domain.UserRepository
	Jobs      domain.JobRepository
	History   domain.HistoryRepository
	Billing   domain.BillingRepository
	Pipeline  *solver.Pipeline
	Validator *auth.Validator
	Geo       geoip.LocationResolver
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
