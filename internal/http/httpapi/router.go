package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/http/ws"
	"server/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Cfg.AllowedOrigins),
		middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)

	wsHandler := &ws.Handler{
		Logger:         app.Logger,
		Validator:      app.Validator,
		Pipeline:       app.Pipeline,
		OnComplete:     app.RecordCompletion,
		AllowBareToken: app.Cfg.InsecureDevAuth,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", app.Register)
			r.Post("/login", app.Login)
			r.Group(func(r chi.Router) {
				r.Use(middleware.AuthJWT(app.Validator))
				r.Get("/me", app.Me)
				r.Put("/me", app.UpdateMe)
				r.Post("/change-password", app.ChangePassword)
			})
		})

		r.Route("/solver", func(r chi.Router) {
			// The socket authenticates in-band with its first message.
			r.Get("/ws", wsHandler.ServeHTTP)
			r.Group(func(r chi.Router) {
				r.Use(middleware.AuthJWT(app.Validator))
				r.Post("/process", app.ProcessPDF)
				r.Get("/jobs/{id}", app.GetJob)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(app.Validator))
			r.Get("/history", app.HistoryList)
			r.Get("/history/{id}", app.HistoryDetail)

			r.Route("/billing", func(r chi.Router) {
				r.Get("/plans", app.Plans)
				r.Get("/credits", app.Credits)
				r.Post("/purchase", app.Purchase)
				r.Post("/purchase/complete", app.PurchaseComplete)
			})
		})
	})

	return r
}
