package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"genpanel/internal/http/handlers"
	"genpanel/internal/middleware"
)

// NewRouter wires the session API. Intents are POSTs under /v1/session, the
// event stream is a websocket at /v1/events.
func NewRouter(app *handlers.App, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(allowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/status", app.Status)
	r.Get("/v1/events", app.Events)

	r.Route("/v1/session", func(r chi.Router) {
		r.Post("/send", app.Send)
		r.Post("/retry", app.Retry)
		r.Post("/undo", app.Undo)
		r.Post("/reset", app.Reset)
		r.Post("/enhance", app.Enhance)
		r.Post("/select", app.SelectImage)
		r.Post("/commit", app.Commit)
		r.Post("/discard", app.Discard)
		r.Get("/export.zip", app.ExportZip)
	})

	r.Route("/v1/settings", func(r chi.Router) {
		r.Get("/", app.GetSettings)
		r.Put("/", app.PutSettings)
	})

	return r
}
