package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/parisxmas/TenderDesk/internal/auth"
	"github.com/parisxmas/TenderDesk/internal/handler"
	mw "github.com/parisxmas/TenderDesk/internal/middleware"
)

type Options struct {
	JWTSecret string
	Logger    *slog.Logger
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// WriteRoles may submit and delete tenders; empty allows any
	// authenticated caller.
	WriteRoles []string
}

func New(opts Options, tenderH *handler.TenderHandler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger(opts.Logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", handler.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(opts.JWTSecret))

		// Reads
		r.Get("/tenders", tenderH.List)
		r.Get("/tenders/{tenderId}", tenderH.Get)
		r.Get("/tenders/{tenderId}/documents/{docId}", tenderH.Download)
		r.Get("/documents/by-hash/{hash}", tenderH.ByHash)

		// Writes
		r.Group(func(r chi.Router) {
			if len(opts.WriteRoles) > 0 {
				r.Use(auth.RequireRole(opts.WriteRoles...))
			}
			r.Post("/tenders", tenderH.Submit)
			r.Delete("/tenders/{tenderId}", tenderH.Delete)
		})
	})

	return r
}
