// Package http provides the HTTP delivery layer of the link shortener: the
// management API under /api/v1 and the public redirect endpoint.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"
)

type routerOptions struct {
	purge    bool
	seed     bool
	docsPath string
}

type RouterOption func(*routerOptions)

// WithPurge exposes DELETE /api/v1/links, which removes every link.
func WithPurge() RouterOption {
	return func(o *routerOptions) {
		o.purge = true
	}
}

// WithSeed exposes POST /api/v1/links/seed, which creates sample links.
func WithSeed() RouterOption {
	return func(o *routerOptions) {
		o.seed = true
	}
}

func WithDocsPath(path string) RouterOption {
	return func(o *routerOptions) {
		o.docsPath = path
	}
}

// NewRouter initializes a chi router with middleware and the link routes.
func NewRouter(logger *httplog.Logger, linkUseCase linkUseCase, opts ...RouterOption) *chi.Mux {
	o := routerOptions{docsPath: "./docs/swagger.yml"}
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/swagger.yml"),
	))

	r.Get("/docs/swagger.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, o.docsPath)
	})

	h := newLinkHandler(linkUseCase, validator.New())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", handlePing)

		r.Route("/links", func(r chi.Router) {
			r.Post("/", h.shortenURL)
			r.Get("/", h.listLinks)
			if o.purge {
				r.Delete("/", h.purgeLinks)
			}
			if o.seed {
				r.Post("/seed", h.seedLinks)
			}

			r.Route("/{shortKey}", func(r chi.Router) {
				r.Get("/", h.getLink)
				r.Delete("/", h.deleteLink)
				r.Get("/stats", h.getLinkStats)
			})
		})

		r.Post("/clicks/flush", h.flushClicks)
	})

	r.Get("/{shortKey}", h.redirect)

	return r
}
