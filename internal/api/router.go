package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events, where the token may
// also come from the query string.
func NewRouter(ws *workspace.Service, db index.PageIndex, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ws, db)

	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		r.Get("/pages", h.ListPages)
		r.Post("/pages", h.CreatePage)
		r.Route("/pages/{heading}", func(r chi.Router) {
			r.Get("/", h.GetPage)
			r.Get("/markdown", h.GetMarkdown)
			r.Put("/title", h.RenamePage)
			r.Post("/tags", h.AddTag)
			r.Delete("/tags/{tag}", h.RemoveTag)
			r.Post("/input", h.Input)
			r.Get("/backlinks", h.Backlinks)
		})

		r.Get("/tags", h.ListTags)
		r.Get("/search", h.Search)
		r.Get("/graph", h.Graph)

		r.Post("/save", h.Save)
		r.Post("/recover", h.Recover)
	})

	if sseHandler != nil {
		r.With(StreamAuthMiddleware(authEnabled, token)).Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
