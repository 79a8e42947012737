package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	ws *workspace.Service
	db index.PageIndex
}

// NewHandler creates a new Handler.
func NewHandler(ws *workspace.Service, db index.PageIndex) *Handler {
	return &Handler{ws: ws, db: db}
}

// urlParam returns a path parameter, unescaping headings sent with
// encoded characters (e.g. Caf%C3%A9).
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListPages handles GET /api/pages.
//
//	@Summary		List pages, optionally those carrying one tag in tag list order
//	@Tags			pages
//	@Produce		json
//	@Param			tag	query		string	false	"Filter by tag"
//	@Success		200	{object}	PageListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.ws.Pages(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		writeError(w, "list pages", err)
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: pages})
}

// CreatePage handles POST /api/pages.
//
//	@Summary		Create a new page
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePageRequest	true	"Page to create"
//	@Success		201		{object}	PageView
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages [post]
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req CreatePageRequest
	if !readJSON(w, r, &req) {
		return
	}
	var (
		page *PageView
		err  error
	)
	if req.Heading == "" {
		page, err = h.ws.CreateUntitled(r.Context())
	} else {
		page, err = h.ws.Create(r.Context(), req.Heading, req.Tags)
	}
	if err != nil {
		writeError(w, "create page", err)
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

// GetPage handles GET /api/pages/{heading}.
//
//	@Summary		Get a single page by heading
//	@Tags			pages
//	@Produce		json
//	@Param			heading	path		string	true	"Page heading"
//	@Success		200		{object}	PageView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{heading} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.ws.Page(r.Context(), urlParam(r, "heading"))
	if err != nil {
		writeError(w, "get page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetMarkdown handles GET /api/pages/{heading}/markdown.
//
//	@Summary		Get the page file a page saves as
//	@Tags			pages
//	@Produce		plain
//	@Param			heading	path		string	true	"Page heading"
//	@Success		200		{string}	string
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{heading}/markdown [get]
func (h *Handler) GetMarkdown(w http.ResponseWriter, r *http.Request) {
	md, err := h.ws.Markdown(r.Context(), urlParam(r, "heading"))
	if err != nil {
		writeError(w, "get markdown", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

// RenamePage handles PUT /api/pages/{heading}/title.
//
//	@Summary		Rename a page and rewrite pages linking to it
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			heading	path		string				true	"Page heading"
//	@Param			body	body		RenamePageRequest	true	"New heading"
//	@Success		200		{object}	PageView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{heading}/title [put]
func (h *Handler) RenamePage(w http.ResponseWriter, r *http.Request) {
	var req RenamePageRequest
	if !readJSON(w, r, &req) {
		return
	}
	page, err := h.ws.Rename(r.Context(), urlParam(r, "heading"), req.Heading)
	if err != nil {
		writeError(w, "rename page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// AddTag handles POST /api/pages/{heading}/tags.
//
//	@Summary		Tag a page
//	@Tags			tags
//	@Accept			json
//	@Produce		json
//	@Param			heading	path		string		true	"Page heading"
//	@Param			body	body		TagRequest	true	"Tag to add"
//	@Success		200		{object}	PageView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{heading}/tags [post]
func (h *Handler) AddTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !readJSON(w, r, &req) {
		return
	}
	page, err := h.ws.Tag(r.Context(), urlParam(r, "heading"), req.Tag)
	if err != nil {
		writeError(w, "tag page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// RemoveTag handles DELETE /api/pages/{heading}/tags/{tag}.
//
//	@Summary		Remove a tag from a page
//	@Tags			tags
//	@Produce		json
//	@Param			heading	path		string	true	"Page heading"
//	@Param			tag		path		string	true	"Tag"
//	@Success		200		{object}	PageView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{heading}/tags/{tag} [delete]
func (h *Handler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	page, err := h.ws.Untag(r.Context(), urlParam(r, "heading"), urlParam(r, "tag"))
	if err != nil {
		writeError(w, "untag page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Input handles POST /api/pages/{heading}/input.
//
//	@Summary		Type text into a page body
//	@Description	Text is inserted one character at a time. A completed [[Name]] becomes a link.
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			heading	path		string			true	"Page heading"
//	@Param			body	body		InputRequest	true	"Typed text"
//	@Success		200		{object}	PageView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{heading}/input [post]
func (h *Handler) Input(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if !readJSON(w, r, &req) {
		return
	}
	heading := urlParam(r, "heading")
	if err := h.ws.Type(r.Context(), heading, *req.Pos, req.Text); err != nil {
		writeError(w, "type", err)
		return
	}
	page, err := h.ws.Page(r.Context(), heading)
	if err != nil {
		writeError(w, "get page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Backlinks handles GET /api/pages/{heading}/backlinks.
//
//	@Summary		List saved pages linking to a page
//	@Tags			pages
//	@Produce		json
//	@Param			heading	path		string	true	"Page heading"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/pages/{heading}/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	heading := urlParam(r, "heading")
	links, err := h.db.Backlinks(heading)
	if err != nil {
		slog.Error("backlinks failed", slog.String("heading", heading), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if links == nil {
		links = []string{}
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Backlinks: links})
}

// ListTags handles GET /api/tags.
//
//	@Summary		List tags in use, or those a page does not carry
//	@Tags			tags
//	@Produce		json
//	@Param			not_on	query		string	false	"Heading of a page whose tags are excluded"
//	@Success		200		{object}	TagListResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	var (
		tags []string
		err  error
	)
	if heading := r.URL.Query().Get("not_on"); heading != "" {
		tags, err = h.ws.TagsNotOn(r.Context(), heading)
	} else {
		tags, err = h.ws.Tags(r.Context())
	}
	if err != nil {
		writeError(w, "list tags", err)
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, TagListResponse{Tags: tags})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across saved pages
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.db.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{File: hit.File, Heading: hit.Heading, Snippet: hit.Snippet})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the page link graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.db.Graph()
	if err != nil {
		slog.Error("graph failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if nodes == nil {
		nodes = []index.GraphNode{}
	}
	if links == nil {
		links = []index.GraphLink{}
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}

// Save handles POST /api/save.
//
//	@Summary		Write every page whose file is out of date
//	@Tags			pages
//	@Produce		json
//	@Success		200	{object}	SaveResponse
//	@Security		BearerAuth
//	@Router			/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	n, err := h.ws.SaveAll(r.Context())
	if err != nil {
		writeError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Saved: n})
}

// Recover handles POST /api/recover.
//
//	@Summary		Restore styling and links from literal markers in every page
//	@Tags			pages
//	@Produce		json
//	@Success		200	{object}	RecoverResponse
//	@Security		BearerAuth
//	@Router			/recover [post]
func (h *Handler) Recover(w http.ResponseWriter, r *http.Request) {
	n, err := h.ws.Recover(r.Context())
	if err != nil {
		writeError(w, "recover", err)
		return
	}
	writeJSON(w, http.StatusOK, RecoverResponse{Recovered: n})
}
