package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/workspace"
)

// CreatePageRequest is the request body for creating a page. An empty
// heading creates an untitled page.
type CreatePageRequest struct {
	Heading string   `json:"heading" example:"Crème Brûlée"`
	Tags    []string `json:"tags" example:"recipes"`
}

// RenamePageRequest is the request body for renaming a page.
type RenamePageRequest struct {
	Heading string `json:"heading" example:"Journal" validate:"required"`
}

// Validate implements validation.Validatable.
func (r RenamePageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Heading, validation.Required),
	)
}

// TagRequest is the request body for tagging a page.
type TagRequest struct {
	Tag string `json:"tag" example:"work" validate:"required"`
}

// Validate implements validation.Validatable.
func (r TagRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Tag, validation.Required),
	)
}

// InputRequest is text typed into a page body at a character position.
type InputRequest struct {
	Pos  *int   `json:"pos" example:"4" validate:"required"`
	Text string `json:"text" example:"[[Other Page]]" validate:"required"`
}

// Validate implements validation.Validatable.
func (r InputRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Pos, validation.NotNil, validation.Min(0)),
		validation.Field(&r.Text, validation.Required),
	)
}

// PageView is the full page response type (aliased from the domain layer).
type PageView = workspace.PageView

// PageSummary is one item in a page list (aliased from the domain layer).
type PageSummary = workspace.PageSummary

// PageListResponse wraps page listings.
type PageListResponse struct {
	Pages []PageSummary `json:"pages" validate:"required"`
}

// TagListResponse wraps tag listings.
type TagListResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// BacklinksResponse lists the headings of pages linking to a page.
type BacklinksResponse struct {
	Backlinks []string `json:"backlinks" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	File    string `json:"file" example:"creme_brulee.md" validate:"required"`
	Heading string `json:"heading" example:"Crème Brûlée" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// GraphResponse wraps the page link graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []index.GraphLink `json:"links" validate:"required"`
}

// SaveResponse reports how many page files were written.
type SaveResponse struct {
	Saved int `json:"saved" example:"3"`
}

// RecoverResponse reports how many pages style recovery changed.
type RecoverResponse struct {
	Recovered int `json:"recovered" example:"3"`
}
