// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes quire pages to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/workspace"
)

const formatURI = "quire://page-format"

// Server wraps the MCP server with quire tools.
type Server struct {
	mcp *server.MCPServer
	ws  *workspace.Service
	db  index.PageIndex
}

// New creates a new MCP server with all quire tools registered.
func New(ws *workspace.Service, db index.PageIndex) *Server {
	s := &Server{ws: ws, db: db}

	s.mcp = server.NewMCPServer(
		"Quire",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search through page headings, text and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read a page as the Markdown file it is saved as."),
		mcp.WithString("heading", mcp.Required(), mcp.Description("Page heading (the title in its front matter)")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List page headings, all of them or those carrying one tag."),
		mcp.WithString("tag", mcp.Description("Optional tag to filter by")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every tag in use."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all pages that link to the specified page."),
		mcp.WithString("heading", mcp.Required(), mcp.Description("Heading of the page to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Create an empty page. Read the contract first via "+
			"the get_page_contract tool or the "+formatURI+" resource."),
		mcp.WithString("heading", mcp.Required(), mcp.Description("Heading of the new page")),
		mcp.WithString("tags", mcp.Description("Optional comma-separated tags")),
	), s.createPage)

	s.mcp.AddTool(mcp.NewTool("rename_page",
		mcp.WithDescription("Rename a page. Its file moves and pages linking to it are rewritten."),
		mcp.WithString("heading", mcp.Required(), mcp.Description("Current heading")),
		mcp.WithString("new_heading", mcp.Required(), mcp.Description("New heading")),
	), s.renamePage)

	s.mcp.AddTool(mcp.NewTool("get_page_contract",
		mcp.WithDescription("Returns the quire page file format contract."),
	), s.getPageContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Page Format Contract",
			mcp.WithResourceDescription("Markdown page file format used by quire workspaces."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	heading, err := req.RequireString("heading")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	md, err := s.ws.Markdown(ctx, heading)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", heading)), nil
	}
	return mcp.NewToolResultText(md), nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag := ""
	if t, err := req.RequireString("tag"); err == nil {
		tag = t
	}
	pages, err := s.ws.Pages(ctx, tag)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var headings []string
	for _, p := range pages {
		if !p.Synthetic {
			headings = append(headings, p.Heading)
		}
	}
	return mcp.NewToolResultText(strings.Join(headings, "\n")), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags, err := s.ws.Tags(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(tags, "\n")), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	heading, err := req.RequireString("heading")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.db.Backlinks(heading)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) createPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	heading, err := req.RequireString("heading")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var tags []string
	if raw, err := req.RequireString("tags"); err == nil {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	page, err := s.ws.Create(ctx, heading, tags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", page.File)), nil
}

func (s *Server) renamePage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	heading, err := req.RequireString("heading")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newHeading, err := req.RequireString("new_heading")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.ws.Rename(ctx, heading, newHeading)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s -> %s (%s)", heading, page.Heading, page.File)), nil
}

func (s *Server) getPageContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PageFormatContract), nil
}

func (s *Server) readPageFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PageFormatContract,
		},
	}, nil
}
