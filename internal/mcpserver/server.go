// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes memo tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/memo/internal/apperr"
	"github.com/starford/memo/internal/memo"
	"github.com/starford/memo/internal/models"
)

const contractURI = "memo://storage-contract"

// Server wraps the MCP server with memo tools.
type Server struct {
	mcp  *server.MCPServer
	repo *memo.Repository
}

type listItem struct {
	Handle       string    `json:"handle"`
	Title        string    `json:"title"`
	DateAdded    time.Time `json:"date_added"`
	DateModified time.Time `json:"date_modified"`
}

// New creates a new MCP server with all memo tools registered.
func New(repo *memo.Repository, version string) *Server {
	s := &Server{repo: repo}

	s.mcp = server.NewMCPServer(
		"memo",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_memos",
		mcp.WithDescription("List all memos, most recently modified first."),
	), s.listMemos)

	s.mcp.AddTool(mcp.NewTool("read_memo",
		mcp.WithDescription("Read the full content of a memo."),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Memo handle, e.g. memo:12")),
	), s.readMemo)

	s.mcp.AddTool(mcp.NewTool("create_memo",
		mcp.WithDescription("Create a new memo. Returns its handle."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Plain text content")),
	), s.createMemo)

	s.mcp.AddTool(mcp.NewTool("update_memo",
		mcp.WithDescription("Replace the content of an existing memo."),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Memo handle, e.g. memo:12")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New plain text content")),
	), s.updateMemo)

	s.mcp.AddTool(mcp.NewTool("audit_memos",
		mcp.WithDescription("Report memo files without records and records without files."),
	), s.auditMemos)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Memo Storage Contract",
			mcp.WithResourceDescription("How memos are addressed, titled and read back."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) listMemos(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := s.repo.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items := make([]listItem, len(recs))
	for i, r := range recs {
		items[i] = listItem{
			Handle:       r.Handle().String(),
			Title:        r.Title,
			DateAdded:    r.DateAdded,
			DateModified: r.DateModified,
		}
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readMemo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h, errResult := handleArg(req)
	if errResult != nil {
		return errResult, nil
	}
	content, err := s.repo.Load(ctx, &h)
	if err != nil {
		// The placeholder is still shown; the flag tells the caller it is not content.
		res := mcp.NewToolResultText(content)
		res.IsError = true
		return res, nil
	}
	return mcp.NewToolResultText(content), nil
}

func (s *Server) createMemo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := s.repo.Create(ctx, content)
	if err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", h)), nil
}

func (s *Server) updateMemo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h, errResult := handleArg(req)
	if errResult != nil {
		return errResult, nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.repo.Update(ctx, h, content); err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", h)), nil
}

func (s *Server) auditMemos(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.repo.Audit(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	broken := make([]string, len(rep.Broken))
	for i, r := range rep.Broken {
		broken[i] = r.Handle().String()
	}
	out, _ := json.MarshalIndent(map[string][]string{
		"orphans": rep.Orphans,
		"broken":  broken,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     StorageContract,
		},
	}, nil
}

func handleArg(req mcp.CallToolRequest) (models.Handle, *mcp.CallToolResult) {
	raw, err := req.RequireString("handle")
	if err != nil {
		return models.Handle{}, mcp.NewToolResultError(err.Error())
	}
	h, err := models.ParseHandle(raw)
	if err != nil {
		return models.Handle{}, mcp.NewToolResultError(err.Error())
	}
	return h, nil
}

// describe turns a repository error into a message an LLM can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, apperr.ErrUnknownHandle):
		return "unknown memo handle"
	case errors.Is(err, apperr.ErrDirectoryUnavailable):
		return "memo directory unavailable: " + err.Error()
	case errors.Is(err, apperr.ErrIndexWriteFailure):
		return "content saved to disk but not indexed: " + err.Error()
	case errors.Is(err, apperr.ErrWriteFailure):
		return "save failed: " + err.Error()
	default:
		return err.Error()
	}
}
