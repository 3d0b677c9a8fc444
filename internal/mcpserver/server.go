// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes sidestamp tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/sidestamp/internal/discovery"
	"github.com/starford/sidestamp/internal/matcher"
	"github.com/starford/sidestamp/internal/models"
	"github.com/starford/sidestamp/internal/reconcile"
	"github.com/starford/sidestamp/internal/rewrite"
)

const sidecarFormatURI = "sidestamp://sidecar-format"

// Server wraps the MCP server with sidestamp tools.
type Server struct {
	mcp    *server.MCPServer
	tree   *discovery.Tree
	logger *slog.Logger
	opts   []reconcile.Option
}

// New creates a new MCP server over the library tree. opts configure the
// processor used by stamp_directory and match_sidecar.
func New(tree *discovery.Tree, logger *slog.Logger, opts ...reconcile.Option) *Server {
	s := &Server{tree: tree, logger: logger, opts: opts}

	s.mcp = server.NewMCPServer(
		"sidestamp",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("stamp_directory",
		mcp.WithDescription("Write the capture time of every sidecar under a directory into its matching image. "+
			"Returns one outcome per sidecar and a summary."),
		mcp.WithString("path", mcp.Description("Directory relative to the library root (empty for the whole library)")),
		mcp.WithBoolean("dry_run", mcp.Description("Match and parse only; leave images untouched")),
	), s.stampDirectory)

	s.mcp.AddTool(mcp.NewTool("match_sidecar",
		mcp.WithDescription("Show which image a sidecar pairs with and the timestamp that would be written, without writing."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Sidecar path relative to the library root (e.g. album/IMG_0001.jpg.json)")),
	), s.matchSidecar)

	s.mcp.AddTool(mcp.NewTool("read_timestamps",
		mcp.WithDescription("Read the EXIF DateTime, DateTimeOriginal and DateTimeDigitized tags of an image."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Image path relative to the library root")),
	), s.readTimestamps)

	s.mcp.AddTool(mcp.NewTool("get_sidecar_format",
		mcp.WithDescription("Returns the sidecar format sidestamp reads and the matching rules it applies."),
	), s.getSidecarFormat)

	// Resource: sidecar format.
	s.mcp.AddResource(
		mcp.NewResource(sidecarFormatURI, "Sidecar Format",
			mcp.WithResourceDescription("Sidecar JSON shape, image matching order and the EXIF tags written."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSidecarFormatResource,
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

func (s *Server) processor(dryRun bool) *reconcile.Processor {
	opts := append(append([]reconcile.Option{}, s.opts...),
		reconcile.WithLogger(s.logger),
		reconcile.WithDryRun(dryRun))
	return reconcile.New(opts...)
}

// collector gathers outcomes for a single tool result.
type collector struct {
	Outcomes []models.Outcome `json:"outcomes"`
	Summary  models.Summary   `json:"summary"`
}

func (c *collector) OnOutcome(_ int, o models.Outcome) { c.Outcomes = append(c.Outcomes, o) }
func (c *collector) OnComplete(sum models.Summary)     { c.Summary = sum }

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) stampDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rel := req.GetString("path", "")
	dryRun := req.GetBool("dry_run", false)

	sub, err := s.tree.Sub(rel)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c := &collector{Outcomes: []models.Outcome{}}
	if _, err := s.processor(dryRun).Run(ctx, sub, c); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

type matchResult struct {
	Sidecar    string   `json:"sidecar"`
	Candidates []string `json:"candidates"`
	Image      string   `json:"image,omitempty"`
	DateTime   string   `json:"date_time,omitempty"`
	Status     string   `json:"status"`
	Reason     string   `json:"reason,omitempty"`
}

func (s *Server) matchSidecar(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rel, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.tree.Resolve(rel)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if info, statErr := os.Stat(path); statErr != nil || !info.Mode().IsRegular() {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", rel)), nil
	}

	o := s.processor(true).Process(path)
	res := matchResult{
		Sidecar:    o.Sidecar,
		Candidates: matcher.Candidates(path),
		Image:      o.Image,
		DateTime:   o.DateTime,
		Status:     string(o.Status),
		Reason:     o.Reason,
	}
	// A dry-run success only means the pair would be updated.
	if o.Status == models.StatusUpdated {
		res.Status = "would_update"
	}
	return jsonResult(res)
}

func (s *Server) readTimestamps(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rel, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.tree.Resolve(rel)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts, err := rewrite.Inspect(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ts)
}

func (s *Server) getSidecarFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SidecarFormat), nil
}

func (s *Server) readSidecarFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      sidecarFormatURI,
			MIMEType: "text/markdown",
			Text:     SidecarFormat,
		},
	}, nil
}
