package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/signet/internal/compare"
	"github.com/mvp-joe/signet/internal/report"
	"github.com/mvp-joe/signet/internal/signature"
)

// CompareToolName is the name clients call.
const CompareToolName = "compare_debug_signatures"

// AddCompareTool registers the compare_debug_signatures tool with an MCP server.
// Each call runs a fresh comparison session over reader.
func AddCompareTool(s *server.MCPServer, reader compare.Reader, logger *slog.Logger) {
	tool := mcp.NewTool(
		CompareToolName,
		mcp.WithDescription(`Check that executables and their symbol files come from the same build by comparing debug signatures.

Accepts executables (.dll, .exe, .sys), portable symbol files (.pdb), packages and archives (.nupkg, .snupkg, .zip) and directories, which are scanned recursively. Returns the signature groups, every item that could not be read, and whether all readable items share one signature.`),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("Files, archives or directories to compare"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("format",
			mcp.Description("Report format: 'json' (default), 'yaml' or 'text'"),
			mcp.Enum(string(report.FormatJSON), string(report.FormatYAML), string(report.FormatText))),
		mcp.WithBoolean("require_match",
			mcp.Description("Report a tool error when the signatures do not all match")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, createCompareHandler(reader, logger))
}

// compareArgs are the compare_debug_signatures parameters.
type compareArgs struct {
	Paths        []string `json:"paths"`
	Format       string   `json:"format,omitempty"`
	RequireMatch bool     `json:"require_match,omitempty"`
}

func (a *compareArgs) validate() error {
	if len(a.Paths) == 0 {
		return errors.New("paths parameter is required")
	}
	for i, p := range a.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("paths[%d] must be a non-empty string", i)
		}
	}
	if a.Format == "" {
		a.Format = string(report.FormatJSON)
	}
	return nil
}

// createCompareHandler creates the handler function for the compare tool.
func createCompareHandler(reader compare.Reader, logger *slog.Logger) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args compareArgs
		if err := bindArguments(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if err := args.validate(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		format, err := report.ParseFormat(args.Format)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		comparer := compare.New(reader, compare.WithLogger(logger))
		if _, err := comparer.Add(ctx, args.Paths...); err != nil {
			if errors.Is(err, signature.ErrNoItems) {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return nil, fmt.Errorf("comparison failed: %w", err)
		}

		rep := report.Build(comparer)
		var buf bytes.Buffer
		if err := report.Render(&buf, rep, format, false); err != nil {
			return nil, fmt.Errorf("failed to render report: %w", err)
		}

		logger.Info("compared debug signatures",
			"session", rep.SessionID,
			"paths", len(args.Paths),
			"groups", len(rep.Groups),
			"failures", len(rep.Failures),
			"matched", rep.Matched,
		)

		if args.RequireMatch && !rep.Matched {
			return mcp.NewToolResultError(buf.String()), nil
		}
		return mcp.NewToolResultText(buf.String()), nil
	}
}
