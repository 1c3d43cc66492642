package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/nidhogg/mcp-server-qdrant/internal/entry"
	"github.com/nidhogg/mcp-server-qdrant/internal/errs"
)

const (
	DefaultStoreDescription = "Store social media posts for later retrieval. " +
		"The 'information' parameter should contain a natural language description of what the social media post is about, " +
		"while the actual social media post content should be included in the 'metadata' parameter. " +
		"Use this whenever you want to store a social media post for future searching."

	DefaultFindDescription = "Search for relevant social media posts based on natural language descriptions. " +
		"The 'query' parameter should describe what you're looking for, and the tool will return the most relevant social media posts. " +
		"Use this when you need to find existing social media posts for reference or to identify similar content."
)

// StoreInput defines the input for store.
type StoreInput struct {
	Information string         `json:"information" jsonschema:"Text to remember. It is embedded and used for semantic search."`
	Metadata    map[string]any `json:"metadata,omitempty" jsonschema:"Optional structured data stored with the information and returned verbatim by find"`
}

// FindInput defines the input for find.
type FindInput struct {
	Query  string         `json:"query" jsonschema:"What to search for, in natural language"`
	Limit  int            `json:"limit,omitempty" jsonschema:"Maximum number of results. Defaults to the server's configured limit"`
	Filter map[string]any `json:"filter,omitempty" jsonschema:"Optional metadata filter. Every key must equal the given value"`
}

// Register adds the store and find tools to server. In read-only mode
// store stays listed and every call fails with read_only_violation.
func (s *Server) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "store",
		Description: s.opts.StoreDescription,
	}, s.handleStore)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "find",
		Description: s.opts.FindDescription,
	}, s.handleFind)
}

// NewMCPServer creates an MCP server with the tools registered.
func (s *Server) NewMCPServer(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	s.Register(server)
	return server
}

func (s *Server) handleStore(ctx context.Context, req *mcp.CallToolRequest, input StoreInput) (*mcp.CallToolResult, any, error) {
	msg, err := s.Store(ctx, input.Information, input.Metadata)
	if err != nil {
		return s.toolError("store", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}, nil, nil
}

func (s *Server) handleFind(ctx context.Context, req *mcp.CallToolRequest, input FindInput) (*mcp.CallToolResult, any, error) {
	results, err := s.Find(ctx, input.Query, input.Limit, input.Filter)
	if err != nil {
		return s.toolError("find", err), nil, nil
	}
	if len(results) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("No information found for the query '%s'", input.Query)}},
		}, nil, nil
	}

	content := make([]mcp.Content, 0, len(results)+1)
	content = append(content, &mcp.TextContent{Text: fmt.Sprintf("Results for the query '%s'", input.Query)})
	for _, e := range results {
		content = append(content, &mcp.TextContent{Text: FormatEntry(e)})
	}
	return &mcp.CallToolResult{Content: content}, nil, nil
}

// toolError turns err into a tool result the calling model can read. The
// text starts with the error kind in brackets.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	kind := errs.KindOf(err)
	if kind == "" {
		kind = errs.KindInternal
	}
	s.logger.Warn("tool call failed",
		zap.String("tool", tool),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("[%s] %s", kind, err.Error())}},
	}
}

// FormatEntry renders a found entry with its score and the detected
// platform and date.
func FormatEntry(e entry.Entry) string {
	var b strings.Builder
	b.WriteString("<entry>")
	fmt.Fprintf(&b, "<content>%s</content>", e.Content)
	if len(e.Metadata) > 0 {
		md, err := json.Marshal(e.Metadata)
		if err == nil {
			fmt.Fprintf(&b, "<metadata>%s</metadata>", md)
		}
	}
	fmt.Fprintf(&b, "<score>%.4f</score>", e.Score)
	fmt.Fprintf(&b, "<platform>%s</platform>", entry.DetectPlatform(e.Content))
	if date := entry.ExtractDate(e); date != "" {
		fmt.Fprintf(&b, "<date>%s</date>", date)
	}
	b.WriteString("</entry>")
	return b.String()
}
