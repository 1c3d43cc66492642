package toolserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nidhogg/mcp-server-qdrant/internal/vectorstore"
)

type ToolsTestSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	session *mcp.ClientSession
}

func TestToolsTestSuite(t *testing.T) {
	suite.Run(t, new(ToolsTestSuite))
}

// connect serves s over in-memory transports and returns a client session.
func connect(ctx context.Context, t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	server := s.NewMCPServer("mcp-server-qdrant", "test")
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func (s *ToolsTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)
	server := newHashServer(s.T(), Options{
		FindDescription: "Look up social media captions.",
	})
	s.session = connect(s.ctx, s.T(), server)
}

func (s *ToolsTestSuite) TearDownTest() {
	s.cancel()
}

func (s *ToolsTestSuite) call(name string, args map[string]any) *mcp.CallToolResult {
	res, err := s.session.CallTool(s.ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	s.Require().NoError(err)
	return res
}

func texts(res *mcp.CallToolResult) []string {
	out := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			out = append(out, tc.Text)
		}
	}
	return out
}

func (s *ToolsTestSuite) TestListTools() {
	res, err := s.session.ListTools(s.ctx, nil)
	s.Require().NoError(err)

	descriptions := make(map[string]string)
	for _, tool := range res.Tools {
		descriptions[tool.Name] = tool.Description
	}
	s.Len(descriptions, 2)
	s.Equal(DefaultStoreDescription, descriptions["store"])
	s.Equal("Look up social media captions.", descriptions["find"])
}

func (s *ToolsTestSuite) TestStoreAndFind() {
	res := s.call("store", map[string]any{
		"information": "eco-friendly lifestyle tips #instagram",
		"metadata":    map[string]any{"platform": "instagram", "date": "2024-04-22"},
	})
	s.False(res.IsError, texts(res))
	s.Equal([]string{"Remembered: eco-friendly lifestyle tips #instagram in collection social-captions"}, texts(res))

	res = s.call("find", map[string]any{"query": "sustainable living", "limit": 1})
	s.False(res.IsError, texts(res))
	out := texts(res)
	s.Require().Len(out, 2)
	s.Equal("Results for the query 'sustainable living'", out[0])
	s.True(strings.HasPrefix(out[1], "<entry><content>eco-friendly lifestyle tips #instagram</content>"), out[1])
	s.Contains(out[1], `<metadata>{"date":"2024-04-22","platform":"instagram"}</metadata>`)
	s.Contains(out[1], "<platform>Instagram</platform>")
	s.Contains(out[1], "<date>2024-04-22</date>")
}

func (s *ToolsTestSuite) TestFindFilter() {
	s.call("store", map[string]any{"information": "morning run", "metadata": map[string]any{"platform": "twitter"}})
	s.call("store", map[string]any{"information": "morning yoga", "metadata": map[string]any{"platform": "instagram"}})

	res := s.call("find", map[string]any{"query": "morning", "filter": map[string]any{"platform": "instagram"}})
	out := texts(res)
	s.Require().Len(out, 2)
	s.Contains(out[1], "morning yoga")
}

func (s *ToolsTestSuite) TestFindNothing() {
	res := s.call("find", map[string]any{"query": "anything"})
	s.False(res.IsError)
	s.Equal([]string{"No information found for the query 'anything'"}, texts(res))
}

func (s *ToolsTestSuite) TestValidationErrorsAreToolErrors() {
	res := s.call("store", map[string]any{"information": "   "})
	s.True(res.IsError)
	s.Require().Len(texts(res), 1)
	s.True(strings.HasPrefix(texts(res)[0], "[validation_error]"), texts(res)[0])

	res = s.call("find", map[string]any{"query": ""})
	s.True(res.IsError)
	s.True(strings.HasPrefix(texts(res)[0], "[validation_error]"), texts(res)[0])
}

func TestReadOnlyStoreTool(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	session := connect(ctx, t, newHashServer(t, Options{}, vectorstore.WithReadOnly(true)))

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "store",
		Arguments: map[string]any{"information": "eco-friendly lifestyle tips"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.True(t, strings.HasPrefix(texts(res)[0], "[read_only_violation]"), texts(res)[0])
}
