// Package api serves the MCP tools over streamable HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MCPPath is where the streamable HTTP endpoint is mounted.
const MCPPath = "/mcp"

// Status describes the deployment for the health endpoint.
type Status struct {
	Collection string `json:"collection"`
	VectorName string `json:"vector_name"`
	VectorSize int    `json:"vector_size"`
	ReadOnly   bool   `json:"read_only"`
}

type health struct {
	State string `json:"status"`
	Status
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	server *mcp.Server
	status Status
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(server *mcp.Server, status Status, logger *zap.Logger) *Handler {
	return &Handler{
		server: server,
		status: status,
		logger: logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
	}))

	r.Get("/api/health", h.healthCheck)

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return h.server
	}, nil)
	r.Handle(MCPPath, streamable)

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, health{State: "ok", Status: h.status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
