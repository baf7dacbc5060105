// Package api exposes the Tool RPC surface over two gin routers: a
// production router (optionally bearer-token gated) and an admin router
// (operator-network only, no auth), sharing every domain package.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isaacriehm/memory-mcp/pkg/config"
	"github.com/isaacriehm/memory-mcp/pkg/llmgateway"
	"github.com/isaacriehm/memory-mcp/pkg/primer"
	"github.com/isaacriehm/memory-mcp/pkg/retrieval"
	"github.com/isaacriehm/memory-mcp/pkg/store"
)

// Server wires every domain package into the HTTP handlers both routers
// share.
type Server struct {
	store     *store.Store
	retrieval *retrieval.Retrieval
	llm       *llmgateway.Gateway
	primer    *primer.Synthesizer
	cfg       config.Config
	startedAt time.Time
}

func NewServer(s *store.Store, r *retrieval.Retrieval, llm *llmgateway.Gateway, pr *primer.Synthesizer, cfg config.Config) *Server {
	return &Server{store: s, retrieval: r, llm: llm, primer: pr, cfg: cfg, startedAt: time.Now()}
}

// embed adapts the Gateway's Embed method to the (ctx, text) shape
// retrieval.Search expects, keeping retrieval free of an llmgateway import.
func (s *Server) embed(ctx context.Context, text string) ([]float64, error) {
	return s.llm.Embed(ctx, text)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(securityHeaders)
	return r
}

// ProductionRouter builds the default-port router: the read/write tools a
// normal agent session uses. It's gated by bearerAuth only when cfg.APIKey
// is set — an empty key means trusted-network mode.
func (s *Server) ProductionRouter() *gin.Engine {
	r := newRouter()
	r.GET("/healthz", s.handleHealth)

	group := r.Group("/")
	if s.cfg.APIKey != "" {
		group.Use(bearerAuth(s.cfg.APIKey))
		slog.Info("Bearer token auth enabled on production router.")
	} else {
		slog.Info("No API_KEY set — production router running without auth (trusted-network mode).")
	}
	s.registerProductionTools(group)
	return r
}

// AdminRouter builds the operator-only router: everything the production
// router exposes plus destructive/operational tools. Never authenticated —
// it's meant to live on an operator-only network.
func (s *Server) AdminRouter() *gin.Engine {
	r := newRouter()
	r.GET("/healthz", s.handleHealth)

	group := r.Group("/")
	s.registerProductionTools(group)
	s.registerAdminTools(group)
	return r
}

func (s *Server) registerProductionTools(g *gin.RouterGroup) {
	g.POST("/initialize_context", s.handleInitializeContext)
	g.POST("/memorize_context", s.handleMemorizeContext)
	g.POST("/check_ingestion_status", s.handleCheckIngestionStatus)
	g.POST("/search_memory", s.handleSearchMemory)
	g.POST("/list_categories", s.handleListCategories)
	g.POST("/explore_taxonomy", s.handleExploreTaxonomy)
	g.POST("/fetch_document", s.handleFetchDocument)
	g.POST("/trace_history", s.handleTraceHistory)
	g.POST("/confirm_memory_validity", s.handleConfirmMemoryValidity)
	g.POST("/update_memory", s.handleUpdateMemory)

	g.POST("/set_context", s.handleSetContext)
	g.POST("/get_context", s.handleGetContext)
	g.POST("/delete_context", s.handleDeleteContext)
	g.POST("/list_context_keys", s.handleListContextKeys)
	g.POST("/extend_context_ttl", s.handleExtendContextTTL)
}

func (s *Server) registerAdminTools(g *gin.RouterGroup) {
	g.POST("/delete_memory", s.handleDeleteMemory)
	g.POST("/prune_history", s.handlePruneHistory)
	g.POST("/export_memories", s.handleExportMemories)
	g.POST("/recategorize_memory", s.handleRecategorizeMemory)
	g.POST("/bulk_move_category", s.handleBulkMoveCategory)
	g.POST("/update_memory_metadata", s.handleUpdateMemoryMetadata)
	g.POST("/run_diagnostics", s.handleRunDiagnostics)
	g.POST("/get_ingestion_stats", s.handleGetIngestionStats)
	g.POST("/flush_staging", s.handleFlushStaging)
}

func (s *Server) handleHealth(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, err := s.store.Health(reqCtx)
	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":     health.Status,
		"uptime_s":   int(time.Since(s.startedAt).Seconds()),
		"db": gin.H{
			"response_time_ms": health.ResponseTime.Milliseconds(),
			"acquired_conns":   health.AcquiredConns,
			"idle_conns":       health.IdleConns,
			"max_conns":        health.MaxConns,
		},
	})
}
