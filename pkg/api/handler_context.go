package api

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/isaacriehm/memory-mcp/pkg/llmgateway"
	"github.com/isaacriehm/memory-mcp/pkg/pipeline"
	"github.com/isaacriehm/memory-mcp/pkg/retrieval"
	"github.com/isaacriehm/memory-mcp/pkg/store"
)

// validContextKey mirrors the original service's _VALID_KEY_RE: letters,
// digits, underscore, hyphen and dot, 1-200 characters.
var validContextKey = regexp.MustCompile(`^[a-zA-Z0-9_\-.]{1,200}$`)

// contextMaxTTLHours is the hard ceiling both set_context and
// extend_context_ttl enforce: 30 days.
const contextMaxTTLHours = 720

func validateContextKey(key string) error {
	if !validContextKey.MatchString(key) {
		return fmt.Errorf("key must match %s", validContextKey.String())
	}
	return nil
}

// handleInitializeContext is the session-opening call: it returns every
// active reference.system.* record plus a rendered verification_block for
// any memory overdue for re-verification. Agents must inject a non-empty
// block under "## Verification Required" before doing anything else.
func (s *Server) handleInitializeContext(c *gin.Context) {
	records, verification, err := s.retrieval.InitializeContext(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}

	results := make([]gin.H, len(records))
	for i, r := range records {
		item := gin.H{
			"id": r.ID, "content": r.Content, "category_path": r.CategoryPath,
			"created_at": r.CreatedAt, "updated_at": r.UpdatedAt, "metadata": r.Metadata,
		}
		if r.IsExpired {
			item["ttl_warning"] = r.Warning
		}
		results[i] = item
	}

	verificationRequired := make([]gin.H, len(verification))
	for i, v := range verification {
		verificationRequired[i] = gin.H{
			"memory_id": v.MemoryID, "content": v.Content, "category_path": v.CategoryPath,
			"verify_after": v.VerifyAfter, "volatility_class": v.VolatilityClass,
		}
	}

	ok(c, gin.H{
		"results":                results,
		"verification_required": verificationRequired,
		"verification_block":    renderVerificationBlock(verification),
	})
}

// renderVerificationBlock matches the original Markdown block agents are
// asked to inject verbatim when memories are overdue for review.
func renderVerificationBlock(items []retrieval.VerificationItem) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Verification Required\n\n")
	b.WriteString("The following records have passed their verification deadline. Query the user regarding the accuracy of each BEFORE executing any other commands.\n\n")
	for _, v := range items {
		content := v.Content
		if len(content) > 300 {
			content = content[:300] + "..."
		}
		fmt.Fprintf(&b, "- **Memory ID**: `%s`\n  **Category**: %s\n  **Content**: %s\n  **Verify after**: %s\n",
			v.MemoryID, v.CategoryPath, content, v.VerifyAfter.Format(time.RFC3339))
	}
	b.WriteString("\nIf the user confirms unchanged → call `confirm_memory_validity(memory_id)`.\n")
	b.WriteString("If the user provides updated info → call `memorize_context(new_text)`.\n")
	return b.String()
}

type confirmMemoryValidityRequest struct {
	MemoryID string `json:"memory_id"`
}

func (s *Server) handleConfirmMemoryValidity(c *gin.Context) {
	var req confirmMemoryValidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id, err := parseUUID(req.MemoryID)
	if err != nil {
		fail(c, "memory_id must be a valid UUID")
		return
	}

	volatilityClass, verifyAfter, err := s.retrieval.ConfirmMemoryValidity(c.Request.Context(), id, pipeline.ComputeVerifyAfter)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{
		"memory_id":         id,
		"volatility_class":  volatilityClass,
		"next_verify_after": verifyAfter,
	})
}

type updateMemoryRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// handleUpdateMemory re-embeds a memory's content in place, recomputing
// verify_after, without running it back through the contradiction engine —
// the caller has already decided this is a correction, not a new fact.
// Identity, category_path, edges and created_at are all preserved.
func (s *Server) handleUpdateMemory(c *gin.Context) {
	var req updateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	id, err := parseUUID(req.ID)
	if err != nil {
		fail(c, "id must be a valid UUID")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		fail(c, "text must be a non-empty string")
		return
	}

	ctx := c.Request.Context()
	mem, err := s.store.GetMemory(ctx, s.store.Pool(), id)
	if err != nil {
		fail(c, fmt.Sprintf("Memory %s not found.", id))
		return
	}

	vec, err := s.llm.Embed(ctx, req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	volatility, _ := mem.Metadata["volatility_class"].(string)
	if volatility == "" {
		volatility = "low"
	}
	now := time.Now().UTC()
	verifyAfter := pipeline.ComputeVerifyAfter(volatility, now)

	if err := s.store.UpdateMemoryContent(ctx, s.store.Pool(), id, req.Text, llmgateway.VectorLiteral(vec), verifyAfter, now); err != nil {
		failErr(c, err)
		return
	}

	profileChanged := store.IsProfilePath(mem.CategoryPath)
	if err := s.primer.Synthesize(ctx, profileChanged); err != nil {
		slog.Warn("Primer refresh after update_memory failed.", "error", err)
	}

	ok(c, gin.H{
		"id":            id,
		"category_path": mem.CategoryPath,
		"message":       "Memory updated in-place. Edges, category, and history preserved.",
	})
}

// --- Context store: ephemeral, session-scoped working data ---

type setContextRequest struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Scope    string `json:"scope"`
	TTLHours int    `json:"ttl_hours"`
}

func (s *Server) handleSetContext(c *gin.Context) {
	var req setContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := validateContextKey(req.Key); err != nil {
		fail(c, err.Error())
		return
	}
	if len(req.Key) > s.cfg.ContextMaxKeyLength {
		fail(c, fmt.Sprintf("key exceeds maximum length of %d", s.cfg.ContextMaxKeyLength))
		return
	}
	if len(req.Value) > s.cfg.ContextMaxValueLength {
		fail(c, fmt.Sprintf("value exceeds maximum length of %d", s.cfg.ContextMaxValueLength))
		return
	}
	ttlHours := req.TTLHours
	if ttlHours <= 0 {
		ttlHours = s.cfg.ContextDefaultTTLHours
	}
	if ttlHours > contextMaxTTLHours {
		fail(c, fmt.Sprintf("ttl_hours must not exceed %d (30 days)", contextMaxTTLHours))
		return
	}

	if err := s.store.SetContext(c.Request.Context(), s.store.Pool(), req.Key, req.Value, req.Scope, time.Duration(ttlHours)*time.Hour); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"key": req.Key})
}

type getContextRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleGetContext(c *gin.Context) {
	var req getContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := validateContextKey(req.Key); err != nil {
		fail(c, err.Error())
		return
	}
	entry, err := s.store.GetContext(c.Request.Context(), s.store.Pool(), req.Key)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{
		"key": entry.Key, "value": entry.Value, "scope": entry.Scope,
		"created_at": entry.CreatedAt, "updated_at": entry.UpdatedAt, "expires_at": entry.ExpiresAt,
	})
}

type deleteContextRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleDeleteContext(c *gin.Context) {
	var req deleteContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := validateContextKey(req.Key); err != nil {
		fail(c, err.Error())
		return
	}
	deleted, err := s.store.DeleteContext(c.Request.Context(), s.store.Pool(), req.Key)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"deleted": deleted})
}

type listContextKeysRequest struct {
	Scope string `json:"scope"`
}

func (s *Server) handleListContextKeys(c *gin.Context) {
	var req listContextKeysRequest
	_ = c.ShouldBindJSON(&req)

	entries, err := s.store.ListContextKeys(c.Request.Context(), s.store.Pool(), req.Scope)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"keys": entries})
}

type extendContextTTLRequest struct {
	Key   string `json:"key"`
	Hours int    `json:"hours"`
}

func (s *Server) handleExtendContextTTL(c *gin.Context) {
	var req extendContextTTLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := validateContextKey(req.Key); err != nil {
		fail(c, err.Error())
		return
	}
	if req.Hours <= 0 {
		fail(c, "hours must be a positive integer")
		return
	}

	newExpiry, err := s.store.ExtendContextTTL(c.Request.Context(), s.store.Pool(), req.Key,
		time.Duration(req.Hours)*time.Hour, contextMaxTTLHours*time.Hour)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"key": req.Key, "expires_at": newExpiry})
}
