// Package llmgateway wraps the embedding and chat-completions backend behind
// a small typed surface: Embed, Segment, EvaluateConflict and
// SummarizeUserProfile. All calls are retried with backoff and bounded by a
// shared concurrency semaphore.
package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/isaacriehm/memory-mcp/pkg/config"
	"github.com/isaacriehm/memory-mcp/pkg/errs"
	"github.com/isaacriehm/memory-mcp/pkg/identity"
)

// Gateway is the LLM-backed half of the ingestion pipeline.
type Gateway struct {
	client            *client
	embeddingModel    string
	extractModel      string
	conflictModel     string
	embedDim          int
	maxRetries        int
	extractReasoning  string
	conflictReasoning string
	minSectionLength  int
	sem               *semaphore.Weighted
}

// New builds a Gateway from resolved configuration.
func New(cfg config.Config) *Gateway {
	return &Gateway{
		client:            newClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAITimeout),
		embeddingModel:    cfg.EmbeddingModel,
		extractModel:      cfg.ExtractModel,
		conflictModel:     cfg.ConflictModel,
		embedDim:          cfg.EmbedDim,
		maxRetries:        cfg.OpenAIMaxRetries,
		extractReasoning:  cfg.ExtractReasoning,
		conflictReasoning: cfg.ConflictReasoning,
		minSectionLength:  cfg.MinSectionLength,
		sem:               semaphore.NewWeighted(int64(cfg.MaxConcurrentCalls)),
	}
}

// acquire bounds concurrent outbound calls to MAX_CONCURRENT_API_CALLS,
// mirroring the asyncio.Semaphore the original service held around every
// OpenAI call.
func (g *Gateway) acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}

// Embed returns the embedding vector for text, enforcing the configured
// dimension.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float64, error) {
	release, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	vec, err := withRetries(ctx, fmt.Sprintf("embed(%s)", g.embeddingModel), g.maxRetries, func(ctx context.Context) ([]float64, error) {
		var resp embeddingsResponse
		if err := g.client.post(ctx, "/embeddings", embeddingsRequest{Model: g.embeddingModel, Input: text}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("embeddings response contained no data")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.LLMUnavailable, err, "embedding request failed")
	}
	if len(vec) != g.embedDim {
		return nil, errs.New(errs.EmbeddingDimMismatch, "embedding dim mismatch: got %d expected %d", len(vec), g.embedDim)
	}
	return vec, nil
}

// VectorLiteral is a convenience wrapper so callers don't need to import
// identity just to stringify an embedding.
func VectorLiteral(vec []float64) string { return identity.VectorLiteral(vec) }

// VectorLiteral is the method form, letting a *Gateway satisfy interfaces
// (primer.Gateway) that narrow it down to just the calls they need.
func (g *Gateway) VectorLiteral(vec []float64) string { return identity.VectorLiteral(vec) }

// Section is one semantically cohesive unit produced by segmentation.
type Section struct {
	CategoryPath    string   `json:"category_path"`
	Content         string   `json:"content"`
	Tags            []string `json:"tags"`
	VolatilityClass string   `json:"volatility_class"`
}

type sectionsPayload struct {
	Sections []Section `json:"sections"`
}

var validVolatility = map[string]bool{"static": true, "high": true, "medium": true, "low": true}

// fallbackSection is what both the LLM and this function return when
// segmentation produces nothing usable: the whole input as one section.
func fallbackSection(text string) []Section {
	return []Section{{CategoryPath: "reference.unknown", Content: text, Tags: nil, VolatilityClass: "low"}}
}

// Segment divides text into semantically cohesive sections, each tagged
// with a taxonomy path, free-form tags and a volatility class. On any
// failure (including the model producing zero usable sections) it falls
// back to treating the whole input as a single reference.unknown section.
func (g *Gateway) Segment(ctx context.Context, text, activeTaxonomy string) []Section {
	release, err := g.acquire(ctx)
	if err != nil {
		return fallbackSection(text)
	}

	raw, err := withRetries(ctx, fmt.Sprintf("extract_semantic_sections(%s)", g.extractModel), g.maxRetries, func(ctx context.Context) (string, error) {
		var resp chatCompletionsResponse
		req := chatCompletionsRequest{
			Model: g.extractModel,
			Messages: []chatMessage{
				{Role: "system", Content: segmentationSystemPrompt(activeTaxonomy)},
				{Role: "user", Content: text},
			},
			ResponseFormat:  jsonSchemaResponseFormat("semantic_sections", semanticSectionsSchema),
			ReasoningEffort: g.extractReasoning,
		}
		if err := g.client.post(ctx, "/chat/completions", req, &resp); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat completions response contained no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	release()
	if err != nil {
		return fallbackSection(text)
	}

	var payload sectionsPayload
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &payload); err != nil || len(payload.Sections) == 0 {
		return fallbackSection(text)
	}

	out := make([]Section, 0, len(payload.Sections))
	for _, s := range payload.Sections {
		s.CategoryPath = identity.SanitizePath(s.CategoryPath)
		if !validVolatility[s.VolatilityClass] {
			s.VolatilityClass = "low"
		}
		if len(strings.TrimSpace(s.Content)) < g.minSectionLength {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return fallbackSection(text)
	}
	return out
}

// ConflictResolution is the arbiter's verdict on two competing memories.
type ConflictResolution struct {
	Resolution  string // "supersedes" or "merges"
	UpdatedText string
}

// EvaluateConflict decides whether newText supersedes or merges with
// oldText, returning the reconciled text to persist. On failure it defaults
// to "supersedes" with newText verbatim, matching the conservative fallback
// the arbiter itself uses.
func (g *Gateway) EvaluateConflict(ctx context.Context, oldText, newText string) ConflictResolution {
	safeOld := truncateMiddle(oldText, 6000)
	safeNew := truncateMiddle(newText, 6000)

	release, err := g.acquire(ctx)
	if err != nil {
		return ConflictResolution{Resolution: "supersedes", UpdatedText: newText}
	}

	raw, err := withRetries(ctx, fmt.Sprintf("evaluate_conflict(%s)", g.conflictModel), g.maxRetries, func(ctx context.Context) (string, error) {
		var resp chatCompletionsResponse
		req := chatCompletionsRequest{
			Model: g.conflictModel,
			Messages: []chatMessage{
				{Role: "system", Content: conflictSystemPrompt},
				{Role: "user", Content: fmt.Sprintf("<old_text>%s</old_text>\n\n<new_text>%s</new_text>", safeOld, safeNew)},
			},
			ResponseFormat:      jsonSchemaResponseFormat("conflict", conflictSchema),
			ReasoningEffort:     g.conflictReasoning,
			MaxCompletionTokens: 8000,
		}
		if err := g.client.post(ctx, "/chat/completions", req, &resp); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat completions response contained no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	release()
	if err != nil {
		return ConflictResolution{Resolution: "supersedes", UpdatedText: newText}
	}

	var parsed ConflictResolution
	var raw2 struct {
		Resolution  string `json:"resolution"`
		UpdatedText string `json:"updated_text"`
	}
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &raw2); err != nil {
		return ConflictResolution{Resolution: "supersedes", UpdatedText: newText}
	}
	parsed.Resolution = raw2.Resolution
	parsed.UpdatedText = raw2.UpdatedText
	if parsed.Resolution == "" {
		parsed.Resolution = "supersedes"
	}
	if parsed.UpdatedText == "" {
		parsed.UpdatedText = newText
	}
	return parsed
}

// SummarizeUserProfile condenses every profile.* memory chunk into a 3-6
// sentence prose briefing for the system primer's User Context section.
func (g *Gateway) SummarizeUserProfile(ctx context.Context, chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}
	combined := strings.Join(chunks, "\n\n---\n\n")

	release, err := g.acquire(ctx)
	if err != nil {
		return ""
	}
	defer release()

	raw, err := withRetries(ctx, fmt.Sprintf("summarize_user_profile(%s)", g.extractModel), g.maxRetries, func(ctx context.Context) (string, error) {
		var resp chatCompletionsResponse
		req := chatCompletionsRequest{
			Model: g.extractModel,
			Messages: []chatMessage{
				{Role: "system", Content: userProfileSystemPrompt},
				{Role: "user", Content: "User memory records:\n\n" + combined},
			},
			ReasoningEffort:     g.extractReasoning,
			MaxCompletionTokens: 10000,
		}
		if err := g.client.post(ctx, "/chat/completions", req, &resp); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat completions response contained no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(raw)
}

// stripJSONFence removes a ```json ... ``` markdown fence some models wrap
// structured output in before attempting to parse it.
func stripJSONFence(raw string) string {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "{}"
	}
	return cleaned
}

// truncateMiddle keeps the first and last half of text, replacing the
// middle with a marker, so arbitration prompts stay within token budgets
// without losing the opening and closing context of a chunk.
func truncateMiddle(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	half := maxLength / 2
	return text[:half] + "\n...[TRUNCATED]...\n" + text[len(text)-half:]
}
