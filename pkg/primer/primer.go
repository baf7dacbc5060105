// Package primer synthesizes the System Primer: a single deterministically
// rebuilt memory at reference.system.primer that briefs a session on the
// user's profile, the current taxonomy shape, and how to use the tool
// surface. No LLM call is made here except to summarize the user profile
// chunks and to embed the finished primer text — the rest is SQL
// aggregation and string assembly.
package primer

import (
	"context"
	"fmt"
	"time"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
	"github.com/isaacriehm/memory-mcp/pkg/identity"
	"github.com/isaacriehm/memory-mcp/pkg/retrieval"
	"github.com/isaacriehm/memory-mcp/pkg/store"
)

const (
	maxTaxonomyDepth       = 2
	maxTaxonomyBranchNodes = 50
)

// Gateway is the subset of llmgateway.Gateway the primer needs, narrowed to
// an interface so this package doesn't import llmgateway directly.
type Gateway interface {
	SummarizeUserProfile(ctx context.Context, chunks []string) string
	Embed(ctx context.Context, text string) ([]float64, error)
	VectorLiteral(vec []float64) string
}

// Synthesizer rebuilds the primer on demand, triggered after ingestion
// persists new memories or a cleanup pass changes the active set.
type Synthesizer struct {
	store *store.Store
	llm   Gateway
}

func New(s *store.Store, llm Gateway) *Synthesizer {
	return &Synthesizer{store: s, llm: llm}
}

// Synthesize rebuilds and persists the primer. profileChanged forces a
// fresh user-profile summary instead of reusing the cached one; callers
// pass true whenever ingestion touched the profile.* subtree.
func (p *Synthesizer) Synthesize(ctx context.Context, profileChanged bool) error {
	pool := p.store.Pool()

	userContext, err := p.resolveUserContext(ctx, profileChanged)
	if err != nil {
		return err
	}

	cats, err := retrieval.ActiveCategoryCounts(ctx, pool, "reference.system.primer")
	if err != nil {
		return err
	}
	totalMemories := 0
	for _, c := range cats {
		totalMemories += c.Count
	}
	taxonomyTree := retrieval.BuildTaxonomyTree(cats, maxTaxonomyDepth, maxTaxonomyBranchNodes)

	content := renderPrimer(totalMemories, len(cats), userContext, taxonomyTree)

	id := identity.DeterministicID(content)
	vec, err := p.llm.Embed(ctx, content)
	if err != nil {
		return errs.Wrap(errs.LLMUnavailable, err, "failed to embed primer content")
	}
	vecLit := p.llm.VectorLiteral(vec)
	now := time.Now().UTC()

	return p.store.WithTx(ctx, func(q store.Querier) error {
		return p.store.UpsertPrimerMemory(ctx, q, id.String(), content, vecLit, now)
	})
}

func (p *Synthesizer) resolveUserContext(ctx context.Context, profileChanged bool) (string, error) {
	pool := p.store.Pool()

	if !profileChanged {
		cached, ok, err := p.store.GetCachedUserContext(ctx, pool)
		if err != nil {
			return "", err
		}
		if ok {
			return cached, nil
		}
	}

	chunks, err := p.store.ProfileChunks(ctx, pool)
	if err != nil {
		return "", err
	}
	userContext := p.llm.SummarizeUserProfile(ctx, chunks)
	if err := p.store.SetCachedUserContext(ctx, pool, userContext); err != nil {
		return "", err
	}
	return userContext, nil
}

func renderPrimer(totalMemories, categoryCount int, userContext, taxonomyTree string) string {
	return fmt.Sprintf(`# System Primer

Knowledge base contains %d active memories across %d categories.

## User Context
%s

## Taxonomy
`+"```"+`
%s
`+"```"+`

## Verification Protocol
When `+"`initialize_context`"+` returns a non-empty `+"`verification_block`"+`, inject it under
## Verification Required and address EACH item BEFORE any other task:
1. Quote the memory content to the user and ask if it is still accurate.
2. User confirms unchanged → call `+"`confirm_memory_validity(memory_id)`"+`.
3. User provides updated info → call `+"`memorize_context(new_text)`"+` to run
the standard contradiction engine and supersede the stale record.

## Context Store Guide
Separate from long-term memory. Use for ephemeral, session-scoped working data.
- `+"`set_context(key, value, ttl_hours, scope)`"+` — write active state (plans, task context, summaries)
- `+"`get_context(key)`"+` — retrieve by exact key
- `+"`list_context_keys(scope?)`"+` — see what's currently active
- `+"`delete_context(key)`"+` — explicitly clear when done
- `+"`extend_context_ttl(key, hours)`"+` — push expiry forward if needed

**When to use context store vs memorize_context:**
- Use context store for: active plans, current task state, session summaries, anything that will be stale in < 7 days
- Use memorize_context for: facts about you, project decisions, architecture notes, anything that should persist long-term
- Default TTL: 24 hours. Plans/tasks: 72 hours. Never exceed 168 hours (1 week) for working context.

## Retrieval Guide
- `+"`search_memory(query)`"+` — hybrid semantic + keyword search, returns top 10
- `+"`search_memory(query, category_path='projects.myapp.planning')`"+` — scoped to subtree
- `+"`list_categories()`"+` — all paths with counts
- `+"`fetch_document(memory_id)`"+` — reconstruct full document from chunk chain
- `+"`trace_history(memory_id)`"+` — inspect supersession chain for a fact
- `+"`explore_taxonomy(path)`"+` — expand a collapsed '[+N more]' branch
- `+"`check_ingestion_status(job_id)`"+` — poll async ingestion progress
- `+"`confirm_memory_validity(memory_id)`"+` — confirm an expired record is still accurate; advances verify_after
- `+"`initialize_context()`"+` — returns this primer
`, totalMemories, categoryCount, userContext, taxonomyTree)
}
