// Package pipeline runs the autonomous ingestion pipeline: it takes raw
// text, segments it into semantically cohesive sections, embeds and
// classifies each section against the active memory graph (new, duplicate,
// or conflicting), and persists the result in small batched transactions.
// It is the background half of memorize_context — the RPC layer only
// enqueues a row in ingestion_staging; a queue worker calls Pipeline.Run.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/isaacriehm/memory-mcp/pkg/config"
	"github.com/isaacriehm/memory-mcp/pkg/errs"
	"github.com/isaacriehm/memory-mcp/pkg/identity"
	"github.com/isaacriehm/memory-mcp/pkg/llmgateway"
	"github.com/isaacriehm/memory-mcp/pkg/primer"
	"github.com/isaacriehm/memory-mcp/pkg/store"
)

const chunkBatchSize = 10

const defaultTaxonomy = "profile\nprojects\norganizations\nconcepts\nreference\nprofile.identity\nprofile.health\nprofile.lifestyle\nprofile.psychology"

// volatilityDeltas maps a section's declared volatility class to how far in
// the future it should next be verified. "static" never expires.
var volatilityDeltas = map[string]*time.Duration{
	"high":   durationPtr(7 * 24 * time.Hour),
	"medium": durationPtr(30 * 24 * time.Hour),
	"low":    durationPtr(365 * 24 * time.Hour),
	"static": nil,
}

func durationPtr(d time.Duration) *time.Duration { return &d }

// ComputeVerifyAfter derives a section's next-verification deadline from its
// volatility class, defaulting unknown classes to the "low" cadence.
func ComputeVerifyAfter(volatilityClass string, from time.Time) *time.Time {
	delta, ok := volatilityDeltas[volatilityClass]
	if !ok {
		delta = volatilityDeltas["low"]
	}
	if delta == nil {
		return nil
	}
	t := from.Add(*delta)
	return &t
}

// Pipeline wires the store and LLM gateway together to run ingestion jobs.
type Pipeline struct {
	store  *store.Store
	llm    *llmgateway.Gateway
	primer *primer.Synthesizer
	cfg    config.Config
}

func New(s *store.Store, llm *llmgateway.Gateway, pr *primer.Synthesizer, cfg config.Config) *Pipeline {
	return &Pipeline{store: s, llm: llm, primer: pr, cfg: cfg}
}

// classifiedSection is one segmented section after embedding and
// duplicate/conflict classification, ready to be folded into a batch.
type classifiedSection struct {
	exists      bool
	effectiveID uuid.UUID // the ID to use for sequence_next chaining
	insert      *store.NewSection
}

// Run processes one ingestion job end to end: prime the active taxonomy,
// segment the text, classify every section concurrently, then persist in
// CHUNK_BATCH_SIZE-sized transactions. It returns the ID of the first
// section produced, the anchor memorize_context callers can pass to
// fetch_document.
func (p *Pipeline) Run(ctx context.Context, text string, ttlDays *int) (uuid.UUID, error) {
	pool := p.store.Pool()

	taxonomyRows, err := p.store.ActiveTaxonomyPaths(ctx, pool, p.cfg.MaxTaxonomyPaths)
	if err != nil {
		return uuid.Nil, err
	}
	activeTaxonomy := defaultTaxonomy
	if len(taxonomyRows) > 0 {
		paths := make([]string, len(taxonomyRows))
		for i, r := range taxonomyRows {
			paths[i] = r.CategoryPath
		}
		activeTaxonomy = joinLines(paths)
	}

	sections := p.llm.Segment(ctx, text, activeTaxonomy)
	now := time.Now().UTC()

	baseMetadata := map[string]any{}
	if ttlDays != nil {
		baseMetadata["ttl_days"] = *ttlDays
	}

	classified := make([]classifiedSection, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	for i, sec := range sections {
		i, sec := i, sec
		g.Go(func() error {
			cs, err := p.classifySection(gctx, sec, baseMetadata, now)
			if err != nil {
				return err
			}
			classified[i] = cs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uuid.Nil, err
	}

	firstID, err := p.persist(ctx, classified, now)
	if err != nil {
		return uuid.Nil, err
	}
	if firstID == uuid.Nil {
		return uuid.Nil, errs.New(errs.NoSectionsProduced, "no sections produced from input text")
	}

	profileChanged := false
	for i, sec := range sections {
		if !classified[i].exists && store.IsProfilePath(sec.CategoryPath) {
			profileChanged = true
			break
		}
	}
	if p.primer != nil {
		if err := p.primer.Synthesize(ctx, profileChanged); err != nil {
			// Primer refresh is best-effort: ingestion has already
			// committed and must not be rolled back over a primer failure.
			slog.Warn("Primer refresh after ingestion failed.", "error", err)
		}
	}

	return firstID, nil
}

// classifySection embeds one section and compares it against the nearest
// active memory in its category subtree, deciding whether it's a fresh
// insert, an exact duplicate, or a conflict to arbitrate.
func (p *Pipeline) classifySection(ctx context.Context, sec llmgateway.Section, baseMetadata map[string]any, now time.Time) (classifiedSection, error) {
	chunkPath := sec.CategoryPath
	if chunkPath == "" {
		chunkPath = "reference.unknown"
	}
	volatility := sec.VolatilityClass
	if volatility == "" {
		volatility = "low"
	}
	verifyAfter := ComputeVerifyAfter(volatility, now)

	chunkID := identity.DeterministicID(sec.Content)
	exists, err := p.store.MemoryExists(ctx, p.store.Pool(), chunkID)
	if err != nil {
		return classifiedSection{}, err
	}
	if exists {
		return classifiedSection{exists: true, effectiveID: chunkID}, nil
	}

	vec, err := p.llm.Embed(ctx, sec.Content)
	if err != nil {
		return classifiedSection{}, err
	}
	vecLit := llmgateway.VectorLiteral(vec)

	nearest, err := p.store.FindNearestActive(ctx, p.store.Pool(), vecLit, chunkPath)
	if err != nil {
		return classifiedSection{}, err
	}

	similarity := 0.0
	if nearest != nil {
		similarity = nearest.Similarity
	}

	metadata := cloneMetadata(baseMetadata)
	if len(sec.Tags) > 0 {
		metadata["tags"] = sec.Tags
	}
	metadata["volatility_class"] = volatility

	switch {
	case nearest != nil && similarity > p.cfg.DupThreshold:
		return classifiedSection{exists: true, effectiveID: nearest.ID}, nil

	case nearest != nil && similarity >= p.cfg.ConflictThreshold && similarity <= p.cfg.DupThreshold:
		resolution := p.llm.EvaluateConflict(ctx, nearest.Content, sec.Content)
		finalVec, err := p.llm.Embed(ctx, resolution.UpdatedText)
		if err != nil {
			return classifiedSection{}, err
		}
		insertID := uuid.New()
		supersedes := nearest.ID
		return classifiedSection{
			exists:      false,
			effectiveID: insertID,
			insert: &store.NewSection{
				ID:              insertID,
				Content:         resolution.UpdatedText,
				VectorLiteral:   llmgateway.VectorLiteral(finalVec),
				CategoryPath:    chunkPath,
				Metadata:        metadata,
				VerifyAfter:     verifyAfter,
				Supersedes:      &supersedes,
				RelatesToThresh: p.cfg.RelatesToThreshold,
			},
		}, nil

	default:
		return classifiedSection{
			exists:      false,
			effectiveID: chunkID,
			insert: &store.NewSection{
				ID:              chunkID,
				Content:         sec.Content,
				VectorLiteral:   vecLit,
				CategoryPath:    chunkPath,
				Metadata:        metadata,
				VerifyAfter:     verifyAfter,
				RelatesToThresh: p.cfg.RelatesToThreshold,
			},
		}, nil
	}
}

// persist writes every classified section in CHUNK_BATCH_SIZE-sized
// transactions, threading sequence_next edges across batch boundaries so
// the chunk order survives isolated commits.
func (p *Pipeline) persist(ctx context.Context, classified []classifiedSection, now time.Time) (uuid.UUID, error) {
	var firstID uuid.UUID
	var prevID uuid.UUID
	havePrev := false

	for start := 0; start < len(classified); start += chunkBatchSize {
		end := start + chunkBatchSize
		if end > len(classified) {
			end = len(classified)
		}
		batch := classified[start:end]

		err := p.store.WithTx(ctx, func(q store.Querier) error {
			for _, cs := range batch {
				if firstID == uuid.Nil {
					firstID = cs.effectiveID
				}
				if !cs.exists {
					if err := p.store.InsertSection(ctx, q, *cs.insert, now); err != nil {
						return err
					}
				} else {
					if err := p.store.TouchMemory(ctx, q, cs.effectiveID, now); err != nil {
						return err
					}
				}
				if havePrev && prevID != cs.effectiveID {
					if err := p.store.LinkSequenceNext(ctx, q, prevID, cs.effectiveID); err != nil {
						return err
					}
				}
				prevID = cs.effectiveID
				havePrev = true
			}
			return nil
		})
		if err != nil {
			return uuid.Nil, err
		}
	}
	return firstID, nil
}

func cloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
