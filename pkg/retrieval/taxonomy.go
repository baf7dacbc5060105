// Package retrieval implements hybrid search, document reconstruction,
// history tracing and taxonomy exploration directly over the store's
// connection pool, mirroring the original service's tools/search.py and
// tools/context.py SQL nearly verbatim.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/isaacriehm/memory-mcp/pkg/errs"
	"github.com/isaacriehm/memory-mcp/pkg/identity"
	"github.com/isaacriehm/memory-mcp/pkg/store"
)

// CategoryCount is one row of a category_path histogram.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// ListCategories returns every active taxonomy path with its memory count,
// most populous first.
func (r *Retrieval) ListCategories(ctx context.Context) ([]CategoryCount, error) {
	rows, err := r.store.Pool().Query(ctx, `
		SELECT category_path::text AS category, COUNT(*) AS count
		FROM memories WHERE supersedes_id IS NULL AND archived_at IS NULL
		GROUP BY category_path ORDER BY count DESC
	`)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to list categories")
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan category row")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveCategoryCounts is ListCategories' query run directly against a
// Querier and with one path excluded, for callers (the primer synthesizer)
// that need the histogram without holding a *Retrieval and without the
// primer's own memory polluting its own taxonomy summary.
func ActiveCategoryCounts(ctx context.Context, q store.Querier, excludePath string) ([]CategoryCount, error) {
	rows, err := q.Query(ctx, `
		SELECT category_path::text AS category, COUNT(*) AS count
		FROM memories
		WHERE supersedes_id IS NULL AND archived_at IS NULL
		  AND category_path != $1::ltree
		GROUP BY category_path ORDER BY category_path ASC
	`, excludePath)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to fetch active category counts")
	}
	defer rows.Close()

	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan category row")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ExploreTaxonomy renders the full, uncollapsed subtree rooted at path, for
// drilling into a branch the primer's summary collapsed.
func (r *Retrieval) ExploreTaxonomy(ctx context.Context, path string) (tree string, total int, categories []CategoryCount, err error) {
	segments := strings.Split(path, ".")
	safeSegments := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			continue
		}
		safeSegments = append(safeSegments, identity.SanitizeLabel(s))
	}
	safePath := "reference"
	if len(safeSegments) > 0 {
		safePath = strings.Join(safeSegments, ".")
	}

	rows, qerr := r.store.Pool().Query(ctx, `
		SELECT category_path::text AS category, COUNT(*) AS count
		FROM memories
		WHERE category_path <@ $1::ltree AND supersedes_id IS NULL AND archived_at IS NULL
		GROUP BY category_path ORDER BY category_path ASC
	`, safePath)
	if qerr != nil {
		return "", 0, nil, errs.Wrap(errs.StoreUnavailable, qerr, "failed to explore taxonomy")
	}
	defer rows.Close()

	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return "", 0, nil, errs.Wrap(errs.StoreUnavailable, err, "failed to scan category row")
		}
		categories = append(categories, c)
		total += c.Count
	}
	if err := rows.Err(); err != nil {
		return "", 0, nil, errs.Wrap(errs.StoreUnavailable, err, "failed to read taxonomy rows")
	}

	if len(categories) == 0 {
		return "(empty)", 0, nil, nil
	}
	return BuildTaxonomyTree(categories, 0, 0), total, categories, nil
}

type taxonomyNode struct {
	count    int
	children map[string]*taxonomyNode
}

func newTaxonomyNode() *taxonomyNode {
	return &taxonomyNode{children: make(map[string]*taxonomyNode)}
}

func countSubtreeNodes(children map[string]*taxonomyNode) int {
	total := len(children)
	for _, n := range children {
		total += countSubtreeNodes(n.children)
	}
	return total
}

// BuildTaxonomyTree renders category-path rows as an indented tree, exactly
// as the system primer presents the knowledge base's shape. maxDepth and
// maxBranchNodes of 0 mean "unbounded" (no collapsing) — ExploreTaxonomy
// calls it that way to always show the full subtree, while the primer
// synthesizer caps both to keep the primer compact.
func BuildTaxonomyTree(categories []CategoryCount, maxDepth, maxBranchNodes int) string {
	root := newTaxonomyNode()
	for _, c := range categories {
		parts := strings.Split(c.Category, ".")
		node := root
		for _, part := range parts {
			child, ok := node.children[part]
			if !ok {
				child = newTaxonomyNode()
				node.children[part] = child
			}
			child.count += c.Count
			node = child
		}
	}

	var lines []string
	var render func(node map[string]*taxonomyNode, depth int, pathPrefix string)
	render = func(node map[string]*taxonomyNode, depth int, pathPrefix string) {
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			info := node[key]
			children := info.children
			currentPath := key
			if pathPrefix != "" {
				currentPath = pathPrefix + "." + key
			}
			indent := ""
			if depth > 0 {
				indent = strings.Repeat("│   ", depth) + "├── "
			}

			subtreeNodes := countSubtreeNodes(children)
			shouldCollapse := len(children) > 0 && ((maxDepth > 0 && depth >= maxDepth) ||
				(maxBranchNodes > 0 && subtreeNodes > maxBranchNodes))

			switch {
			case shouldCollapse:
				lines = append(lines, fmt.Sprintf("%s%s/ (%d) [+%d more → explore_taxonomy('%s')]",
					indent, key, info.count, subtreeNodes, currentPath))
			case len(children) > 0:
				childKeys := make([]string, 0, len(children))
				for k := range children {
					childKeys = append(childKeys, k)
				}
				sort.Strings(childKeys)

				var leafChildren, branchChildren []string
				for _, k := range childKeys {
					if len(children[k].children) == 0 {
						leafChildren = append(leafChildren, k)
					} else {
						branchChildren = append(branchChildren, k)
					}
				}
				if len(leafChildren) > 0 && len(branchChildren) == 0 {
					lines = append(lines, fmt.Sprintf("%s%s/ (%d) — %s", indent, key, info.count, strings.Join(leafChildren, ", ")))
				} else {
					lines = append(lines, fmt.Sprintf("%s%s/ (%d)", indent, key, info.count))
					render(children, depth+1, currentPath)
				}
			default:
				lines = append(lines, fmt.Sprintf("%s%s [%d]", indent, key, info.count))
			}
		}
	}
	render(root.children, 0, "")
	return strings.Join(lines, "\n")
}

// Retrieval bundles the store handle every operation in this package queries
// through.
type Retrieval struct {
	store *store.Store
}

// New constructs a Retrieval bound to a store.
func New(s *store.Store) *Retrieval {
	return &Retrieval{store: s}
}
