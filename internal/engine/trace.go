package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/calvinalkan/agent-journal/internal/journal"
)

// Direction selects which way a causality trace walks.
type Direction string

const (
	// Backward follows caused-by links from the root towards its causes.
	Backward Direction = "backward"

	// Forward finds entries that name the root (transitively) as a cause.
	Forward Direction = "forward"

	// Both walks in both directions from the root.
	Both Direction = "both"
)

// DefaultTraceDepth bounds a trace when the caller does not set one.
const DefaultTraceDepth = 10

// Edge is one causal link: From caused To.
type Edge struct {
	From string
	To   string
}

// Graph is the result of a causality trace.
type Graph struct {
	Root      string
	Direction Direction

	// Nodes maps entry IDs to their entries. The root is always present.
	Nodes map[string]*journal.Entry

	// Edges lists the causal links between nodes, cause first.
	Edges []Edge
}

// Trace builds the causality graph around entryID. Causality is declared
// forward-only in the log (entries name what caused them), so the backward
// walk follows links directly while the forward walk scans all entries per
// depth level for declarations pointing into the frontier. Links to entries
// that do not exist are skipped, not errors; a missing root is one.
func (e *Engine) Trace(ctx context.Context, entryID string, direction Direction, maxDepth int) (*Graph, error) {
	if direction == "" {
		direction = Both
	}

	if direction != Backward && direction != Forward && direction != Both {
		return nil, fmt.Errorf("trace: unknown direction %q", direction)
	}

	if maxDepth <= 0 {
		maxDepth = DefaultTraceDepth
	}

	entries, err := e.loadEntries(ctx, "", "")
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*journal.Entry, len(entries))
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}

	root, ok := byID[entryID]
	if !ok {
		return nil, fmt.Errorf("trace %s: %w", entryID, ErrInvalidReference)
	}

	g := &Graph{
		Root:      entryID,
		Direction: direction,
		Nodes:     map[string]*journal.Entry{entryID: root},
	}

	if direction == Backward || direction == Both {
		g.traceBackward(byID, entryID, maxDepth, map[string]bool{entryID: true})
	}

	if direction == Forward || direction == Both {
		g.traceForward(entries, entryID, maxDepth)
	}

	sortEdges(g.Edges)

	return g, nil
}

// traceBackward walks caused-by links depth-first from id.
func (g *Graph) traceBackward(byID map[string]*journal.Entry, id string, depth int, visited map[string]bool) {
	if depth == 0 {
		return
	}

	for _, causeID := range g.Nodes[id].CausedBy {
		cause, ok := byID[causeID]
		if !ok {
			continue
		}

		g.Edges = append(g.Edges, Edge{From: causeID, To: id})

		if visited[causeID] {
			continue
		}

		visited[causeID] = true
		g.Nodes[causeID] = cause
		g.traceBackward(byID, causeID, depth-1, visited)
	}
}

// traceForward expands one frontier level at a time, scanning every entry
// for caused-by declarations pointing into the frontier. The full scan per
// level is deliberate: effects are only discoverable by reading what later
// entries declared.
func (g *Graph) traceForward(entries []journal.Entry, rootID string, maxDepth int) {
	visited := map[string]bool{rootID: true}
	frontier := map[string]bool{rootID: true}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		next := make(map[string]bool)

		for i := range entries {
			effect := &entries[i]

			for _, causeID := range effect.CausedBy {
				if !frontier[causeID] {
					continue
				}

				g.Edges = append(g.Edges, Edge{From: causeID, To: effect.ID})

				if !visited[effect.ID] {
					visited[effect.ID] = true
					g.Nodes[effect.ID] = effect
					next[effect.ID] = true
				}
			}
		}

		frontier = next
	}
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}

		return edges[i].To < edges[j].To
	})
}
