// Package depgraph builds the dependency-edge adjacency index described as
// a supplemented feature: a lightweight, read-only projection over one
// retrieval candidate pool showing which chunks are depended on by which
// other chunks in that same pool, derived from chunk.Dependencies. It is
// not a graph database — the index is rebuilt fresh per retrieval call and
// discarded immediately after, used only to nudge chunks that other
// retrieved chunks depend on earlier in ranked order.
package depgraph

// Edges maps a chunk id to the ids of pool members it depends on.
type Edges map[string][]string

// Build resolves each chunk's dependency symbol names against the pool's
// own Name field, keeping only edges that land on another chunk already
// present in the pool; dependencies on symbols outside the pool are
// dropped rather than guessed at.
func Build(ids, names []string, dependencies [][]string) Edges {
	bySymbol := make(map[string]string, len(ids))
	for i, name := range names {
		if name != "" {
			bySymbol[name] = ids[i]
		}
	}
	edges := make(Edges, len(ids))
	for i, id := range ids {
		for _, dep := range dependencies[i] {
			if definer, ok := bySymbol[dep]; ok && definer != id {
				edges[id] = append(edges[id], definer)
			}
		}
	}
	return edges
}

// DependedOnCounts returns, for each chunk id, how many other pool members
// depend on it.
func DependedOnCounts(edges Edges) map[string]int {
	counts := make(map[string]int)
	for _, deps := range edges {
		for _, d := range deps {
			counts[d]++
		}
	}
	return counts
}
