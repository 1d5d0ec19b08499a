package graph

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/oddsmesh/crossarb/internal/domain"
	"github.com/oddsmesh/crossarb/internal/semantic"
)

// Config tunes the engine's recall/precision balance.
type Config struct {
	// EdgeThreshold is the minimum hybrid score (0..100) for an edge. It is
	// deliberately lower than the resolver's acceptance bar: clustering
	// performs the precision pass that pairwise scoring cannot.
	EdgeThreshold float64
	// Resolution is the modularity resolution parameter. 1 is standard.
	Resolution float64
}

func DefaultConfig() Config {
	return Config{EdgeThreshold: 60, Resolution: 1}
}

// Engine builds a weighted similarity graph over a batch of unmatched
// markets from both sides, detects communities, and extracts the best edge
// per source node as a mapping suggestion. It holds no state between runs.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if cfg.EdgeThreshold <= 0 {
		cfg.EdgeThreshold = 60
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = 1
	}
	return &Engine{cfg: cfg, logger: logger.With(slog.String("component", "graph_engine"))}
}

type node struct {
	id     int64
	market domain.Market
	source bool
}

// Resolve runs one batch. Sources are the orphaned markets of the scanning
// venue; candidates are the opposing venue's unmatched universe. The result
// is a set of suggestions, never mappings: promotion happens elsewhere and
// requires repeated agreement or operator sign-off.
func (e *Engine) Resolve(sources, candidates []domain.Market) []domain.MappingSuggestion {
	if len(sources) == 0 || len(candidates) == 0 {
		return nil
	}

	g := simple.NewWeightedUndirectedGraph(0, 0)
	nodes := make(map[int64]node)
	nextID := int64(0)

	addNode := func(m domain.Market, source bool) int64 {
		id := nextID
		nextID++
		g.AddNode(simple.Node(id))
		nodes[id] = node{id: id, market: m, source: source}
		return id
	}

	// Inverted token index over candidate aliases. Lookup cost per source
	// is proportional to its alias tokens, not the candidate count.
	tokenIndex := make(map[string][]int64)
	for _, cand := range candidates {
		id := addNode(cand, false)
		for _, alias := range GenerateAliases(cand.Title) {
			for _, tok := range indexTokens(alias) {
				tokenIndex[tok] = append(tokenIndex[tok], id)
			}
		}
	}

	edges := 0
	for _, src := range sources {
		srcID := addNode(src, true)

		potential := make(map[int64]struct{})
		for _, alias := range GenerateAliases(src.Title) {
			for _, tok := range indexTokens(alias) {
				for _, candID := range tokenIndex[tok] {
					potential[candID] = struct{}{}
				}
			}
		}

		for candID := range potential {
			cand := nodes[candID].market
			score := semantic.HybridScore(src.Title, src.StartTime, cand.Title, cand.StartTime)
			if score >= e.cfg.EdgeThreshold {
				g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(srcID), simple.Node(candID), score))
				edges++
			}
		}
	}
	if edges == 0 {
		return nil
	}
	e.logger.Debug("similarity graph built",
		slog.Int("nodes", len(nodes)),
		slog.Int("edges", edges))

	communities := e.detectCommunities(g)
	e.logger.Debug("communities detected", slog.Int("count", len(communities)))

	now := time.Now().UTC()
	var suggestions []domain.MappingSuggestion
	for _, comm := range communities {
		var srcNodes, candNodes []node
		for _, n := range comm {
			meta := nodes[n.ID()]
			if meta.source {
				srcNodes = append(srcNodes, meta)
			} else {
				candNodes = append(candNodes, meta)
			}
		}
		if len(srcNodes) == 0 || len(candNodes) == 0 {
			continue
		}

		avg := avgEdgeWeight(g, comm)
		inCluster := make(map[int64]struct{}, len(candNodes))
		for _, c := range candNodes {
			inCluster[c.id] = struct{}{}
		}

		for _, s := range srcNodes {
			bestID, bestW := int64(-1), 0.0
			it := g.From(s.id)
			for it.Next() {
				nb := it.Node().ID()
				if _, ok := inCluster[nb]; !ok {
					continue
				}
				if w, ok := g.Weight(s.id, nb); ok && w > bestW {
					bestW, bestID = w, nb
				}
			}
			if bestID < 0 {
				continue
			}
			cand := nodes[bestID].market
			suggestions = append(suggestions, domain.MappingSuggestion{
				ID:                uuid.NewString(),
				SourceVenue:       s.market.Venue,
				SourceID:          s.market.ExternalID,
				TargetVenue:       cand.Venue,
				TargetID:          cand.ExternalID,
				SourceTitle:       s.market.Title,
				TargetTitle:       cand.Title,
				Score:             bestW,
				ClusterConfidence: avg,
				Agreements:        1,
				Status:            domain.SuggestionPending,
				FirstSeen:         now,
				LastSeen:          now,
			})
		}
	}
	return suggestions
}

// detectCommunities runs modularity maximization, falling back to plain
// connected components when it fails. Components overcluster, but a worse
// clustering only lowers suggestion confidence; it never promotes anything.
func (e *Engine) detectCommunities(g *simple.WeightedUndirectedGraph) (out [][]graph.Node) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("modularity detection failed, using connected components", slog.Any("panic", r))
			out = topo.ConnectedComponents(g)
		}
	}()
	reduced := community.Modularize(g, e.cfg.Resolution, rand.NewSource(1))
	return reduced.Communities()
}

func avgEdgeWeight(g *simple.WeightedUndirectedGraph, comm []graph.Node) float64 {
	in := make(map[int64]struct{}, len(comm))
	for _, n := range comm {
		in[n.ID()] = struct{}{}
	}
	var sum float64
	var count int
	for _, n := range comm {
		it := g.From(n.ID())
		for it.Next() {
			nb := it.Node().ID()
			if _, ok := in[nb]; !ok || nb <= n.ID() {
				continue
			}
			if w, ok := g.Weight(n.ID(), nb); ok {
				sum += w
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
