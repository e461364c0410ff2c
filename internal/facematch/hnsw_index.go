package facematch

import (
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-id/internal/facestore"
)

// HNSWIndex is an approximate nearest-neighbour graph over one store
// snapshot. It is rebuilt lazily whenever a search sees a snapshot of a
// different generation, so it never has to track individual mutations.
type HNSWIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[int] // key = position in records
	records    []facestore.Record
	generation uint64
	built      bool

	maxNeighbors int
	efSearch     int
}

// NewHNSWIndex creates an empty index with the given graph parameters.
func NewHNSWIndex(maxNeighbors, efSearch int) *HNSWIndex {
	return &HNSWIndex{maxNeighbors: maxNeighbors, efSearch: efSearch}
}

func (h *HNSWIndex) current(snap *facestore.Snapshot) bool {
	return h.built && h.generation == snap.Generation && len(h.records) == len(snap.Records)
}

// build replaces the graph with one built from snap. Callers hold h.mu.
func (h *HNSWIndex) build(snap *facestore.Snapshot) {
	g := hnsw.NewGraph[int]()
	g.M = h.maxNeighbors
	g.Ml = 1.0 / float64(h.maxNeighbors)
	g.EfSearch = h.efSearch
	g.Distance = hnsw.EuclideanDistance

	for i := range snap.Records {
		g.Add(hnsw.MakeNode(i, snap.Records[i].Embedding))
	}

	h.graph = g
	h.records = snap.Records
	h.generation = snap.Generation
	h.built = true
}

// Search returns up to k records of snap that are close to probe. The
// result is approximate: it can miss the true nearest record.
func (h *HNSWIndex) Search(snap *facestore.Snapshot, probe []float32, k int) []facestore.Record {
	if snap.Len() == 0 || k <= 0 {
		return nil
	}

	h.mu.RLock()
	if !h.current(snap) {
		h.mu.RUnlock()
		h.mu.Lock()
		if !h.current(snap) {
			h.build(snap)
		}
		h.mu.Unlock()
		h.mu.RLock()
	}
	defer h.mu.RUnlock()

	// Another reader may have rebuilt for a different generation between
	// the unlock and relock; fall back to the full snapshot then.
	if !h.current(snap) {
		return snap.Records
	}

	neighbors := h.graph.Search(probe, k)
	out := make([]facestore.Record, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, h.records[n.Key])
	}
	return out
}

// Generation returns the snapshot generation the graph was built from,
// and false if nothing has been built yet.
func (h *HNSWIndex) Generation() (uint64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation, h.built
}
