// Package facematch identifies a probe embedding against the enrolled
// records of a face store.
//
// Identification always scans every record and picks the one with the
// minimum Euclidean distance. Equidistant records are resolved in favour
// of the lowest user ID (facestore.UserID.Compare), independent of
// tolerance, so raising the tolerance can only turn "not identified" into
// a match for the same candidate. The optional HNSW graph only speeds up
// Nearest, whose ranked list is then approximate.
package facematch

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/facestore"
)

// ErrInvalidTolerance is returned for negative or non-finite tolerances.
var ErrInvalidTolerance = errors.New("tolerance must be a finite number >= 0")

// SnapshotSource provides read-consistent views of the store.
type SnapshotSource interface {
	Snapshot() (*facestore.Snapshot, error)
}

// Match is a successful identification.
type Match struct {
	UserID     facestore.UserID   `json:"user_id"`
	Distance   float64            `json:"distance"`
	Confidence float64            `json:"confidence"`
	Metadata   facestore.Metadata `json:"metadata"`
}

// Candidate is one entry of a ranked neighbour list.
type Candidate struct {
	UserID     facestore.UserID `json:"user_id"`
	Distance   float64          `json:"distance"`
	Confidence float64          `json:"confidence"`
}

// IndexKind selects how candidates are gathered.
type IndexKind string

const (
	// IndexLinear scans every record.
	IndexLinear IndexKind = "linear"
	// IndexHNSW gathers Nearest candidates from an HNSW graph. The list
	// may miss true neighbours. Stores smaller than MinRecords and every
	// Identify call still use the linear scan.
	IndexHNSW IndexKind = "hnsw"
)

// ParseIndexKind validates an index name; empty means linear.
func ParseIndexKind(s string) (IndexKind, error) {
	switch IndexKind(s) {
	case "", IndexLinear:
		return IndexLinear, nil
	case IndexHNSW:
		return IndexHNSW, nil
	default:
		return "", fmt.Errorf("unknown match index %q (want linear or hnsw)", s)
	}
}

// Options configures an Engine.
type Options struct {
	Index        IndexKind
	MaxNeighbors int
	EfSearch     int
	Candidates   int
	MinRecords   int
}

// Engine answers identification queries. It never mutates the store.
type Engine struct {
	source     SnapshotSource
	index      *HNSWIndex
	candidates int
	minRecords int
}

// NewEngine creates an engine reading from source.
func NewEngine(source SnapshotSource, opts Options) *Engine {
	e := &Engine{source: source}
	if opts.Index == IndexHNSW {
		m := cmpOr(opts.MaxNeighbors, constants.HNSWMaxNeighbors)
		ef := cmpOr(opts.EfSearch, constants.HNSWEfSearch)
		e.index = NewHNSWIndex(m, ef)
		e.candidates = cmpOr(opts.Candidates, constants.HNSWCandidates)
		e.minRecords = cmpOr(opts.MinRecords, constants.HNSWMinRecords)
	}
	return e
}

func cmpOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func validateTolerance(tolerance float64) error {
	if math.IsNaN(tolerance) || math.IsInf(tolerance, 0) || tolerance < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTolerance, tolerance)
	}
	return nil
}

// Identify returns the closest record if its distance is within
// tolerance, or nil when nobody is identified. An empty store always
// yields nil.
func (e *Engine) Identify(probe []float32, tolerance float64) (*Match, error) {
	if err := validateTolerance(tolerance); err != nil {
		return nil, err
	}
	snap, err := e.source.Snapshot()
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return nil, nil
	}
	if len(probe) != snap.Dimension {
		return nil, &facestore.DimensionMismatchError{Expected: snap.Dimension, Actual: len(probe)}
	}

	best, dist := closest(snap.Records, probe)
	if dist > tolerance {
		return nil, nil
	}
	return &Match{
		UserID:     best.UserID,
		Distance:   dist,
		Confidence: Confidence(dist),
		Metadata:   best.Metadata.Clone(),
	}, nil
}

// Nearest returns up to k records ordered by distance, then by user ID.
// With the HNSW index on a large store the candidates come from the graph,
// so a true neighbour can be missing; distances are always exact.
func (e *Engine) Nearest(probe []float32, k int) ([]Candidate, error) {
	snap, err := e.source.Snapshot()
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 || k <= 0 {
		return []Candidate{}, nil
	}
	if len(probe) != snap.Dimension {
		return nil, &facestore.DimensionMismatchError{Expected: snap.Dimension, Actual: len(probe)}
	}

	pool := e.nearestPool(snap, probe, k)
	out := make([]Candidate, len(pool))
	for i := range pool {
		d := EuclideanDistance(probe, pool[i].Embedding)
		out[i] = Candidate{UserID: pool[i].UserID, Distance: d, Confidence: Confidence(d)}
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		if a.Distance != b.Distance {
			if a.Distance < b.Distance {
				return -1
			}
			return 1
		}
		return a.UserID.Compare(b.UserID)
	})
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// nearestPool returns the records Nearest ranks for probe.
func (e *Engine) nearestPool(snap *facestore.Snapshot, probe []float32, k int) []facestore.Record {
	if e.index == nil || snap.Len() < e.minRecords {
		return snap.Records
	}
	return e.index.Search(snap, probe, max(k, e.candidates))
}

// closest scans records and keeps the minimum distance; on equal distance
// the lower user ID wins.
func closest(records []facestore.Record, probe []float32) (facestore.Record, float64) {
	var best facestore.Record
	bestDist := math.Inf(1)
	for i := range records {
		d := EuclideanDistance(probe, records[i].Embedding)
		if d < bestDist || (d == bestDist && records[i].UserID.Compare(best.UserID) < 0) {
			best = records[i]
			bestDist = d
		}
	}
	return best, bestDist
}
