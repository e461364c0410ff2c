package facematch

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-id/internal/facestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 128

func newStore(t *testing.T, d int) *facestore.Store {
	t.Helper()
	s := facestore.New(facestore.Options{Path: filepath.Join(t.TempDir(), "face_store.json"), Dimension: d})
	require.NoError(t, s.Load())
	return s
}

func enroll(t *testing.T, s *facestore.Store, id string, emb []float32, meta facestore.Metadata) {
	t.Helper()
	_, err := s.Put(facestore.Record{UserID: facestore.UserID(id), Embedding: emb, Metadata: meta})
	require.NoError(t, err)
}

func filled(v float32) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

// offset returns base moved by dx along axis 0 and dy along axis 1.
func offset(base []float32, dx, dy float64) []float32 {
	out := append([]float32(nil), base...)
	out[0] += float32(dx)
	out[1] += float32(dy)
	return out
}

func TestEngine_Scenario(t *testing.T) {
	s := newStore(t, dim)
	user1 := filled(0.1)
	user2 := offset(user1, 0.8, 0)
	enroll(t, s, "1", user1, facestore.Metadata{"name": "Alice"})
	enroll(t, s, "2", user2, facestore.Metadata{"name": "Bob"})
	e := NewEngine(s, Options{})

	require.InDelta(t, 0.8, EuclideanDistance(user1, user2), 1e-6)

	t.Run("exact embedding", func(t *testing.T) {
		m, err := e.Identify(user1, 0.6)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, facestore.UserID("1"), m.UserID)
		assert.Equal(t, 0.0, m.Distance)
		assert.Equal(t, 1.0, m.Confidence)
		assert.Equal(t, "Alice", m.Metadata["name"])
	})

	t.Run("closest within tolerance", func(t *testing.T) {
		probe := offset(user1, 0.15, math.Sqrt(0.0675))
		require.InDelta(t, 0.3, EuclideanDistance(probe, user1), 1e-6)
		require.InDelta(t, 0.7, EuclideanDistance(probe, user2), 1e-6)

		m, err := e.Identify(probe, 0.6)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, facestore.UserID("1"), m.UserID)
		assert.InDelta(t, 0.3, m.Distance, 1e-6)
		assert.InDelta(t, 0.7, m.Confidence, 1e-6)
	})

	t.Run("too far from everyone", func(t *testing.T) {
		probe := offset(user1, 0.4, math.Sqrt(0.65))
		require.InDelta(t, 0.9, EuclideanDistance(probe, user1), 1e-6)
		require.InDelta(t, 0.9, EuclideanDistance(probe, user2), 1e-6)

		m, err := e.Identify(probe, 0.6)
		require.NoError(t, err)
		assert.Nil(t, m)
	})
}

func TestEngine_SelfMatch(t *testing.T) {
	s := newStore(t, 16)
	rng := rand.New(rand.NewSource(7))
	embeddings := map[string][]float32{}
	for i := range 40 {
		emb := make([]float32, 16)
		for j := range emb {
			emb[j] = rng.Float32()
		}
		id := fmt.Sprint(i)
		embeddings[id] = emb
		enroll(t, s, id, emb, nil)
	}
	e := NewEngine(s, Options{})

	for id, emb := range embeddings {
		m, err := e.Identify(emb, 0)
		require.NoError(t, err)
		require.NotNil(t, m, "user %s", id)
		assert.Equal(t, facestore.UserID(id), m.UserID)
		assert.Equal(t, 0.0, m.Distance)
		assert.Equal(t, 1.0, m.Confidence)
	}
}

func TestEngine_TieBreakLowestUserID(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want facestore.UserID
	}{
		{name: "numeric", ids: []string{"10", "2", "33"}, want: "2"},
		{name: "strings", ids: []string{"carol", "alice", "bob"}, want: "alice"},
		{name: "mixed", ids: []string{"zed", "100"}, want: "100"},
	}

	for _, tc := range tests {
		for _, kind := range []IndexKind{IndexLinear, IndexHNSW} {
			t.Run(tc.name+"/"+string(kind), func(t *testing.T) {
				s := newStore(t, 2)
				// All stored points sit on a circle of radius 0.5 around the origin.
				points := [][]float32{{0.5, 0}, {0, 0.5}, {-0.5, 0}}
				for i, id := range tc.ids {
					enroll(t, s, id, points[i], nil)
				}
				e := NewEngine(s, Options{Index: kind, MinRecords: 1})

				m, err := e.Identify([]float32{0, 0}, 0.6)
				require.NoError(t, err)
				require.NotNil(t, m)
				assert.Equal(t, tc.want, m.UserID)
				assert.InDelta(t, 0.5, m.Distance, 1e-9)
			})
		}
	}
}

func TestEngine_ToleranceMonotonicity(t *testing.T) {
	s := newStore(t, 8)
	rng := rand.New(rand.NewSource(42))
	randomVec := func() []float32 {
		v := make([]float32, 8)
		for i := range v {
			v[i] = rng.Float32()
		}
		return v
	}
	for i := range 30 {
		enroll(t, s, fmt.Sprint(i), randomVec(), nil)
	}
	e := NewEngine(s, Options{})

	tolerances := []float64{0, 0.1, 0.3, 0.5, 0.8, 1.2, 2, 10}
	for range 50 {
		probe := randomVec()
		var identifiedAs facestore.UserID
		for _, tol := range tolerances {
			m, err := e.Identify(probe, tol)
			require.NoError(t, err)
			if identifiedAs != "" {
				require.NotNil(t, m, "match lost when tolerance grew to %v", tol)
			}
			if m != nil {
				if identifiedAs != "" {
					assert.Equal(t, identifiedAs, m.UserID)
				}
				identifiedAs = m.UserID
			}
		}
		assert.NotEmpty(t, identifiedAs, "tolerance 10 covers the unit cube")
	}
}

func TestEngine_EmptyStore(t *testing.T) {
	e := NewEngine(newStore(t, dim), Options{})

	m, err := e.Identify(filled(0.1), 0.6)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = e.Identify([]float32{1, 2, 3}, 0.6)
	require.NoError(t, err)
	assert.Nil(t, m)

	c, err := e.Nearest(filled(0.1), 3)
	require.NoError(t, err)
	assert.Empty(t, c)
}

func TestEngine_Errors(t *testing.T) {
	s := newStore(t, dim)
	enroll(t, s, "1", filled(0.1), nil)
	e := NewEngine(s, Options{})

	_, err := e.Identify(make([]float32, 64), 0.6)
	var dm *facestore.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, dim, dm.Expected)
	assert.Equal(t, 64, dm.Actual)

	for _, tol := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		_, err := e.Identify(filled(0.1), tol)
		assert.ErrorIs(t, err, ErrInvalidTolerance)
	}

	unloaded := facestore.New(facestore.Options{Path: filepath.Join(t.TempDir(), "x.json")})
	_, err = NewEngine(unloaded, Options{}).Identify(filled(0.1), 0.6)
	assert.ErrorIs(t, err, facestore.ErrNotLoaded)
}

func TestEngine_Nearest(t *testing.T) {
	s := newStore(t, 1)
	enroll(t, s, "far", []float32{3}, nil)
	enroll(t, s, "b", []float32{1}, nil)
	enroll(t, s, "a", []float32{-1}, nil)
	enroll(t, s, "near", []float32{0.5}, nil)
	e := NewEngine(s, Options{})

	got, err := e.Nearest([]float32{0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, facestore.UserID("near"), got[0].UserID)
	assert.Equal(t, facestore.UserID("a"), got[1].UserID)
	assert.Equal(t, facestore.UserID("b"), got[2].UserID)
	assert.Equal(t, 0.5, got[0].Confidence)
	assert.Equal(t, 0.0, got[1].Confidence)
}

func randomVectors(seed int64, n, d int) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, d)
		for j := range v {
			v[j] = rng.Float32()
		}
		vecs[i] = v
	}
	return vecs
}

func TestEngine_HNSWIdentifyIsExact(t *testing.T) {
	s := newStore(t, 32)
	vecs := randomVectors(1, 300, 32)
	for i, v := range vecs {
		enroll(t, s, fmt.Sprint(i), v, nil)
	}
	e := NewEngine(s, Options{Index: IndexHNSW, MinRecords: 10, Candidates: 4})

	for i, v := range vecs {
		m, err := e.Identify(v, 0.6)
		require.NoError(t, err)
		require.NotNil(t, m, "user %d", i)
		assert.Equal(t, facestore.UserID(fmt.Sprint(i)), m.UserID)
		assert.Equal(t, 0.0, m.Distance)
	}
}

func TestEngine_HNSWDuplicateEmbeddingsTieBreak(t *testing.T) {
	s := newStore(t, 32)
	for i, v := range randomVectors(2, 200, 32) {
		enroll(t, s, fmt.Sprint(i), v, nil)
	}
	dup := randomVectors(3, 1, 32)[0]
	for _, id := range []string{"zed", "mia", "500", "alex"} {
		enroll(t, s, id, dup, nil)
	}
	e := NewEngine(s, Options{Index: IndexHNSW, MinRecords: 10, Candidates: 1})

	m, err := e.Identify(dup, 0)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, facestore.UserID("500"), m.UserID)
}

func TestEngine_HNSWNearestFollowsMutations(t *testing.T) {
	s := newStore(t, 16)
	vecs := randomVectors(4, 300, 16)
	for i, v := range vecs {
		enroll(t, s, fmt.Sprint(i), v, nil)
	}
	e := NewEngine(s, Options{Index: IndexHNSW, MinRecords: 10})

	got, err := e.Nearest(vecs[0], 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 5)
	for i, c := range got {
		var id int
		_, err := fmt.Sscan(string(c.UserID), &id)
		require.NoError(t, err)
		assert.Equal(t, EuclideanDistance(vecs[0], vecs[id]), c.Distance)
		if i > 0 {
			assert.LessOrEqual(t, got[i-1].Distance, c.Distance)
		}
	}

	gen, built := e.index.Generation()
	require.True(t, built)

	require.NoError(t, s.Remove("0"))
	got, err = e.Nearest(vecs[0], 5)
	require.NoError(t, err)
	for _, c := range got {
		assert.NotEqual(t, facestore.UserID("0"), c.UserID)
	}
	newGen, _ := e.index.Generation()
	assert.Greater(t, newGen, gen)

	m, err := e.Identify(vecs[0], 10)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.NotEqual(t, facestore.UserID("0"), m.UserID)
}

func TestParseIndexKind(t *testing.T) {
	k, err := ParseIndexKind("")
	require.NoError(t, err)
	assert.Equal(t, IndexLinear, k)

	k, err = ParseIndexKind("hnsw")
	require.NoError(t, err)
	assert.Equal(t, IndexHNSW, k)

	_, err = ParseIndexKind("faiss")
	assert.Error(t, err)
}
