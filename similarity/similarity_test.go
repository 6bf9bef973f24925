package similarity

import (
	"errors"
	"math"
	"testing"

	"leafscan/config"
	"leafscan/features"
	"leafscan/types"

	"gonum.org/v1/gonum/floats"
)

// fakeStore returns canned matches and records the requested k.
type fakeStore struct {
	matches []types.QueryMatch
	lastK   int
}

func (f *fakeStore) Query(vector []float64, k int) ([]types.QueryMatch, error) {
	f.lastK = k
	if k > 0 && k < len(f.matches) {
		return f.matches[:k], nil
	}
	return f.matches, nil
}

func testEngine(store Querier) *Engine {
	return NewEngine(store, config.Default().Similarity)
}

// sigVector builds a signature carrying the given lesion count and
// coverage; every other value stays zero.
func sigVector(count, coverage float64) []float64 {
	v := make([]float64, features.VectorSize)
	v[features.ShapeStart] = count
	v[features.ShapeStart+3] = coverage
	return v
}

func candidate(id, category string, distance float64, vec []float64) types.QueryMatch {
	return types.QueryMatch{
		ID:       id,
		Distance: distance,
		Metadata: types.ImageMetadata{Path: "/data/" + id, Category: category},
		Vector:   vec,
	}
}

func TestHasLesions(t *testing.T) {
	e := testEngine(&fakeStore{})

	if !e.HasLesions(sigVector(1, 0.002)) {
		t.Error("expected lesions for count 1, coverage 0.002")
	}
	if e.HasLesions(sigVector(0, 0.5)) {
		t.Error("expected no lesions for zero count")
	}
	if e.HasLesions(sigVector(2, 0.001)) {
		t.Error("expected no lesions at the coverage threshold")
	}
	if e.HasLesions(sigVector(1, 0.0005)) {
		t.Error("expected no lesions below the coverage threshold")
	}
}

func TestScore_DisjointStates(t *testing.T) {
	e := testEngine(&fakeStore{})
	healthy := sigVector(0, 0)
	diseased := sigVector(5, 0.1)

	if got := e.score(0.01, healthy, diseased); got != 5.0 {
		t.Errorf("expected disjoint similarity 5.0, got %v", got)
	}
	if got := e.score(0.01, diseased, healthy); got != 5.0 {
		t.Errorf("expected disjoint similarity 5.0 both ways, got %v", got)
	}
}

func TestScore_IdenticalDiseased(t *testing.T) {
	e := testEngine(&fakeStore{})
	v := sigVector(5, 0.1)

	got := e.score(0, v, v)
	if got != 95 {
		t.Errorf("expected the cap 95 for an identical diseased pair, got %v", got)
	}
}

func TestScore_HealthyPair(t *testing.T) {
	e := testEngine(&fakeStore{})

	// base 80, lesion 66.67, area 95 -> 80.5; penalties 0.855; boost 1.2.
	got := e.score(0.2, sigVector(0, 0), sigVector(1, 0.01))
	if math.Abs(got-82.593) > 0.001 {
		t.Errorf("expected 82.593, got %v", got)
	}
}

func TestScore_DiseasedFloor(t *testing.T) {
	e := testEngine(&fakeStore{})

	// Far-apart diseased pair: large deltas, distance near the maximum.
	got := e.score(1.8, sigVector(3, 0.06), sigVector(20, 0.5))
	if got < 30 {
		t.Errorf("expected the diseased floor 30 to hold, got %v", got)
	}
}

func TestScore_Bounds(t *testing.T) {
	e := testEngine(&fakeStore{})
	states := [][]float64{sigVector(0, 0), sigVector(2, 0.03), sigVector(5, 0.1), sigVector(12, 0.4)}
	distances := []float64{0, 0.3, 1, 1.7, 2}

	for _, q := range states {
		for _, c := range states {
			for _, d := range distances {
				got := e.score(d, q, c)
				if got < 0 || got > 95 {
					t.Fatalf("score out of range for d=%v: %v", d, got)
				}
			}
		}
	}
}

func TestWeightVector(t *testing.T) {
	e := testEngine(&fakeStore{})
	ones := make([]float64, features.VectorSize)
	for i := range ones {
		ones[i] = 1
	}

	w := e.weightVector(ones, true)
	if norm := floats.Norm(w, 2); math.Abs(norm-1) > 1e-9 {
		t.Fatalf("expected unit norm, got %v", norm)
	}
	if ratio := w[features.StatsStart] / w[features.HistStart]; math.Abs(ratio-4) > 1e-9 {
		t.Errorf("expected stats/hist weight ratio 4, got %v", ratio)
	}
	if ratio := w[features.PatternStart] / w[features.HistStart]; math.Abs(ratio-2) > 1e-9 {
		t.Errorf("expected pattern/hist weight ratio 2, got %v", ratio)
	}
	if ratio := w[features.ShapeStart] / w[features.TextureStart]; math.Abs(ratio-2.0/1.5) > 1e-9 {
		t.Errorf("expected shape/texture weight ratio %v, got %v", 2.0/1.5, ratio)
	}

	// Without lesions every entry keeps the same relative weight.
	flat := e.weightVector(ones, false)
	want := 1 / math.Sqrt(float64(features.VectorSize))
	for i, v := range flat {
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("expected uniform weight %v, got %v at index %d", want, v, i)
		}
	}
}

func TestRank_ScoresAndSorts(t *testing.T) {
	healthy := sigVector(0, 0)
	store := &fakeStore{matches: []types.QueryMatch{
		candidate("c.jpg", "leaf_healthy", 0.30, sigVector(1, 0.01)),
		candidate("a.jpg", "leaf_healthy", 0.10, healthy),
		candidate("b.jpg", "leaf_healthy", 0.20, healthy),
	}}
	e := testEngine(store)

	matches, err := e.Rank(healthy, Options{Limit: 5})
	if err != nil {
		t.Fatalf("failed to rank: %v", err)
	}
	if store.lastK != 15 {
		t.Errorf("expected over-fetch of 15 candidates, got %d", store.lastK)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Fatalf("matches not sorted: %v before %v", matches[i-1].Similarity, matches[i].Similarity)
		}
	}
	if matches[0].ID != "a.jpg" {
		t.Errorf("expected the closest candidate first, got %s", matches[0].ID)
	}
	if matches[0].Category != "leaf_healthy" {
		t.Errorf("expected category carried over, got %q", matches[0].Category)
	}
}

func TestRank_TruncatesToLimit(t *testing.T) {
	healthy := sigVector(0, 0)
	var cands []types.QueryMatch
	for i := 0; i < 8; i++ {
		cands = append(cands, candidate(string(rune('a'+i))+".jpg", "leaf_healthy", 0.1, healthy))
	}
	e := testEngine(&fakeStore{matches: cands})

	matches, err := e.Rank(healthy, Options{Limit: 4})
	if err != nil {
		t.Fatalf("failed to rank: %v", err)
	}
	if len(matches) != 4 {
		t.Errorf("expected 4 matches, got %d", len(matches))
	}
}

func TestRank_ExcludesID(t *testing.T) {
	healthy := sigVector(0, 0)
	store := &fakeStore{matches: []types.QueryMatch{
		candidate("query.jpg", "leaf_healthy", 0.0, healthy),
		candidate("other.jpg", "leaf_healthy", 0.1, healthy),
	}}
	e := testEngine(store)

	matches, err := e.Rank(healthy, Options{Limit: 5, ExcludeID: "query.jpg"})
	if err != nil {
		t.Fatalf("failed to rank: %v", err)
	}
	for _, m := range matches {
		if m.ID == "query.jpg" {
			t.Fatal("excluded id leaked into the results")
		}
	}
	if len(matches) != 1 {
		t.Errorf("expected 1 match after exclusion, got %d", len(matches))
	}
}

func TestRank_SkipsMalformedVectors(t *testing.T) {
	healthy := sigVector(0, 0)
	store := &fakeStore{matches: []types.QueryMatch{
		candidate("short.jpg", "leaf_healthy", 0.0, []float64{1, 2, 3}),
		candidate("good.jpg", "leaf_healthy", 0.1, healthy),
	}}
	e := testEngine(store)

	matches, err := e.Rank(healthy, Options{Limit: 5})
	if err != nil {
		t.Fatalf("failed to rank: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "good.jpg" {
		t.Fatalf("expected only the well-formed candidate, got %v", matches)
	}
}

func TestRank_InsufficientMatches(t *testing.T) {
	// Every candidate sits in the opposite health state, so every score
	// collapses to the disjoint similarity and falls below the floor.
	store := &fakeStore{matches: []types.QueryMatch{
		candidate("d1.jpg", "leaf_rust", 0.05, sigVector(5, 0.1)),
		candidate("d2.jpg", "leaf_rust", 0.10, sigVector(8, 0.2)),
	}}
	e := testEngine(store)

	_, err := e.Rank(sigVector(0, 0), Options{Limit: 5})
	if !errors.Is(err, ErrInsufficientMatches) {
		t.Fatalf("expected ErrInsufficientMatches, got %v", err)
	}
}

func TestHealthStateOf(t *testing.T) {
	e := testEngine(&fakeStore{})

	cases := []struct {
		count, coverage float64
		want            healthState
	}{
		{0, 0, stateHealthy},
		{1, 0.019, stateHealthy},
		{3, 0.01, stateDiseased},
		{0, 0.06, stateDiseased},
		{2, 0.03, stateIntermediate},
		{1, 0.04, stateIntermediate},
	}
	for _, c := range cases {
		if got := e.healthStateOf(c.count, c.coverage); got != c.want {
			t.Errorf("state for count=%v coverage=%v: expected %v, got %v", c.count, c.coverage, c.want, got)
		}
	}
}
