// Package similarity ranks stored signatures against a query signature.
// The raw store distance is only the starting point: the query is
// reweighted block by block depending on lesion evidence, and every
// candidate's score is calibrated against the agreement between the two
// leaves' disease states.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"leafscan/config"
	"leafscan/features"
	"leafscan/types"

	"gonum.org/v1/gonum/floats"
)

// ErrInsufficientMatches reports that no stored signature cleared the
// similarity floor.
var ErrInsufficientMatches = errors.New("no sufficiently similar reference images")

// Querier is the slice of the feature store the engine needs.
type Querier interface {
	Query(vector []float64, k int) ([]types.QueryMatch, error)
}

// Engine scores store candidates against query signatures.
type Engine struct {
	store Querier
	cfg   config.SimilarityConfig
}

// NewEngine builds an engine over an opened store.
func NewEngine(store Querier, cfg config.SimilarityConfig) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// Options control one ranking call.
type Options struct {
	Limit     int    // ranked matches to return
	ExcludeID string // drop the query's own stored record, if any
}

// HasLesions reports whether a signature carries usable disease
// evidence: at least one lesion covering a non-trivial leaf fraction.
func (e *Engine) HasLesions(vector []float64) bool {
	return features.LesionCount(vector) > 0 && features.Coverage(vector) > e.cfg.MinLesionCoverage
}

// Rank fetches candidates for the query signature, scores each one and
// returns the top matches by calibrated similarity, best first. The
// store is over-fetched so that candidates discarded during calibration
// do not starve the result.
func (e *Engine) Rank(vector []float64, opts Options) ([]types.ScoredMatch, error) {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}

	weighted := e.weightVector(vector, e.HasLesions(vector))

	candidates, err := e.store.Query(weighted, opts.Limit*e.cfg.OverFetch)
	if err != nil {
		return nil, fmt.Errorf("cannot query feature store: %v", err)
	}

	scored := make([]types.ScoredMatch, 0, len(candidates))
	for _, cand := range candidates {
		if opts.ExcludeID != "" && cand.ID == opts.ExcludeID {
			continue
		}
		if len(cand.Vector) != features.VectorSize {
			continue
		}
		sim := e.score(cand.Distance, vector, cand.Vector)
		if sim < e.cfg.MinSimilarity {
			continue
		}
		scored = append(scored, types.ScoredMatch{
			ID:         cand.ID,
			Category:   cand.Metadata.Category,
			Similarity: sim,
			Metadata:   cand.Metadata,
			Vector:     cand.Vector,
		})
	}
	if len(scored) == 0 {
		return nil, ErrInsufficientMatches
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	return scored, nil
}

// weightVector applies the adaptive per-block weights and returns the
// L2-normalized query. With lesions present, statistics and shape
// dominate while raw color histograms recede; a clean leaf keeps every
// block at unit weight.
func (e *Engine) weightVector(vector []float64, hasLesions bool) []float64 {
	weighted := make([]float64, len(vector))
	copy(weighted, vector)

	if hasLesions {
		scaleBlock(weighted, features.HistStart, features.HistEnd, e.cfg.HistWeight)
		scaleBlock(weighted, features.StatsStart, features.StatsEnd, e.cfg.StatsWeight)
		scaleBlock(weighted, features.TextureStart, features.TextureEnd, e.cfg.TextureWeight)
		scaleBlock(weighted, features.ShapeStart, features.ShapeEnd, e.cfg.ShapeWeight)
	}

	if norm := floats.Norm(weighted, 2); norm > 0 {
		floats.Scale(1/norm, weighted)
	}
	return weighted
}

func scaleBlock(v []float64, start, end int, w float64) {
	for i := start; i < end && i < len(v); i++ {
		v[i] *= w
	}
}

// healthState is the coarse disease grade of one signature.
type healthState int

const (
	stateIntermediate healthState = iota
	stateHealthy
	stateDiseased
)

func (e *Engine) healthStateOf(count, coverage float64) healthState {
	switch {
	case count >= e.cfg.DiseasedMinLesions || coverage > e.cfg.DiseasedMinCoverage:
		return stateDiseased
	case count <= e.cfg.HealthyMaxLesions && coverage < e.cfg.HealthyMaxCoverage:
		return stateHealthy
	default:
		return stateIntermediate
	}
}

// score calibrates one candidate's 0-100 similarity from its raw store
// distance and both signatures' lesion evidence.
func (e *Engine) score(distance float64, query, candidate []float64) float64 {
	qCount, qCov := features.LesionCount(query), features.Coverage(query)
	cCount, cCov := features.LesionCount(candidate), features.Coverage(candidate)

	qState := e.healthStateOf(qCount, qCov)
	cState := e.healthStateOf(cCount, cCov)

	// A confidently clean leaf never resembles a clearly diseased one,
	// whatever the color distance says.
	if (qState == stateHealthy && cState == stateDiseased) ||
		(qState == stateDiseased && cState == stateHealthy) {
		return e.cfg.DisjointSimilarity
	}

	countDelta := math.Abs(qCount - cCount)
	covDelta := math.Abs(qCov - cCov)

	base := 100 * (1 - distance)
	lesionSim := 100 * (1 - countDelta/(math.Max(qCount, cCount)+2))
	areaSim := 100 * (1 - math.Min(1, covDelta/e.cfg.CoverageDeltaScale))

	var wBase, wLesion, wArea float64
	switch {
	case qState == stateHealthy && cState == stateHealthy:
		wBase, wLesion, wArea = 0.4, 0.3, 0.3
	case qState == stateDiseased && cState == stateDiseased:
		wBase, wLesion, wArea = 0.2, 0.5, 0.3
	default:
		wBase, wLesion, wArea = 0.3, 0.4, 0.3
	}
	sim := wBase*base + wLesion*lesionSim + wArea*areaSim

	sim *= countPenalty(countDelta)
	sim *= coveragePenalty(covDelta)

	if countDelta <= 2 && covDelta <= 0.05 {
		sim = math.Min(sim*e.cfg.SmallDeltaBoost, 100)
	}
	if qState == stateDiseased && cState == stateDiseased {
		sim = math.Max(sim, e.cfg.DiseasedFloor)
	}

	return math.Max(0, math.Min(sim, e.cfg.SimilarityCap))
}

func countPenalty(delta float64) float64 {
	switch {
	case delta <= 2:
		return 0.90
	case delta <= 4:
		return 0.80
	case delta <= 6:
		return 0.70
	default:
		return 0.60
	}
}

func coveragePenalty(delta float64) float64 {
	switch {
	case delta <= 0.05:
		return 0.95
	case delta <= 0.10:
		return 0.85
	case delta <= 0.15:
		return 0.75
	default:
		return 0.65
	}
}
