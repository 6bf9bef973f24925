// Package classifier turns similarity-ranked matches into a category
// verdict with a calibrated confidence.
package classifier

import (
	"errors"
	"math"
	"sort"
	"strings"

	"leafscan/config"
	"leafscan/types"
)

// ErrNoCandidates reports a classification attempt with no scored
// matches to vote.
var ErrNoCandidates = errors.New("no scored matches to classify")

// Classifier aggregates top-match votes into a verdict.
type Classifier struct {
	cfg config.ClassifierConfig
}

// New builds a classifier from its configuration.
func New(cfg config.ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// categoryTally accumulates one category's evidence over the top matches.
type categoryTally struct {
	count int
	sum   float64
	max   float64
}

// Classify votes the top matches into a category. The best single match
// carries the verdict unless another category dominates the slots. The
// confidence blends best similarity, slot share and the margin over the
// runner-up, with a boost when the verdict's polarity agrees with the
// query's own lesion evidence.
func (c *Classifier) Classify(matches []types.ScoredMatch, hasLesions bool) (*types.ClassificationResult, error) {
	if len(matches) == 0 {
		return nil, ErrNoCandidates
	}

	top := make([]types.ScoredMatch, len(matches))
	copy(top, matches)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Similarity > top[j].Similarity
	})
	if len(top) > c.cfg.TopK {
		top = top[:c.cfg.TopK]
	}

	// Tally in first-appearance order so ties resolve the same way on
	// every run.
	var order []string
	tallies := make(map[string]*categoryTally)
	for _, m := range top {
		t, ok := tallies[m.Category]
		if !ok {
			t = &categoryTally{}
			tallies[m.Category] = t
			order = append(order, m.Category)
		}
		t.count++
		t.sum += m.Similarity
		if m.Similarity > t.max {
			t.max = m.Similarity
		}
	}

	best := top[0]
	winner := best.Category
	for _, name := range order {
		if name != best.Category && tallies[name].count >= c.cfg.DominanceCount {
			winner = name
			break
		}
	}

	var totalSum float64
	for _, t := range tallies {
		totalSum += t.sum
	}
	distribution := make(map[string]float64, len(tallies))
	if totalSum > 0 {
		for name, t := range tallies {
			distribution[name] = t.sum / totalSum * 100
		}
	}

	margin := 1.0
	if len(order) > 1 {
		var runnerUp float64
		for _, name := range order {
			if name == winner {
				continue
			}
			if tallies[name].max > runnerUp {
				runnerUp = tallies[name].max
			}
		}
		margin = (tallies[winner].max - runnerUp) / 100
	}

	winnerShare := float64(tallies[winner].count) / float64(c.cfg.TopK)
	confidence := 100 * (0.4*best.Similarity/100 + 0.3*winnerShare + 0.3*margin)
	if categoryIsHealthy(winner) != hasLesions {
		confidence = math.Min(confidence*c.cfg.PolarityBoost, 100)
	}
	confidence = math.Max(0, math.Min(confidence, 100))

	return &types.ClassificationResult{
		IdentifiedCategory:   winner,
		Confidence:           confidence,
		BestMatch:            best.Similarity,
		CategoryDistribution: distribution,
		SimilarImages:        top,
		HasLesions:           hasLesions,
	}, nil
}

// categoryIsHealthy maps an arbitrary category label onto the
// healthy/diseased polarity.
func categoryIsHealthy(category string) bool {
	return strings.Contains(strings.ToLower(category), "healthy")
}
