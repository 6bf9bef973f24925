// Package risk grades how much a classification should be trusted: how
// likely the identified category is to be revoked on expert review.
package risk

import (
	"math"

	"leafscan/config"
	"leafscan/features"
	"leafscan/types"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Factor strings, in rule evaluation order.
const (
	FactorInsufficientData    = "insufficient data"
	FactorLowConfidence       = "low confidence"
	FactorSimilaritySpread    = "high similarity spread"
	FactorCategoryConsistency = "low category consistency"
	FactorSimilarityGap       = "large similarity gap"
	FactorShapeVariability    = "high shape variability"
)

// Predictor evaluates the revocation-risk rules.
type Predictor struct {
	cfg config.RiskConfig
}

// New builds a predictor from its configuration.
func New(cfg config.RiskConfig) *Predictor {
	return &Predictor{cfg: cfg}
}

// Assess derives the risk verdict for one classification. Too few
// similar images is itself the strongest signal: the verdict is HIGH
// without further analysis. Otherwise each rule that fires adds its
// weight to the score, which maps onto the three levels.
func (p *Predictor) Assess(result *types.ClassificationResult) *types.RiskAssessment {
	if result == nil || len(result.SimilarImages) < p.cfg.MinMatches {
		return &types.RiskAssessment{
			Level:   types.RiskHigh,
			Score:   1.0,
			Factors: []string{FactorInsufficientData},
		}
	}

	matches := result.SimilarImages
	similarities := make([]float64, len(matches))
	for i, m := range matches {
		similarities[i] = m.Similarity
	}

	top := 3
	if len(matches) < top {
		top = len(matches)
	}

	spread := stat.PopStdDev(similarities, nil)
	gap := floats.Max(similarities) - floats.Min(similarities[:top])
	consistency := categoryConsistency(matches)
	variability := shapeVariability(matches[:top])

	var factors []string
	score := 0.0
	if result.Confidence < p.cfg.LowConfidence {
		factors = append(factors, FactorLowConfidence)
		score += 0.4
	}
	if spread > p.cfg.SimilaritySpreadMax {
		factors = append(factors, FactorSimilaritySpread)
		score += 0.3
	}
	if consistency < p.cfg.ConsistencyMin {
		factors = append(factors, FactorCategoryConsistency)
		score += 0.3
	}
	if gap > p.cfg.SimilarityGapMax {
		factors = append(factors, FactorSimilarityGap)
		score += 0.2
	}
	if variability > p.cfg.ShapeVariabilityMax {
		factors = append(factors, FactorShapeVariability)
		score += 0.2
	}
	score = math.Min(score, 1.0)

	level := types.RiskLow
	switch {
	case score >= p.cfg.HighThreshold:
		level = types.RiskHigh
	case score >= p.cfg.MediumThreshold:
		level = types.RiskMedium
	}

	return &types.RiskAssessment{Level: level, Score: score, Factors: factors}
}

// categoryConsistency is the dominant category's share of the matches.
func categoryConsistency(matches []types.ScoredMatch) float64 {
	counts := make(map[string]int)
	for _, m := range matches {
		counts[m.Category]++
	}
	dominant := 0
	for _, c := range counts {
		if c > dominant {
			dominant = c
		}
	}
	return float64(dominant) / float64(len(matches))
}

// shapeVariability pools lesion count, coverage and mean lesion area
// across the given matches and returns their joint spread.
func shapeVariability(matches []types.ScoredMatch) float64 {
	var samples []float64
	for _, m := range matches {
		if len(m.Vector) != features.VectorSize {
			continue
		}
		samples = append(samples,
			features.LesionCount(m.Vector),
			features.Coverage(m.Vector),
			features.MeanLesionArea(m.Vector))
	}
	if len(samples) == 0 {
		return 0
	}
	return stat.PopStdDev(samples, nil)
}
