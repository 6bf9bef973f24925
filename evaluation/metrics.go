package evaluation

import (
	"strings"

	"leafscan/types"

	"gonum.org/v1/gonum/stat"
)

// Binary polarity labels every arbitrary category collapses onto for
// scoring. Reference categories vary by corpus; health polarity is the
// property the system is graded on.
const (
	LabelHealthy  = "leaf_healthy"
	LabelDiseased = "leaf_with_disease"
)

// NormalizeLabel collapses an arbitrary category label onto the binary
// healthy/diseased polarity.
func NormalizeLabel(category string) string {
	if strings.Contains(strings.ToLower(category), "healthy") {
		return LabelHealthy
	}
	return LabelDiseased
}

// ConfidenceBucket summarizes the results in one confidence tier.
type ConfidenceBucket struct {
	Count    int     `json:"count"`
	Accuracy float64 `json:"accuracy"`
}

// RiskGroup summarizes the results that shared one risk level.
type RiskGroup struct {
	Count         int     `json:"count"`
	Accuracy      float64 `json:"accuracy"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgRiskScore  float64 `json:"avg_risk_score"`
}

// Metrics aggregates one full evaluation run. Precision, recall and F1
// are weighted by class support; the confusion matrix rows are true
// labels in Labels order.
type Metrics struct {
	OverallAccuracy float64 `json:"overall_accuracy"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	F1Score         float64 `json:"f1_score"`

	Labels          []string `json:"labels"`
	ConfusionMatrix [][]int  `json:"confusion_matrix"`

	AvgConfidence float64 `json:"avg_confidence"`
	StdConfidence float64 `json:"std_confidence"`
	AvgRiskScore  float64 `json:"avg_risk_score"`

	HighConfidence   ConfidenceBucket `json:"high_confidence"`
	MediumConfidence ConfidenceBucket `json:"medium_confidence"`
	LowConfidence    ConfidenceBucket `json:"low_confidence"`

	RiskAnalysis map[types.RiskLevel]RiskGroup `json:"risk_analysis"`

	TotalTests int `json:"total_tests"`
}

// ComputeMetrics folds per-image results into aggregate statistics. All
// category comparisons use the binary normalization.
func ComputeMetrics(results []TestResult) *Metrics {
	if len(results) == 0 {
		return &Metrics{}
	}

	labels := []string{LabelHealthy, LabelDiseased}
	index := map[string]int{LabelHealthy: 0, LabelDiseased: 1}

	cm := make([][]int, len(labels))
	for i := range cm {
		cm[i] = make([]int, len(labels))
	}

	confidences := make([]float64, len(results))
	riskScores := make([]float64, len(results))
	correct := 0
	for i, r := range results {
		cm[index[NormalizeLabel(r.TrueCategory)]][index[NormalizeLabel(r.PredictedCategory)]]++
		if r.Correct {
			correct++
		}
		confidences[i] = r.Confidence
		riskScores[i] = r.RiskScore
	}

	m := &Metrics{
		Labels:          labels,
		ConfusionMatrix: cm,
		OverallAccuracy: float64(correct) / float64(len(results)),
		TotalTests:      len(results),
		RiskAnalysis:    make(map[types.RiskLevel]RiskGroup),
	}
	m.Precision, m.Recall, m.F1Score = weightedScores(cm)
	m.AvgConfidence, m.StdConfidence = stat.PopMeanStdDev(confidences, nil)
	m.AvgRiskScore = stat.Mean(riskScores, nil)

	m.HighConfidence = bucketFor(results, func(r TestResult) bool { return r.Confidence >= 80 })
	m.MediumConfidence = bucketFor(results, func(r TestResult) bool { return r.Confidence >= 60 && r.Confidence < 80 })
	m.LowConfidence = bucketFor(results, func(r TestResult) bool { return r.Confidence < 60 })

	for _, level := range []types.RiskLevel{types.RiskLow, types.RiskMedium, types.RiskHigh} {
		if group, ok := riskGroupFor(results, level); ok {
			m.RiskAnalysis[level] = group
		}
	}
	return m
}

// weightedScores derives support-weighted precision, recall and F1 from
// a confusion matrix. Classes never predicted or never present
// contribute zero instead of dividing by zero.
func weightedScores(cm [][]int) (precision, recall, f1 float64) {
	n := len(cm)
	total := 0
	for t := 0; t < n; t++ {
		for p := 0; p < n; p++ {
			total += cm[t][p]
		}
	}
	if total == 0 {
		return 0, 0, 0
	}

	for c := 0; c < n; c++ {
		tp := cm[c][c]
		support := 0
		predicted := 0
		for p := 0; p < n; p++ {
			support += cm[c][p]
		}
		for t := 0; t < n; t++ {
			predicted += cm[t][c]
		}

		var prec, rec, fc float64
		if predicted > 0 {
			prec = float64(tp) / float64(predicted)
		}
		if support > 0 {
			rec = float64(tp) / float64(support)
		}
		if prec+rec > 0 {
			fc = 2 * prec * rec / (prec + rec)
		}

		weight := float64(support) / float64(total)
		precision += weight * prec
		recall += weight * rec
		f1 += weight * fc
	}
	return precision, recall, f1
}

func bucketFor(results []TestResult, in func(TestResult) bool) ConfidenceBucket {
	var b ConfidenceBucket
	correct := 0
	for _, r := range results {
		if !in(r) {
			continue
		}
		b.Count++
		if r.Correct {
			correct++
		}
	}
	if b.Count > 0 {
		b.Accuracy = float64(correct) / float64(b.Count)
	}
	return b
}

func riskGroupFor(results []TestResult, level types.RiskLevel) (RiskGroup, bool) {
	var g RiskGroup
	correct := 0
	var confSum, scoreSum float64
	for _, r := range results {
		if r.RiskLevel != level {
			continue
		}
		g.Count++
		if r.Correct {
			correct++
		}
		confSum += r.Confidence
		scoreSum += r.RiskScore
	}
	if g.Count == 0 {
		return g, false
	}
	g.Accuracy = float64(correct) / float64(g.Count)
	g.AvgConfidence = confSum / float64(g.Count)
	g.AvgRiskScore = scoreSum / float64(g.Count)
	return g, true
}
