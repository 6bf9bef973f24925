package evaluation

import (
	"math"
	"testing"

	"leafscan/types"
)

func testResult(trueCat, predCat string, conf float64, level types.RiskLevel, score float64) TestResult {
	return TestResult{
		ImagePath:         "/test/" + trueCat + "/img.jpg",
		TrueCategory:      trueCat,
		PredictedCategory: predCat,
		Confidence:        conf,
		RiskLevel:         level,
		RiskScore:         score,
		Correct:           NormalizeLabel(trueCat) == NormalizeLabel(predCat),
	}
}

func fourResults() []TestResult {
	return []TestResult{
		testResult("leaf_healthy", "leaf_healthy", 85, types.RiskLow, 0.1),
		testResult("leaf_healthy", "leaf_rust", 55, types.RiskHigh, 0.9),
		testResult("leaf_rust", "leaf_spot", 75, types.RiskLow, 0.2),
		testResult("leaf_blight", "leaf_rust", 65, types.RiskMedium, 0.5),
	}
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestNormalizeLabel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"leaf_healthy", LabelHealthy},
		{"Tomato_Healthy", LabelHealthy},
		{"HEALTHY leaf", LabelHealthy},
		{"leaf_with_disease", LabelDiseased},
		{"rust", LabelDiseased},
		{"", LabelDiseased},
	}
	for _, c := range cases {
		if got := NormalizeLabel(c.in); got != c.want {
			t.Errorf("NormalizeLabel(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(fourResults())

	if m.TotalTests != 4 {
		t.Fatalf("expected 4 tests, got %d", m.TotalTests)
	}
	if !floatEq(m.OverallAccuracy, 0.75) {
		t.Errorf("expected accuracy 0.75, got %v", m.OverallAccuracy)
	}
	if !floatEq(m.Precision, 5.0/6.0) {
		t.Errorf("expected weighted precision %v, got %v", 5.0/6.0, m.Precision)
	}
	if !floatEq(m.Recall, 0.75) {
		t.Errorf("expected weighted recall 0.75, got %v", m.Recall)
	}
	if !floatEq(m.F1Score, 11.0/15.0) {
		t.Errorf("expected weighted F1 %v, got %v", 11.0/15.0, m.F1Score)
	}
	if !floatEq(m.AvgConfidence, 70) {
		t.Errorf("expected average confidence 70, got %v", m.AvgConfidence)
	}
	if !floatEq(m.AvgRiskScore, 0.425) {
		t.Errorf("expected average risk score 0.425, got %v", m.AvgRiskScore)
	}
}

func TestComputeMetrics_ConfusionMatrix(t *testing.T) {
	m := ComputeMetrics(fourResults())

	if len(m.Labels) != 2 || m.Labels[0] != LabelHealthy || m.Labels[1] != LabelDiseased {
		t.Fatalf("unexpected labels: %v", m.Labels)
	}

	want := [][]int{{1, 1}, {0, 2}}
	for i := range want {
		for j := range want[i] {
			if m.ConfusionMatrix[i][j] != want[i][j] {
				t.Errorf("confusion[%d][%d]: expected %d, got %d", i, j, want[i][j], m.ConfusionMatrix[i][j])
			}
		}
	}
}

func TestComputeMetrics_ConfidenceBuckets(t *testing.T) {
	m := ComputeMetrics(fourResults())

	if m.HighConfidence.Count != 1 || !floatEq(m.HighConfidence.Accuracy, 1.0) {
		t.Errorf("high bucket: expected 1 result at accuracy 1.0, got %+v", m.HighConfidence)
	}
	if m.MediumConfidence.Count != 2 || !floatEq(m.MediumConfidence.Accuracy, 1.0) {
		t.Errorf("medium bucket: expected 2 results at accuracy 1.0, got %+v", m.MediumConfidence)
	}
	if m.LowConfidence.Count != 1 || m.LowConfidence.Accuracy != 0 {
		t.Errorf("low bucket: expected 1 result at accuracy 0, got %+v", m.LowConfidence)
	}
}

func TestComputeMetrics_RiskAnalysis(t *testing.T) {
	m := ComputeMetrics(fourResults())

	low, ok := m.RiskAnalysis[types.RiskLow]
	if !ok {
		t.Fatal("expected a LOW risk group")
	}
	if low.Count != 2 || !floatEq(low.Accuracy, 1.0) || !floatEq(low.AvgConfidence, 80) || !floatEq(low.AvgRiskScore, 0.15) {
		t.Errorf("unexpected LOW group: %+v", low)
	}

	high, ok := m.RiskAnalysis[types.RiskHigh]
	if !ok {
		t.Fatal("expected a HIGH risk group")
	}
	if high.Count != 1 || high.Accuracy != 0 || !floatEq(high.AvgConfidence, 55) {
		t.Errorf("unexpected HIGH group: %+v", high)
	}
}

func TestComputeMetrics_OmitsEmptyRiskGroups(t *testing.T) {
	results := []TestResult{
		testResult("leaf_healthy", "leaf_healthy", 85, types.RiskLow, 0.1),
	}
	m := ComputeMetrics(results)

	if _, ok := m.RiskAnalysis[types.RiskHigh]; ok {
		t.Error("expected no HIGH group when no result carries it")
	}
	if _, ok := m.RiskAnalysis[types.RiskLow]; !ok {
		t.Error("expected a LOW group")
	}
}

func TestComputeMetrics_Empty(t *testing.T) {
	m := ComputeMetrics(nil)
	if m.TotalTests != 0 || m.OverallAccuracy != 0 {
		t.Errorf("expected zero metrics for no results, got %+v", m)
	}
}

func TestWeightedScores_NeverPredictedClass(t *testing.T) {
	// The healthy column is empty: precision for that class must count
	// as zero, not NaN.
	cm := [][]int{{0, 2}, {0, 2}}
	precision, recall, f1 := weightedScores(cm)

	if math.IsNaN(precision) || math.IsNaN(recall) || math.IsNaN(f1) {
		t.Fatalf("expected finite scores, got %v %v %v", precision, recall, f1)
	}
	if !floatEq(precision, 0.25) {
		t.Errorf("expected precision 0.25, got %v", precision)
	}
	if !floatEq(recall, 0.5) {
		t.Errorf("expected recall 0.5, got %v", recall)
	}
}
