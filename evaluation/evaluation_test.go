package evaluation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"leafscan/types"
)

func TestReportSave(t *testing.T) {
	results := fourResults()
	report := &Report{
		Timestamp: "20250601_120000",
		Results:   results,
		Metrics:   ComputeMetrics(results),
		Failures:  1,
	}

	dir := filepath.Join(t.TempDir(), "nested", "results")
	path, err := report.Save(dir)
	if err != nil {
		t.Fatalf("failed to save report: %v", err)
	}
	if filepath.Base(path) != "evaluation_results_20250601_120000.json" {
		t.Errorf("unexpected report file name: %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var loaded Report
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("failed to parse report: %v", err)
	}
	if len(loaded.Results) != len(results) {
		t.Errorf("expected %d results, got %d", len(results), len(loaded.Results))
	}
	if loaded.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", loaded.Failures)
	}
	if loaded.Metrics == nil {
		t.Fatal("expected metrics in the saved report")
	}
	if !floatEq(loaded.Metrics.OverallAccuracy, 0.75) {
		t.Errorf("expected accuracy 0.75 after the round trip, got %v", loaded.Metrics.OverallAccuracy)
	}
	if loaded.Results[0].RiskLevel != types.RiskLow {
		t.Errorf("expected risk level preserved, got %s", loaded.Results[0].RiskLevel)
	}
}
