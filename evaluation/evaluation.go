// Package evaluation drives the diagnosis pipeline over a labeled test
// corpus and measures how well it classifies. Test images are queried
// only, never added to the store.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"leafscan/logging"
	"leafscan/pipeline"
	"leafscan/types"
)

// TestResult records the outcome for one test image.
type TestResult struct {
	ImagePath         string          `json:"image_path"`
	TrueCategory      string          `json:"true_category"`
	PredictedCategory string          `json:"predicted_category"`
	Confidence        float64         `json:"confidence"`
	RiskLevel         types.RiskLevel `json:"risk_level"`
	RiskScore         float64         `json:"risk_score"`
	Correct           bool            `json:"correct"`
}

// Report bundles the per-image results with the aggregate metrics.
type Report struct {
	Timestamp string       `json:"timestamp"`
	Results   []TestResult `json:"test_results"`
	Metrics   *Metrics     `json:"metrics"`
	Failures  int          `json:"failed_images"`
}

// Harness runs the pipeline over a category-labeled directory tree.
type Harness struct {
	engine *pipeline.Engine
}

// NewHarness builds a harness around a ready engine.
func NewHarness(engine *pipeline.Engine) *Harness {
	return &Harness{engine: engine}
}

// Run evaluates every image under testRoot, whose immediate
// subdirectories name the true categories. Images that fail processing
// are counted and skipped; the run fails only when nothing could be
// evaluated at all.
func (h *Harness) Run(ctx context.Context, testRoot string) (*Report, error) {
	entries, err := os.ReadDir(testRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read test dataset %s: %v", testRoot, err)
	}

	type job struct {
		path     string
		category string
	}
	var jobs []job
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		category := entry.Name()
		images, err := h.engine.ListImages(filepath.Join(testRoot, category))
		if err != nil {
			return nil, err
		}
		for _, img := range images {
			jobs = append(jobs, job{path: img, category: category})
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no test images found under %s", testRoot)
	}

	logging.Info("evaluating %d test images", len(jobs))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  []TestResult
		failures int
	)
	semaphore := make(chan struct{}, h.engine.Workers())
	timeout := h.engine.Config().Pipeline.ImageTimeout

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-semaphore }()

			imgCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := h.evaluateImage(imgCtx, j.path, j.category)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				logging.ImageProcessed(j.path, false, err.Error())
				return
			}
			results = append(results, res)
			logging.ImageProcessed(j.path, true, "")
		}(j)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no test image produced a result (%d failed)", failures)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].ImagePath < results[j].ImagePath
	})

	return &Report{
		Timestamp: time.Now().Format("20060102_150405"),
		Results:   results,
		Metrics:   ComputeMetrics(results),
		Failures:  failures,
	}, nil
}

func (h *Harness) evaluateImage(ctx context.Context, path, trueCategory string) (TestResult, error) {
	diag, err := h.engine.Diagnose(ctx, path)
	if err != nil {
		return TestResult{}, err
	}

	predicted := diag.Classification.IdentifiedCategory
	return TestResult{
		ImagePath:         path,
		TrueCategory:      trueCategory,
		PredictedCategory: predicted,
		Confidence:        diag.Classification.Confidence,
		RiskLevel:         diag.Risk.Level,
		RiskScore:         diag.Risk.Score,
		Correct:           NormalizeLabel(trueCategory) == NormalizeLabel(predicted),
	}, nil
}

// Save writes the report as indented JSON into dir, creating it if
// needed, and returns the file path.
func (r *Report) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory %s: %v", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("evaluation_results_%s.json", r.Timestamp))
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report to %s: %v", path, err)
	}
	return path, nil
}
