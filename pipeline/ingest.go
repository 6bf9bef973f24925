package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"leafscan/logging"
	"leafscan/types"
)

// CategoryStats counts one category's ingestion outcomes.
type CategoryStats struct {
	Processed int
	Failed    int
}

// IngestSummary reports a completed ingestion run.
type IngestSummary struct {
	Categories []string
	Stats      map[string]*CategoryStats
	Elapsed    time.Duration
}

// TotalProcessed is the number of successfully stored images.
func (s *IngestSummary) TotalProcessed() int {
	n := 0
	for _, st := range s.Stats {
		n += st.Processed
	}
	return n
}

// TotalFailed is the number of images that failed processing.
func (s *IngestSummary) TotalFailed() int {
	n := 0
	for _, st := range s.Stats {
		n += st.Failed
	}
	return n
}

// SuccessRate is the percentage of images stored successfully.
func (s *IngestSummary) SuccessRate() float64 {
	total := s.TotalProcessed() + s.TotalFailed()
	if total == 0 {
		return 0
	}
	return float64(s.TotalProcessed()) / float64(total) * 100
}

// Ingest walks datasetRoot, whose immediate subdirectories name the
// categories, extracts a signature for every image and stores it under
// the image's base name. Images are processed by a bounded worker pool;
// one image's failure is counted and skipped, never fatal to the run.
func (e *Engine) Ingest(ctx context.Context, datasetRoot string) (*IngestSummary, error) {
	entries, err := os.ReadDir(datasetRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset root %s: %v", datasetRoot, err)
	}

	type job struct {
		path     string
		category string
	}
	var jobs []job
	summary := &IngestSummary{Stats: make(map[string]*CategoryStats)}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		category := entry.Name()
		images, err := e.ListImages(filepath.Join(datasetRoot, category))
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			continue
		}
		summary.Categories = append(summary.Categories, category)
		summary.Stats[category] = &CategoryStats{}
		for _, img := range images {
			jobs = append(jobs, job{path: img, category: category})
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no images found under %s", datasetRoot)
	}

	logging.Info("ingesting %d images from %d categories", len(jobs), len(summary.Categories))
	start := time.Now()

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, e.Workers())
	results := make(chan ingestResult, 100)
	tracker := newProgressTracker(len(jobs), e.cfg.Pipeline.ProgressPeriod, results, summary.Stats)

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		semaphore <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results <- ingestResult{path: j.path, category: j.category, err: e.ingestOne(ctx, j.path, j.category)}
		}(j)
	}

	wg.Wait()
	close(results)
	tracker.stop()

	summary.Elapsed = time.Since(start)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ingestOne processes and stores a single image under a per-image
// timeout.
func (e *Engine) ingestOne(ctx context.Context, path, category string) error {
	imgCtx, cancel := context.WithTimeout(ctx, e.cfg.Pipeline.ImageTimeout)
	defer cancel()

	vector, err := e.ProcessImage(imgCtx, path)
	if err != nil {
		return err
	}

	meta := types.ImageMetadata{
		Path:           path,
		Category:       category,
		ProcessingDate: time.Now().Format(time.RFC3339),
	}
	if err := e.store.Add(filepath.Base(path), vector, meta); err != nil {
		return fmt.Errorf("failed to store signature for %s: %v", path, err)
	}
	return nil
}
