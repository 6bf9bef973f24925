// Package pipeline wires the full diagnosis flow together: decode,
// segment, detect, extract, rank, classify, assess.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"leafscan/classifier"
	"leafscan/config"
	"leafscan/detector"
	"leafscan/features"
	"leafscan/imaging"
	"leafscan/logging"
	"leafscan/risk"
	"leafscan/segmentation"
	"leafscan/signalhandler"
	"leafscan/similarity"
	"leafscan/types"
)

// FeatureStore is the store contract the pipeline drives: atomic adds
// during ingestion, nearest-neighbor queries during diagnosis.
type FeatureStore interface {
	Add(id string, vector []float64, meta types.ImageMetadata) error
	Query(vector []float64, k int) ([]types.QueryMatch, error)
}

// Engine runs the pipeline stages against one configuration and store.
// It is safe for concurrent use across images.
type Engine struct {
	cfg    *config.Config
	store  FeatureStore
	loader *imaging.LoaderRegistry
	sim    *similarity.Engine
	cls    *classifier.Classifier
	risk   *risk.Predictor
}

// NewEngine builds an engine around an opened store.
func NewEngine(cfg *config.Config, store FeatureStore) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		loader: imaging.NewLoaderRegistry(),
		sim:    similarity.NewEngine(store, cfg.Similarity),
		cls:    classifier.New(cfg.Classifier),
		risk:   risk.New(cfg.Risk),
	}
}

// Config exposes the engine configuration to collaborators.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Workers returns the bounded worker count for batch runs.
func (e *Engine) Workers() int {
	if e.cfg.Pipeline.Workers > 0 {
		return e.cfg.Pipeline.Workers
	}
	return signalhandler.GetOptimalProcs()
}

// ProcessImage runs decode, segmentation, detection and extraction for
// one image and returns its signature. The context is checked between
// stages; the OpenCV calls themselves are not interruptible.
func (e *Engine) ProcessImage(ctx context.Context, path string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := e.loader.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %v", path, err)
	}
	defer img.Close()

	prepared, err := imaging.Prepare(img, e.cfg.Pipeline.CanonicalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image %s: %v", path, err)
	}
	defer prepared.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	leafMask := segmentation.Segment(prepared, e.cfg.Segmentation)
	defer leafMask.Close()

	diseaseMask := detector.Detect(prepared, leafMask, e.cfg.Detector)
	defer diseaseMask.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return features.Extract(prepared, leafMask, diseaseMask, e.cfg.Features), nil
}

// Diagnose classifies one image against the reference store without
// persisting it. A previously ingested copy of the same file is kept out
// of its own match list.
func (e *Engine) Diagnose(ctx context.Context, path string) (*types.Diagnosis, error) {
	start := time.Now()

	vector, err := e.ProcessImage(ctx, path)
	if err != nil {
		return nil, err
	}

	matches, err := e.sim.Rank(vector, similarity.Options{
		Limit:     e.cfg.Classifier.TopK,
		ExcludeID: filepath.Base(path),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank %s: %w", path, err)
	}

	hasLesions := e.sim.HasLesions(vector)
	result, err := e.cls.Classify(matches, hasLesions)
	if err != nil {
		return nil, fmt.Errorf("failed to classify %s: %v", path, err)
	}

	assessment := e.risk.Assess(result)

	return &types.Diagnosis{
		ImagePath:      path,
		Classification: result,
		Risk:           assessment,
		Advisory:       adviseFor(result.Confidence, result.IdentifiedCategory, e.cfg.Classifier),
		ElapsedMillis:  time.Since(start).Milliseconds(),
	}, nil
}

// ListImages walks dir and returns every file a registered loader can
// decode. Unreadable entries are logged and skipped.
func (e *Engine) ListImages(dir string) ([]string, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			logging.Warning("failed to access %s: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if e.loader.CanLoadFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %v", dir, err)
	}
	return paths, nil
}
