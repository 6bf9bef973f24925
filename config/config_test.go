package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Pipeline.CanonicalSize != 224 {
		t.Errorf("expected canonical size 224, got %d", cfg.Pipeline.CanonicalSize)
	}
	if cfg.Pipeline.ImageTimeout != 30*time.Second {
		t.Errorf("expected 30s image timeout, got %v", cfg.Pipeline.ImageTimeout)
	}
	if cfg.Features.GLCMLevels != 32 {
		t.Errorf("expected 32 co-occurrence levels, got %d", cfg.Features.GLCMLevels)
	}
	if cfg.Similarity.SimilarityCap != 95 {
		t.Errorf("expected similarity cap 95, got %v", cfg.Similarity.SimilarityCap)
	}
	if cfg.Similarity.MinSimilarity != 40 {
		t.Errorf("expected similarity floor 40, got %v", cfg.Similarity.MinSimilarity)
	}
	if cfg.Classifier.TopK != 5 {
		t.Errorf("expected top-k 5, got %d", cfg.Classifier.TopK)
	}
	if cfg.Risk.MinMatches != 3 {
		t.Errorf("expected 3 minimum matches, got %d", cfg.Risk.MinMatches)
	}
	if cfg.Risk.HighThreshold != 0.8 || cfg.Risk.MediumThreshold != 0.5 {
		t.Errorf("unexpected risk thresholds: %v and %v", cfg.Risk.HighThreshold, cfg.Risk.MediumThreshold)
	}
	if cfg.Segmentation.HueMin != 25 || cfg.Segmentation.HueMax != 85 {
		t.Errorf("unexpected green band: %v to %v", cfg.Segmentation.HueMin, cfg.Segmentation.HueMax)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected defaults without a config file, got error: %v", err)
	}
	if cfg.Classifier.TopK != 5 {
		t.Errorf("expected default top-k 5, got %d", cfg.Classifier.TopK)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := []byte(`
pipeline:
  workers: 4
  image_timeout: 45s
similarity:
  min_similarity: 55
store:
  path: /tmp/custom.db
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.ImageTimeout != 45*time.Second {
		t.Errorf("expected 45s image timeout, got %v", cfg.Pipeline.ImageTimeout)
	}
	if cfg.Similarity.MinSimilarity != 55 {
		t.Errorf("expected similarity floor 55, got %v", cfg.Similarity.MinSimilarity)
	}
	if cfg.Store.Path != "/tmp/custom.db" {
		t.Errorf("expected custom store path, got %q", cfg.Store.Path)
	}

	// Settings the file does not mention keep their defaults.
	if cfg.Classifier.TopK != 5 {
		t.Errorf("expected default top-k 5, got %d", cfg.Classifier.TopK)
	}
	if cfg.Similarity.SimilarityCap != 95 {
		t.Errorf("expected default similarity cap 95, got %v", cfg.Similarity.SimilarityCap)
	}
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for an explicitly named missing file")
	}
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("pipeline: [not a map"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}
