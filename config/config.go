package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the single owned configuration object for the whole pipeline.
// It is built once (Default or Load) and passed by reference into every
// stage. The numeric defaults are calibrated against the reference corpus
// the system ships with; recalibrating for a different corpus means
// editing a config file, not the code.
type Config struct {
	Store        StoreConfig        `mapstructure:"store"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
	Detector     DetectorConfig     `mapstructure:"detector"`
	Features     FeaturesConfig     `mapstructure:"features"`
	Similarity   SimilarityConfig   `mapstructure:"similarity"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// StoreConfig locates the feature store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig bounds the batch pipeline.
type PipelineConfig struct {
	CanonicalSize  int           `mapstructure:"canonical_size"`
	Workers        int           `mapstructure:"workers"`
	ImageTimeout   time.Duration `mapstructure:"image_timeout"`
	ResultsDir     string        `mapstructure:"results_dir"`
	ProgressPeriod time.Duration `mapstructure:"progress_period"`
}

// SegmentationConfig holds the green-band thresholds for leaf isolation.
// Hue values follow the OpenCV 8-bit convention (0-179).
type SegmentationConfig struct {
	HueMin     float64 `mapstructure:"hue_min"`
	HueMax     float64 `mapstructure:"hue_max"`
	SatMin     float64 `mapstructure:"sat_min"`
	ValMin     float64 `mapstructure:"val_min"`
	KernelSize int     `mapstructure:"kernel_size"`
}

// DetectorConfig holds the lesion-detector thresholds and vote weights.
type DetectorConfig struct {
	HueDevFactor       float64 `mapstructure:"hue_dev_factor"`
	BrownHueCutoff     float64 `mapstructure:"brown_hue_cutoff"`
	SatDevFactor       float64 `mapstructure:"sat_dev_factor"`
	ValDevFactor       float64 `mapstructure:"val_dev_factor"`
	LightnessDevFactor float64 `mapstructure:"lightness_dev_factor"`
	ChromaDevFactor    float64 `mapstructure:"chroma_dev_factor"`
	TexturePercentile  float64 `mapstructure:"texture_percentile"`

	ColorVoteWeight   float64 `mapstructure:"color_vote_weight"`
	LabVoteWeight     float64 `mapstructure:"lab_vote_weight"`
	TextureVoteWeight float64 `mapstructure:"texture_vote_weight"`
	VoteCutoff        float64 `mapstructure:"vote_cutoff"`

	MinContourArea     float64 `mapstructure:"min_contour_area"`
	MinContourAreaFrac float64 `mapstructure:"min_contour_area_frac"`
	MaxContourAreaFrac float64 `mapstructure:"max_contour_area_frac"`
	DarknessDevFactor  float64 `mapstructure:"darkness_dev_factor"`
	TextureFracOfCut   float64 `mapstructure:"texture_frac_of_cut"`
	CircularityMin     float64 `mapstructure:"circularity_min"`
	CircularityMax     float64 `mapstructure:"circularity_max"`
}

// FeaturesConfig holds the signature-extraction parameters.
type FeaturesConfig struct {
	GLCMLevels    int     `mapstructure:"glcm_levels"`
	MinLesionArea float64 `mapstructure:"min_lesion_area"`
}

// SimilarityConfig holds the adaptive weighting and scoring parameters.
type SimilarityConfig struct {
	MinLesionCoverage float64 `mapstructure:"min_lesion_coverage"`

	StatsWeight   float64 `mapstructure:"stats_weight"`
	ShapeWeight   float64 `mapstructure:"shape_weight"`
	TextureWeight float64 `mapstructure:"texture_weight"`
	HistWeight    float64 `mapstructure:"hist_weight"`

	OverFetch int `mapstructure:"over_fetch"`

	HealthyMaxLesions   float64 `mapstructure:"healthy_max_lesions"`
	HealthyMaxCoverage  float64 `mapstructure:"healthy_max_coverage"`
	DiseasedMinLesions  float64 `mapstructure:"diseased_min_lesions"`
	DiseasedMinCoverage float64 `mapstructure:"diseased_min_coverage"`

	DisjointSimilarity float64 `mapstructure:"disjoint_similarity"`
	CoverageDeltaScale float64 `mapstructure:"coverage_delta_scale"`
	SmallDeltaBoost    float64 `mapstructure:"small_delta_boost"`
	DiseasedFloor      float64 `mapstructure:"diseased_floor"`
	SimilarityCap      float64 `mapstructure:"similarity_cap"`
	MinSimilarity      float64 `mapstructure:"min_similarity"`
}

// ClassifierConfig holds the vote-aggregation parameters.
type ClassifierConfig struct {
	TopK           int     `mapstructure:"top_k"`
	DominanceCount int     `mapstructure:"dominance_count"`
	PolarityBoost  float64 `mapstructure:"polarity_boost"`
	HighConfidence float64 `mapstructure:"high_confidence"`
	ProbConfidence float64 `mapstructure:"prob_confidence"`
}

// RiskConfig holds the trust-verdict rules.
type RiskConfig struct {
	MinMatches          int     `mapstructure:"min_matches"`
	LowConfidence       float64 `mapstructure:"low_confidence"`
	SimilaritySpreadMax float64 `mapstructure:"similarity_spread_max"`
	ConsistencyMin      float64 `mapstructure:"consistency_min"`
	SimilarityGapMax    float64 `mapstructure:"similarity_gap_max"`
	ShapeVariabilityMax float64 `mapstructure:"shape_variability_max"`
	HighThreshold       float64 `mapstructure:"high_threshold"`
	MediumThreshold     float64 `mapstructure:"medium_threshold"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	File    string `mapstructure:"file"`
	Verbose bool   `mapstructure:"verbose"`
}

// Default returns the configuration calibrated for the reference corpus.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "leafscan.db",
		},
		Pipeline: PipelineConfig{
			CanonicalSize:  224,
			Workers:        0, // 0 = derive from CPU count
			ImageTimeout:   30 * time.Second,
			ResultsDir:     "evaluation_results",
			ProgressPeriod: 500 * time.Millisecond,
		},
		Segmentation: SegmentationConfig{
			HueMin:     25,
			HueMax:     85,
			SatMin:     40,
			ValMin:     40,
			KernelSize: 5,
		},
		Detector: DetectorConfig{
			HueDevFactor:       1.0,
			BrownHueCutoff:     140,
			SatDevFactor:       0.8,
			ValDevFactor:       1.0,
			LightnessDevFactor: 1.0,
			ChromaDevFactor:    1.0,
			TexturePercentile:  0.70,
			ColorVoteWeight:    1.5,
			LabVoteWeight:      1.2,
			TextureVoteWeight:  1.0,
			VoteCutoff:         2.0,
			MinContourArea:     10,
			MinContourAreaFrac: 0.0008,
			MaxContourAreaFrac: 0.35,
			DarknessDevFactor:  0.8,
			TextureFracOfCut:   0.8,
			CircularityMin:     0.2,
			CircularityMax:     0.95,
		},
		Features: FeaturesConfig{
			GLCMLevels:    32,
			MinLesionArea: 30,
		},
		Similarity: SimilarityConfig{
			MinLesionCoverage:   0.001,
			StatsWeight:         2.0,
			ShapeWeight:         2.0,
			TextureWeight:       1.5,
			HistWeight:          0.5,
			OverFetch:           3,
			HealthyMaxLesions:   1,
			HealthyMaxCoverage:  0.02,
			DiseasedMinLesions:  3,
			DiseasedMinCoverage: 0.05,
			DisjointSimilarity:  5.0,
			CoverageDeltaScale:  0.2,
			SmallDeltaBoost:     1.2,
			DiseasedFloor:       30.0,
			SimilarityCap:       95.0,
			MinSimilarity:       40.0,
		},
		Classifier: ClassifierConfig{
			TopK:           5,
			DominanceCount: 3,
			PolarityBoost:  1.2,
			HighConfidence: 80,
			ProbConfidence: 50,
		},
		Risk: RiskConfig{
			MinMatches:          3,
			LowConfidence:       60,
			SimilaritySpreadMax: 15,
			ConsistencyMin:      0.6,
			SimilarityGapMax:    20,
			ShapeVariabilityMax: 0.5,
			HighThreshold:       0.8,
			MediumThreshold:     0.5,
		},
		Logging: LoggingConfig{
			File:    "",
			Verbose: false,
		},
	}
}

// Load reads a config file over the defaults. With an empty path it looks
// for leafscan.yaml in the working directory and $HOME/.leafscan; a missing
// file is not an error in that case, the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("leafscan")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.leafscan")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %v", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}
	return cfg, nil
}
