package types

// ImageMetadata describes the source of a stored signature.
type ImageMetadata struct {
	Path           string `json:"path"`
	Category       string `json:"category"`
	ProcessingDate string `json:"processing_date"`
}

// StoredSignature is one reference image record in the feature store.
type StoredSignature struct {
	ID       string        `json:"id"`
	Vector   []float64     `json:"vector,omitempty"`
	Metadata ImageMetadata `json:"metadata"`
}

// QueryMatch is one ranked result of a nearest-neighbor query.
// Distance is cosine-style, in [0,2].
type QueryMatch struct {
	ID       string
	Distance float64
	Metadata ImageMetadata
	Vector   []float64
}

// ScoredMatch pairs a candidate with its calibrated similarity (0-100).
type ScoredMatch struct {
	ID         string        `json:"id"`
	Category   string        `json:"category"`
	Similarity float64       `json:"similarity"`
	Metadata   ImageMetadata `json:"metadata"`
	Vector     []float64     `json:"-"`
}

// ClassificationResult holds the aggregated verdict for a query image.
type ClassificationResult struct {
	IdentifiedCategory   string             `json:"identified_category"`
	Confidence           float64            `json:"confidence"`
	BestMatch            float64            `json:"best_match"`
	CategoryDistribution map[string]float64 `json:"category_distribution"`
	SimilarImages        []ScoredMatch      `json:"similar_images"`
	HasLesions           bool               `json:"has_lesions"`
}

// RiskLevel grades how much a classification should be trusted.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskAssessment is the trust verdict attached to a classification.
// Factors lists the rules that fired, in evaluation order.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Score   float64   `json:"score"`
	Factors []string  `json:"factors"`
}

// Advisory is the tiered follow-up guidance derived from confidence.
type Advisory struct {
	Tier  string   `json:"tier"`
	Steps []string `json:"steps"`
}

// Diagnosis bundles everything produced for one query image.
type Diagnosis struct {
	ImagePath      string                `json:"image_path"`
	Classification *ClassificationResult `json:"classification"`
	Risk           *RiskAssessment       `json:"risk"`
	Advisory       Advisory              `json:"advisory"`
	ElapsedMillis  int64                 `json:"elapsed_ms"`
}

// StoreStats summarizes the feature store contents.
type StoreStats struct {
	TotalImages int            `json:"total_images"`
	Categories  map[string]int `json:"categories"`
	LastUpdate  string         `json:"last_update"`
}
