package pipeline

import (
	"fmt"

	"leafscan/config"
	"leafscan/types"
)

// Advisory tiers, from most to least trustworthy.
const (
	TierReliable  = "reliable"
	TierProbable  = "probable"
	TierUncertain = "uncertain"
)

// adviseFor maps a confidence onto tiered follow-up guidance.
func adviseFor(confidence float64, category string, cfg config.ClassifierConfig) types.Advisory {
	switch {
	case confidence >= cfg.HighConfidence:
		return types.Advisory{Tier: TierReliable, Steps: []string{
			"Consult a specialist to confirm the diagnosis",
			fmt.Sprintf("Research treatments specific to %s", category),
			"Isolate affected plants to prevent spread",
		}}
	case confidence >= cfg.ProbConfidence:
		return types.Advisory{Tier: TierProbable, Steps: []string{
			"Perform a detailed visual inspection of the plant",
			"Take more photos from different angles",
			"Consult a specialist for confirmation",
		}}
	default:
		return types.Advisory{Tier: TierUncertain, Steps: []string{
			"Retake the photo with better lighting and focus",
			"Photograph the affected area from closer up",
			"Arrange an in-person assessment by a specialist",
		}}
	}
}
