package analysis

import (
	"context"
	"fmt"

	"github.com/danbi-market/analysis-worker/internal/ai"
	"github.com/rs/zerolog/log"
)

// MaxImagesPerRequest caps how many photos go into a single model request.
const MaxImagesPerRequest = 10

// ConditionAnalyzer turns item photos and optional seller text into a
// structured condition report with a single completion call. It does not
// retry; the caller owns retry policy.
type ConditionAnalyzer struct {
	client       ai.Client
	systemPrompt string
}

// NewConditionAnalyzer creates the condition stage.
func NewConditionAnalyzer(client ai.Client, prompts Prompts) *ConditionAnalyzer {
	return &ConditionAnalyzer{client: client, systemPrompt: prompts.ConditionSystem}
}

// Analyze runs the condition stage. The user turn carries the seller
// description first (when present) and then every image, in order.
func (a *ConditionAnalyzer) Analyze(ctx context.Context, images []Image, description string) (*ConditionReport, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images provided")
	}
	if len(images) > MaxImagesPerRequest {
		images = images[:MaxImagesPerRequest]
	}

	var parts []ai.Part
	if description != "" {
		parts = append(parts, ai.TextPart(fmt.Sprintf("Seller description: %s", description)))
	}
	for _, img := range images {
		parts = append(parts, ai.ImagePart(img.Data, img.MIMEType))
	}

	response, err := a.client.Invoke(ctx, a.systemPrompt, []ai.Turn{ai.UserTurn(parts...)})
	if err != nil {
		return nil, fmt.Errorf("condition analysis call failed: %w", err)
	}

	var report ConditionReport
	if err := ai.DecodeJSON(response, &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConditionParse, err)
	}
	if report.Name == "" || report.Narrative == "" || report.UsageLevel == "" {
		return nil, fmt.Errorf("%w: missing required fields (name=%q, usageLevel=%q)", ErrConditionParse, report.Name, report.UsageLevel)
	}

	// Optional list fields default to empty, not nil.
	if report.Issues == nil {
		report.Issues = []string{}
	}
	if report.Positives == nil {
		report.Positives = []string{}
	}

	log.Info().
		Str("name", report.Name).
		Str("usageLevel", report.UsageLevel).
		Int("issues", len(report.Issues)).
		Int("positives", len(report.Positives)).
		Msg("condition analysis complete")

	return &report, nil
}
