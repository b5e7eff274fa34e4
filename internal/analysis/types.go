// Package analysis implements the two AI stages of the pipeline: condition
// analysis from item photos and price recommendation from market signals.
package analysis

import "errors"

// Stage failure sentinels. A parse failure aborts the job; the queue's retry
// policy decides what happens next.
var (
	ErrConditionParse = errors.New("condition analysis response not parseable")
	ErrPriceParse     = errors.New("price recommendation response not parseable")
)

// CurrencyKRW is the currency unit the pricing prompt asks for. The unit is
// carried explicitly on every recommendation so downstream consumers never
// have to guess.
const CurrencyKRW = "KRW"

// Image is one input photo with its MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// ConditionReport is the structured output of the condition stage.
type ConditionReport struct {
	// Name is a short inferred item title, also used as the market search key.
	Name string `json:"name"`
	// Narrative is the free-text condition assessment.
	Narrative string `json:"analysis"`
	// Issues lists observed defects.
	Issues []string `json:"issues"`
	// Positives lists observed selling points.
	Positives []string `json:"positives"`
	// UsageLevel is a categorical wear label (e.g. "like new", "heavily used").
	UsageLevel string `json:"usageLevel"`
}

// PriceRecommendation is the structured output of the pricing stage.
type PriceRecommendation struct {
	RecommendedPrice int    `json:"recommendedPrice"`
	PriceReason      string `json:"priceReason"`
	// Currency is set by the aggregator, not parsed from model output.
	Currency string `json:"-"`
}
