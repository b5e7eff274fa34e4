package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/danbi-market/analysis-worker/internal/ai"
	"github.com/danbi-market/analysis-worker/internal/market"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// maxSignalsPerSource caps how many listings/snippets go into the prompt.
const maxSignalsPerSource = 10

// PriceAggregator turns a condition report and external market signals into
// a price recommendation. The two signal sources are queried in parallel; a
// failed source degrades to an empty result set so pricing can proceed on
// partial signal.
type PriceAggregator struct {
	client       ai.Client
	marketplace  market.Searcher
	web          market.WebSearcher
	systemPrompt string
}

// NewPriceAggregator creates the pricing stage.
func NewPriceAggregator(client ai.Client, marketplace market.Searcher, web market.WebSearcher, prompts Prompts) *PriceAggregator {
	return &PriceAggregator{
		client:       client,
		marketplace:  marketplace,
		web:          web,
		systemPrompt: prompts.PricingSystem,
	}
}

// Price runs the pricing stage using report.Name as the search key.
func (p *PriceAggregator) Price(ctx context.Context, report *ConditionReport) (*PriceRecommendation, error) {
	var (
		listings   []market.Listing
		webResults []market.WebResult
	)

	// Both queries run concurrently and both are awaited. Failures are
	// absorbed per source: the goroutines never return an error, so one
	// dead source cannot cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		results, err := p.marketplace.Search(ctx, report.Name, 0, "score")
		if err != nil {
			log.Warn().Err(fmt.Errorf("%w: %v", market.ErrExternalSignal, err)).
				Str("source", "marketplace").Str("query", report.Name).
				Msg("market signal source failed, pricing on partial signal")
			return nil
		}
		listings = results
		return nil
	})
	g.Go(func() error {
		query := fmt.Sprintf("%s used secondhand price", report.Name)
		results, err := p.web.Search(ctx, query, maxSignalsPerSource)
		if err != nil {
			log.Warn().Err(fmt.Errorf("%w: %v", market.ErrExternalSignal, err)).
				Str("source", "web").Str("query", query).
				Msg("market signal source failed, pricing on partial signal")
			return nil
		}
		webResults = results
		return nil
	})
	_ = g.Wait()

	prompt := buildPricingPrompt(report, listings, webResults)

	response, err := p.client.Invoke(ctx, p.systemPrompt, []ai.Turn{ai.UserTurn(ai.TextPart(prompt))})
	if err != nil {
		return nil, fmt.Errorf("price recommendation call failed: %w", err)
	}

	var rec PriceRecommendation
	if err := ai.DecodeJSON(response, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceParse, err)
	}
	if rec.RecommendedPrice <= 0 {
		return nil, fmt.Errorf("%w: recommended price must be positive, got %d", ErrPriceParse, rec.RecommendedPrice)
	}
	rec.Currency = CurrencyKRW

	log.Info().
		Str("name", report.Name).
		Int("recommendedPrice", rec.RecommendedPrice).
		Str("currency", rec.Currency).
		Int("marketListings", len(listings)).
		Int("webResults", len(webResults)).
		Msg("price recommendation complete")

	return &rec, nil
}

// buildPricingPrompt lays out the condition report and the top signals from
// each source as a single text prompt.
func buildPricingPrompt(report *ConditionReport, listings []market.Listing, webResults []market.WebResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Item name: %s\n", report.Name)
	fmt.Fprintf(&sb, "Condition assessment: %s\n", report.Narrative)
	fmt.Fprintf(&sb, "Usage level: %s\n", report.UsageLevel)
	fmt.Fprintf(&sb, "Issues: %s\n", joinOrNone(report.Issues))
	fmt.Fprintf(&sb, "Positives: %s\n", joinOrNone(report.Positives))

	sb.WriteString("\n[Marketplace listings]\n")
	if len(listings) == 0 {
		sb.WriteString("no results\n")
	}
	for i, l := range listings {
		if i >= maxSignalsPerSource {
			break
		}
		fmt.Fprintf(&sb, "%d. %s - %d KRW (%s)\n", i+1, l.Name, l.Price, l.Condition)
	}

	sb.WriteString("\n[Web search]\n")
	if len(webResults) == 0 {
		sb.WriteString("no results\n")
	}
	for i, r := range webResults {
		if i >= maxSignalsPerSource {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, r.Title, r.Snippet)
	}

	sb.WriteString("\nBased on the above, recommend a fair resale price in KRW and explain the reasoning.")

	return sb.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
