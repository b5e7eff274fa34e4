// Package market provides the external market-signal sources consulted for
// price grounding: secondhand-marketplace keyword search and general web
// search. Both are read-only and individually non-critical; a failed source
// degrades to an empty result set at the pricing stage.
package market

import (
	"context"
	"errors"
)

// ErrExternalSignal marks a market-signal source failure. The pricing stage
// absorbs these rather than failing the job.
var ErrExternalSignal = errors.New("market signal source unavailable")

// Condition labels attached to marketplace listings.
const (
	ConditionNew     = "new"
	ConditionUsed    = "used"
	ConditionUnknown = "unknown"
)

// Listing is a single marketplace search result.
type Listing struct {
	Name         string
	Price        int
	Condition    string
	FreeShipping bool
}

// Searcher is the secondhand-marketplace search contract.
type Searcher interface {
	// Search runs a keyword search. Sort is a provider-specific ordering
	// key; implementations default it to relevance.
	Search(ctx context.Context, query string, page int, sort string) ([]Listing, error)
}

// WebResult is a single general web search result.
type WebResult struct {
	Title   string
	Link    string
	Snippet string
}

// WebSearcher is the general web search contract.
type WebSearcher interface {
	Search(ctx context.Context, query string, count int) ([]WebResult, error)
}
