package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
)

const bunjangAPIURL = "https://api.bunjang.co.kr/api/1/find_v2.json"

// Bunjang used-flag values: 2 means a new product, 1 means visible wear.
const (
	bunjangUsedFlagNew  = 2
	bunjangUsedFlagWorn = 1
)

// BunjangClient searches the Bunjang secondhand marketplace.
type BunjangClient struct {
	httpClient *resty.Client
	apiURL     string
}

// NewBunjangClient creates a Bunjang search client.
func NewBunjangClient() *BunjangClient {
	return &BunjangClient{
		httpClient: resty.New(),
		apiURL:     bunjangAPIURL,
	}
}

// NewBunjangClientWithURL creates a client with a custom API URL (for testing).
func NewBunjangClientWithURL(apiURL string) *BunjangClient {
	return &BunjangClient{
		httpClient: resty.New(),
		apiURL:     apiURL,
	}
}

type bunjangResponse struct {
	List []bunjangProduct `json:"list"`
}

type bunjangProduct struct {
	Name         string      `json:"name"`
	Price        json.Number `json:"price"`
	Used         int         `json:"used"`
	FreeShipping bool        `json:"free_shipping"`
}

// Search implements the Searcher interface. Sort defaults to "score"
// (relevance) when empty.
func (c *BunjangClient) Search(ctx context.Context, query string, page int, sort string) ([]Listing, error) {
	if sort == "" {
		sort = "score"
	}

	var result bunjangResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     query,
			"order": sort,
			"page":  strconv.Itoa(page),
		}).
		SetResult(&result).
		Get(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("bunjang search failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("bunjang search failed: status %d", resp.StatusCode())
	}

	listings := make([]Listing, 0, len(result.List))
	for _, p := range result.List {
		// The API returns prices as strings; drop unparseable entries.
		price, err := strconv.Atoi(p.Price.String())
		if err != nil {
			continue
		}
		listings = append(listings, Listing{
			Name:         p.Name,
			Price:        price,
			Condition:    conditionLabel(p.Used),
			FreeShipping: p.FreeShipping,
		})
	}

	return listings, nil
}

func conditionLabel(used int) string {
	switch used {
	case bunjangUsedFlagNew:
		return ConditionNew
	case bunjangUsedFlagWorn:
		return ConditionUsed
	default:
		return ConditionUnknown
	}
}
