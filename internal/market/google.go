package market

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
)

const googleSearchAPIURL = "https://www.googleapis.com/customsearch/v1"

// GoogleClient performs general web searches via the Google Custom Search API.
type GoogleClient struct {
	httpClient     *resty.Client
	apiURL         string
	apiKey         string
	searchEngineID string
}

// NewGoogleClient creates a Google Custom Search client.
func NewGoogleClient(apiKey, searchEngineID string) *GoogleClient {
	return &GoogleClient{
		httpClient:     resty.New(),
		apiURL:         googleSearchAPIURL,
		apiKey:         apiKey,
		searchEngineID: searchEngineID,
	}
}

// NewGoogleClientWithURL creates a client with a custom API URL (for testing).
func NewGoogleClientWithURL(apiURL, apiKey, searchEngineID string) *GoogleClient {
	c := NewGoogleClient(apiKey, searchEngineID)
	c.apiURL = apiURL
	return c
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search implements the WebSearcher interface.
func (c *GoogleClient) Search(ctx context.Context, query string, count int) ([]WebResult, error) {
	if count <= 0 {
		count = 10
	}

	var result googleResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":  c.apiKey,
			"cx":   c.searchEngineID,
			"q":    query,
			"num":  strconv.Itoa(count),
			"safe": "medium",
		}).
		SetResult(&result).
		Get(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("google search failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("google search failed: status %d", resp.StatusCode())
	}

	results := make([]WebResult, 0, len(result.Items))
	for _, item := range result.Items {
		results = append(results, WebResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
		})
	}

	return results, nil
}
