package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBunjangClient_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "iPhone 13", r.URL.Query().Get("q"))
		assert.Equal(t, "score", r.URL.Query().Get("order"))
		assert.Equal(t, "0", r.URL.Query().Get("page"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"list": [
			{"name": "iPhone 13 128GB", "price": "700000", "used": 1, "free_shipping": true},
			{"name": "iPhone 13 unopened", "price": "950000", "used": 2, "free_shipping": false},
			{"name": "iPhone 13 case", "price": "junk", "used": 0, "free_shipping": false},
			{"name": "iPhone 13 mini", "price": 450000, "used": 0, "free_shipping": false}
		]}`))
	}))
	defer ts.Close()

	client := NewBunjangClientWithURL(ts.URL)
	listings, err := client.Search(context.Background(), "iPhone 13", 0, "")
	require.NoError(t, err)
	require.Len(t, listings, 3) // unparseable price dropped

	assert.Equal(t, Listing{Name: "iPhone 13 128GB", Price: 700000, Condition: ConditionUsed, FreeShipping: true}, listings[0])
	assert.Equal(t, ConditionNew, listings[1].Condition)
	assert.Equal(t, ConditionUnknown, listings[2].Condition)
}

func TestBunjangClient_SearchServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := NewBunjangClientWithURL(ts.URL)
	_, err := client.Search(context.Background(), "anything", 0, "score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestGoogleClient_Search(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "api-key", q.Get("key"))
		assert.Equal(t, "engine-id", q.Get("cx"))
		assert.Equal(t, "iPhone 13 used", q.Get("q"))
		assert.Equal(t, "10", q.Get("num"))
		assert.Equal(t, "medium", q.Get("safe"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": [
			{"title": "iPhone 13 price guide", "link": "https://example.com/a", "snippet": "Typical used prices..."}
		]}`))
	}))
	defer ts.Close()

	client := NewGoogleClientWithURL(ts.URL, "api-key", "engine-id")
	results, err := client.Search(context.Background(), "iPhone 13 used", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "iPhone 13 price guide", results[0].Title)
	assert.Equal(t, "https://example.com/a", results[0].Link)
}

func TestGoogleClient_SearchNoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewGoogleClientWithURL(ts.URL, "k", "cx")
	results, err := client.Search(context.Background(), "obscure item", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
