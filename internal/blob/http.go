package blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// DefaultMaxBlobSize is the maximum blob size accepted on download (10MB).
const DefaultMaxBlobSize = 10 * 1024 * 1024

// HTTPStore is a blob gateway client over HTTP. Pointers map to URL paths
// under the gateway base URL.
type HTTPStore struct {
	httpClient *resty.Client
	maxSize    int64
}

// NewHTTPStore creates a gateway client for the given base URL.
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		httpClient: resty.New().SetBaseURL(strings.TrimSuffix(baseURL, "/")),
		maxSize:    DefaultMaxBlobSize,
	}
}

// WithMaxSize sets a custom maximum download size.
func (s *HTTPStore) WithMaxSize(maxSize int64) *HTTPStore {
	s.maxSize = maxSize
	return s
}

// Get implements the Store interface.
func (s *HTTPStore) Get(ctx context.Context, pointer string) ([]byte, error) {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		Get("/" + strings.TrimPrefix(pointer, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", pointer, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("blob download failed: %s: status %d", pointer, resp.StatusCode())
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("invalid content type for %s: expected image/*, got %s", pointer, contentType)
	}

	data := resp.Body()
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("blob too large: %s: %d bytes exceeds limit of %d bytes", pointer, len(data), s.maxSize)
	}

	return data, nil
}

// Put implements the Store interface.
func (s *HTTPStore) Put(ctx context.Context, pointer string, data []byte, contentType string) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Put("/" + strings.TrimPrefix(pointer, "/"))
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", pointer, err)
	}
	if resp.IsError() {
		return fmt.Errorf("blob upload failed: %s: status %d", pointer, resp.StatusCode())
	}
	return nil
}
