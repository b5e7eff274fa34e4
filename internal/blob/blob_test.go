package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMIMETypeForPointer(t *testing.T) {
	assert.Equal(t, "image/jpeg", MIMETypeForPointer("items/42/front.jpg"))
	assert.Equal(t, "image/png", MIMETypeForPointer("items/42/BACK.PNG"))
	assert.Equal(t, "image/webp", MIMETypeForPointer("a/b.webp"))
	assert.Equal(t, "image/jpeg", MIMETypeForPointer("no-extension"))
}

func TestFSStore_RoundTrip(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	data := []byte{0x89, 0x50, 0x4E, 0x47}
	require.NoError(t, store.Put(ctx, "items/42/front.png", data, "image/png"))

	got, err := store.Get(ctx, "items/42/front.png")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFSStore_MissingBlob(t *testing.T) {
	store := NewFSStore(t.TempDir())

	_, err := store.Get(context.Background(), "items/1/nope.jpg")
	require.Error(t, err)
}

func TestFSStore_RejectsEscapingPointer(t *testing.T) {
	store := NewFSStore(t.TempDir())

	_, err := store.Get(context.Background(), "../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid blob pointer")
}

func TestHTTPStore_Get(t *testing.T) {
	imageData := []byte{0xff, 0xd8, 0xff}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/items/42/front.jpg", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(imageData)
	}))
	defer ts.Close()

	store := NewHTTPStore(ts.URL)
	got, err := store.Get(context.Background(), "items/42/front.jpg")
	require.NoError(t, err)
	assert.Equal(t, imageData, got)
}

func TestHTTPStore_GetNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	store := NewHTTPStore(ts.URL)
	_, err := store.Get(context.Background(), "items/42/gone.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestHTTPStore_GetWrongContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>"))
	}))
	defer ts.Close()

	store := NewHTTPStore(ts.URL)
	_, err := store.Get(context.Background(), "items/42/front.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid content type")
}

func TestHTTPStore_GetTooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(make([]byte, 64))
	}))
	defer ts.Close()

	store := NewHTTPStore(ts.URL).WithMaxSize(16)
	_, err := store.Get(context.Background(), "items/42/huge.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestHTTPStore_Put(t *testing.T) {
	var gotMethod, gotContentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := NewHTTPStore(ts.URL)
	err := store.Put(context.Background(), "items/42/front.jpg", []byte{1, 2, 3}, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "image/jpeg", gotContentType)
}
