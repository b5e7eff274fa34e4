// Package blob provides access to raw image bytes by opaque pointer.
// Pointers are slash-separated paths (e.g. "items/42/front.jpg"); what they
// resolve to is a gateway concern.
package blob

import (
	"context"
	"path"
	"strings"
)

// Store is the blob gateway contract.
type Store interface {
	// Get downloads the blob at the given pointer.
	Get(ctx context.Context, pointer string) ([]byte, error)
	// Put uploads data to the given pointer.
	Put(ctx context.Context, pointer string, data []byte, contentType string) error
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// MIMETypeForPointer infers an image MIME type from the pointer's file
// extension, defaulting to image/jpeg.
func MIMETypeForPointer(pointer string) string {
	ext := strings.ToLower(path.Ext(pointer))
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return "image/jpeg"
}
