// Package blob stores uploaded brand assets in an object store.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"mime"
	"path"
	"regexp"
	"strings"
)

// ErrEmpty is returned for zero-byte uploads.
var ErrEmpty = errors.New("blob: empty object")

// Object describes a stored asset.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	SHA256      string `json:"sha256"`
}

// Store persists brand assets and returns a retrievable reference.
type Store interface {
	Put(ctx context.Context, brandID, contentType string, data []byte) (*Object, error)
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectKey is content addressed: re-uploading the same bytes for a brand
// yields the same key.
func objectKey(prefix, brandID, contentType string, data []byte) (key, digest string) {
	sum := sha256.Sum256(data)
	digest = hex.EncodeToString(sum[:])
	brand := unsafeSegment.ReplaceAllString(strings.TrimSpace(brandID), "_")
	if brand == "" || brand == "." || brand == ".." {
		brand = "_"
	}
	key = path.Join(prefix, "brands", brand, digest+extensionFor(contentType))
	return strings.TrimPrefix(key, "/"), digest
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/svg+xml":
		return ".svg"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// publicURL prefers the configured CDN base; otherwise an s3:// reference.
func publicURL(baseURL, bucket, key string) string {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/") + "/" + key
	}
	return "s3://" + bucket + "/" + key
}
