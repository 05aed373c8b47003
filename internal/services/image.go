package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ksb-community/apiserver/internal/storage"
)

const imageKeyPrefix = "images/"

// ErrInvalidImage is returned when a data URL payload cannot be decoded.
var ErrInvalidImage = errors.New("invalid image payload")

var imageExtensions = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
}

// ImageService moves inline data-URL uploads into object storage. With
// no backend configured the payload is passed through untouched, so the
// stored column may hold an object path, a remote URL, or a raw data
// URL interchangeably.
type ImageService struct {
	storage *storage.Storage
}

func NewImageService(backend *storage.Storage) *ImageService {
	return &ImageService{storage: backend}
}

// Ingest stores a data-URL image as an object and returns its servable
// path. Any other value (remote URL, empty string, or data URL with no
// backend configured) is returned as-is.
func (s *ImageService) Ingest(ctx context.Context, value string) (string, error) {
	if s.storage == nil || !strings.HasPrefix(value, "data:") {
		return value, nil
	}

	mimeType, data, err := decodeDataURL(value)
	if err != nil {
		return "", err
	}

	ext, ok := imageExtensions[mimeType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidImage, mimeType)
	}

	key := imageKeyPrefix + newObjectID() + "." + ext
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return "", err
	}
	return "/" + key, nil
}

// Open streams a previously ingested object.
func (s *ImageService) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.storage == nil {
		return nil, errors.New("object storage is not configured")
	}
	return s.storage.Get(ctx, imageKeyPrefix+key)
}

// ContentType derives the response content type from the object key.
func (s *ImageService) ContentType(key string) string {
	ext := strings.TrimPrefix(path.Ext(key), ".")
	for mimeType, candidate := range imageExtensions {
		if candidate == ext {
			return mimeType
		}
	}
	return "application/octet-stream"
}

func decodeDataURL(value string) (string, []byte, error) {
	rest := strings.TrimPrefix(value, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidImage
	}

	mimeType, encoding, hasEncoding := strings.Cut(meta, ";")
	if !hasEncoding || encoding != "base64" {
		return "", nil, fmt.Errorf("%w: only base64 data URLs are accepted", ErrInvalidImage)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return mimeType, data, nil
}

func newObjectID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
