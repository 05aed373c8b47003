package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/ksb-community/apiserver/internal/storage"
)

// memoryBackend is an in-memory storage.ObjectStorage.
type memoryBackend struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (b *memoryBackend) EnsureBucket(context.Context) error { return nil }

func (b *memoryBackend) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = data
	b.contentTypes[key] = contentType
	return nil
}

func (b *memoryBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBackend) Delete(_ context.Context, key string) error {
	delete(b.objects, key)
	return nil
}

func (b *memoryBackend) Bucket() string { return "test-bucket" }

func dataURL(mimeType string, payload []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

func TestIngestStoresDataURL(t *testing.T) {
	backend := newMemoryBackend()
	svc := NewImageService(storage.NewStorage(backend))

	payload := []byte{0x89, 'P', 'N', 'G'}
	url, err := svc.Ingest(context.Background(), dataURL("image/png", payload))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if !strings.HasPrefix(url, "/images/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("unexpected object url %q", url)
	}

	key := strings.TrimPrefix(url, "/")
	stored, ok := backend.objects[key]
	if !ok {
		t.Fatalf("object %q was not stored", key)
	}
	if !bytes.Equal(stored, payload) {
		t.Fatalf("stored payload differs from input")
	}
	if backend.contentTypes[key] != "image/png" {
		t.Fatalf("content type = %q, want image/png", backend.contentTypes[key])
	}
}

func TestIngestPassesThroughRemoteURLs(t *testing.T) {
	svc := NewImageService(storage.NewStorage(newMemoryBackend()))

	const remote = "https://cdn.example.com/pic.jpg"
	url, err := svc.Ingest(context.Background(), remote)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if url != remote {
		t.Fatalf("remote url rewritten to %q", url)
	}

	empty, err := svc.Ingest(context.Background(), "")
	if err != nil || empty != "" {
		t.Fatalf("empty value changed: %q, %v", empty, err)
	}
}

func TestIngestWithoutBackendKeepsDataURL(t *testing.T) {
	svc := NewImageService(nil)

	value := dataURL("image/png", []byte("x"))
	url, err := svc.Ingest(context.Background(), value)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if url != value {
		t.Fatalf("data url rewritten without a backend")
	}
}

func TestIngestRejectsBadPayloads(t *testing.T) {
	svc := NewImageService(storage.NewStorage(newMemoryBackend()))

	cases := []string{
		"data:image/png;base64,!!!not-base64!!!",
		"data:image/png,plain-not-base64",
		"data:application/zip;base64," + base64.StdEncoding.EncodeToString([]byte("zip")),
		"data:no-comma",
	}
	for _, value := range cases {
		if _, err := svc.Ingest(context.Background(), value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestContentTypeFromKey(t *testing.T) {
	svc := NewImageService(storage.NewStorage(newMemoryBackend()))

	if got := svc.ContentType("abc.png"); got != "image/png" {
		t.Fatalf("content type for png = %q", got)
	}
	if got := svc.ContentType("abc.jpg"); got != "image/jpeg" {
		t.Fatalf("content type for jpg = %q", got)
	}
	if got := svc.ContentType("abc.bin"); got != "application/octet-stream" {
		t.Fatalf("content type for unknown ext = %q", got)
	}
}
