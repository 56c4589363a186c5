package media

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeProvider struct {
	calls []struct {
		name   string
		folder string
		size   int
	}
	err error
}

func (p *fakeProvider) Upload(_ context.Context, content []byte, name, folder string) (StoredObject, error) {
	p.calls = append(p.calls, struct {
		name   string
		folder string
		size   int
	}{name: name, folder: folder, size: len(content)})
	if p.err != nil {
		return StoredObject{}, p.err
	}
	return StoredObject{ID: "item-1", Name: name, WebURL: "https://example.test/" + name, Size: int64(len(content))}, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestPolicyCheck(t *testing.T) {
	t.Parallel()

	policy := Policy{MaxBytes: 10, AllowedExtensions: []string{"pdf", "png"}}
	tests := []struct {
		name    string
		file    string
		size    int64
		wantErr error
	}{
		{name: "allowed", file: "report.PDF", size: 5},
		{name: "too large", file: "report.pdf", size: 11, wantErr: ErrAssetTooLarge},
		{name: "bad extension", file: "run.exe", size: 1, wantErr: ErrExtensionNotAllowed},
		{name: "no extension", file: "README", size: 1, wantErr: ErrExtensionNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := policy.Check(tt.file, tt.size)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if err := (Policy{}).Check("anything.bin", 1<<30); err != nil {
		t.Fatalf("empty policy must accept: %v", err)
	}
}

func TestIngestImageUsesHashNameAndMonthFolder(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	svc := NewService(nil, provider, Policy{MaxBytes: 1024, AllowedExtensions: []string{"png"}})

	asset, err := svc.Ingest(context.Background(), IngestInput{
		MediaType:  MediaTypeImage,
		UserID:     "U1",
		Data:       pngHeader,
		ReceivedAt: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.Mime != "image/png" {
		t.Fatalf("unexpected mime: %s", asset.Mime)
	}
	if asset.Folder != "images/2024-03" {
		t.Fatalf("unexpected folder: %s", asset.Folder)
	}
	if !strings.HasSuffix(asset.Name, ".png") || len(asset.Name) != 20 {
		t.Fatalf("unexpected name: %s", asset.Name)
	}
	if !strings.HasPrefix(asset.ContentHash, strings.TrimSuffix(asset.Name, ".png")) {
		t.Fatalf("name should derive from hash: %s vs %s", asset.Name, asset.ContentHash)
	}
	if asset.StorageID != "item-1" {
		t.Fatalf("unexpected storage id: %s", asset.StorageID)
	}
	if len(provider.calls) != 1 || provider.calls[0].folder != "images/2024-03" {
		t.Fatalf("unexpected provider calls: %+v", provider.calls)
	}
}

func TestIngestFileKeepsBaseName(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	svc := NewService(nil, provider, Policy{AllowedExtensions: []string{"txt"}})

	asset, err := svc.Ingest(context.Background(), IngestInput{
		MediaType:    MediaTypeFile,
		OriginalName: "../../etc/notes.txt",
		Data:         []byte("hello"),
		ReceivedAt:   time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.Name != "notes.txt" {
		t.Fatalf("unexpected name: %s", asset.Name)
	}
	if asset.Folder != "files/2024-12" {
		t.Fatalf("unexpected folder: %s", asset.Folder)
	}
	if !strings.HasPrefix(asset.Mime, "text/plain") {
		t.Fatalf("unexpected mime: %s", asset.Mime)
	}
}

func TestIngestErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, nil, Policy{}).Ingest(context.Background(), IngestInput{Data: []byte("x")}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	provider := &fakeProvider{}
	svc := NewService(nil, provider, Policy{AllowedExtensions: []string{"pdf"}})
	if _, err := svc.Ingest(context.Background(), IngestInput{MediaType: MediaTypeFile}); !errors.Is(err, ErrEmptyAsset) {
		t.Fatalf("expected ErrEmptyAsset, got %v", err)
	}
	if _, err := svc.Ingest(context.Background(), IngestInput{MediaType: MediaTypeFile, OriginalName: "a.exe", Data: []byte("x")}); !errors.Is(err, ErrExtensionNotAllowed) {
		t.Fatalf("expected ErrExtensionNotAllowed, got %v", err)
	}
	if len(provider.calls) != 0 {
		t.Fatalf("policy failures must not upload, got %d calls", len(provider.calls))
	}

	boom := errors.New("boom")
	failing := NewService(nil, &fakeProvider{err: boom}, Policy{})
	if _, err := failing.Ingest(context.Background(), IngestInput{MediaType: MediaTypeFile, OriginalName: "a.pdf", Data: []byte("x")}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
