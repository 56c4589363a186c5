package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

// Policy limits what may be uploaded.
type Policy struct {
	MaxBytes          int64
	AllowedExtensions []string
}

// Check validates name and size against the policy. An empty allowlist accepts any extension.
func (p Policy) Check(name string, size int64) error {
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return fmt.Errorf("%w: %d bytes exceeds max %d bytes", ErrAssetTooLarge, size, p.MaxBytes)
	}
	if len(p.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" || !lo.Contains(p.AllowedExtensions, ext) {
		return fmt.Errorf("%w: %q", ErrExtensionNotAllowed, name)
	}
	return nil
}

// Service stores inbound attachments through a StorageProvider.
type Service struct {
	provider StorageProvider
	policy   Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a media service. provider may be nil, in which case
// Ingest reports ErrProviderUnavailable.
func NewService(log *slog.Logger, provider StorageProvider, policy Policy) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		provider: provider,
		policy:   policy,
		logger:   log.With(slog.String("service", "media")),
		now:      time.Now,
	}
}

// Policy returns the upload policy in effect.
func (s *Service) Policy() Policy {
	return s.policy
}

// Ingest sniffs, names and uploads an attachment. Images are stored under a
// content-hash name; files keep their original name.
func (s *Service) Ingest(ctx context.Context, input IngestInput) (Asset, error) {
	if s.provider == nil {
		return Asset{}, ErrProviderUnavailable
	}
	if len(input.Data) == 0 {
		return Asset{}, ErrEmptyAsset
	}

	detected := mimetype.Detect(input.Data)
	mime := strings.TrimSpace(input.Mime)
	if mime == "" || mime == "application/octet-stream" {
		mime = detected.String()
	}
	sum := sha256.Sum256(input.Data)
	contentHash := hex.EncodeToString(sum[:])

	name := sanitizeName(input.OriginalName)
	if name == "" {
		ext := detected.Extension()
		if ext == "" {
			ext = ".bin"
		}
		name = contentHash[:16] + ext
	}
	if err := s.policy.Check(name, int64(len(input.Data))); err != nil {
		return Asset{}, err
	}

	at := input.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	folder := input.MediaType.Folder(at)

	obj, err := s.provider.Upload(ctx, input.Data, name, folder)
	if err != nil {
		return Asset{}, fmt.Errorf("store media: %w", err)
	}
	asset := Asset{
		MediaType:    input.MediaType,
		Name:         lo.CoalesceOrEmpty(obj.Name, name),
		Folder:       folder,
		OriginalName: input.OriginalName,
		Mime:         mime,
		SizeBytes:    int64(len(input.Data)),
		ContentHash:  contentHash,
		StorageID:    obj.ID,
		WebURL:       obj.WebURL,
	}
	s.logger.Info("media stored",
		slog.String("user_id", input.UserID),
		slog.String("media_type", string(asset.MediaType)),
		slog.String("folder", asset.Folder),
		slog.String("name", asset.Name),
		slog.String("mime", asset.Mime),
		slog.Int64("size_bytes", asset.SizeBytes),
	)
	return asset, nil
}

// sanitizeName strips any directory components so a platform-supplied name
// cannot escape the target folder.
func sanitizeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
