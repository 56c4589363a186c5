package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/memohai/linebot/internal/config"
)

// Limit is the largest download accepted under the policy. Without a
// configured MAX_FILE_SIZE the upload default applies, so nothing bigger
// than what could be stored is ever pulled from LINE.
func (p Policy) Limit() int64 {
	if p.MaxBytes > 0 {
		return p.MaxBytes
	}
	return config.DefaultMaxFileSize
}

// ReadLimited drains r into memory and fails with ErrAssetTooLarge as soon as
// more than limit bytes arrive. LINE content responses often omit
// Content-Length, so the cap is enforced on the stream itself.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, errors.New("content stream is nil")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("content limit must be positive, got %d", limit)
	}
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", ErrAssetTooLarge, limit)
	}
	return buf.Bytes(), nil
}
