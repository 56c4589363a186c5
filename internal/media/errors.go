package media

import "errors"

var (
	// ErrProviderUnavailable means no storage backend is wired, typically
	// because the Microsoft Graph credentials are absent.
	ErrProviderUnavailable = errors.New("storage provider unavailable")
	// ErrAssetTooLarge means the attachment exceeds MAX_FILE_SIZE.
	ErrAssetTooLarge = errors.New("attachment too large")
	// ErrExtensionNotAllowed means the file name is outside ALLOWED_EXTENSIONS.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	// ErrEmptyAsset means LINE returned no content for the message.
	ErrEmptyAsset = errors.New("attachment is empty")
)
