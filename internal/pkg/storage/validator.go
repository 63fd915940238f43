package storage

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds maximum size")
	ErrInvalidMimeType = errors.New("file type not allowed")
	ErrEmptyFile       = errors.New("file is empty")
)

// MaxImageSize bounds provider-supplied images (10MB).
const MaxImageSize int64 = 10 * 1024 * 1024

// AllowedImageTypes lists the MIME types accepted as background images.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// ValidateImage sniffs data and returns its MIME type if it is an allowed
// image no larger than maxSize.
func ValidateImage(data []byte, maxSize int64) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if int64(len(data)) > maxSize {
		return "", ErrFileTooLarge
	}

	// Detect MIME type from content (magic bytes)
	mimeType := http.DetectContentType(data)
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	for _, t := range AllowedImageTypes {
		if t == mimeType {
			return mimeType, nil
		}
	}
	return "", ErrInvalidMimeType
}

// ExtensionFor maps an allowed image MIME type to a file extension.
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
