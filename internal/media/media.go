// Package media stores captured screenshots on disk with TTL cleanup
// and shrinks oversized captures to transferable dimensions.
package media

import (
	"encoding/base64"

	"github.com/gabriel-vasile/mimetype"
)

// Limits applied to captures before they are handed to a consumer.
const (
	MaxDimension = 2000            // max width or height in pixels
	MaxBytes     = 5 * 1024 * 1024 // 5MB max encoded size
)

// SupportedMIMETypes lists the encodings a capture may arrive in.
var SupportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageData is a processed capture.
type ImageData struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Base64 returns the image bytes base64-encoded.
func (img *ImageData) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// Size returns the encoded size in bytes.
func (img *ImageData) Size() int {
	return len(img.Data)
}

// IsWithinLimits reports whether the image needs no further shrinking.
func (img *ImageData) IsWithinLimits() bool {
	return img.Width <= MaxDimension &&
		img.Height <= MaxDimension &&
		len(img.Data) <= MaxBytes
}

// DetectMIME sniffs the MIME type from magic bytes, never from a file
// extension.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsSupported reports whether data in this MIME type can be processed.
func IsSupported(mimeType string) bool {
	return SupportedMIMETypes[mimeType]
}

// ExtensionFor maps a supported MIME type to a file extension.
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}
