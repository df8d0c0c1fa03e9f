package scanning

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const defaultMIMEType = "image/jpeg"

var supportedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/gif":       true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
}

// NormalizeMIMEType lowercases a content type, drops parameters and applies the default
func NormalizeMIMEType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		return defaultMIMEType
	}
	return mimeType
}

// ValidateImage checks an image can be sent to a scanner
func ValidateImage(img CapturedImage) error {
	if len(img.Data) == 0 {
		return ErrEmptyImage
	}
	mimeType := NormalizeMIMEType(img.MIMEType)
	if supportedMIMETypes[mimeType] || isHEICFormat(img.Data) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedEncoding, mimeType)
}

// pdfToImage renders the first page of a PDF (most receipts are single page)
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %w", ErrUnsupportedEncoding, err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering PDF page: %w", ErrUnsupportedEncoding, err)
	}
	return img, nil
}

// decodeImage decodes any supported encoding into an image
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	switch {
	case mimeType == "application/pdf":
		return pdfToImage(imageData)
	case isHEICFormat(imageData) || isHEICMimeType(mimeType):
		// Go's standard image package doesn't support HEIC
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC/HEIF image: %w", ErrUnsupportedEncoding, err)
		}
		return img, nil
	default:
		img, _, err := image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding image: %w", ErrUnsupportedEncoding, err)
		}
		return img, nil
	}
}

// isHEICFormat checks for an ftyp box with a HEIC-related brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// prepareImageData validates the image and converts it to PNG unless it already is one.
// Returns the PNG bytes and whether a conversion happened.
func prepareImageData(img CapturedImage) ([]byte, bool, error) {
	if err := ValidateImage(img); err != nil {
		return nil, false, err
	}
	mimeType := NormalizeMIMEType(img.MIMEType)
	if mimeType == "image/png" && !isHEICFormat(img.Data) {
		return img.Data, false, nil
	}

	decoded, err := decodeImage(img.Data, mimeType)
	if err != nil {
		return nil, false, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, decoded); err != nil {
		return nil, false, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), true, nil
}

// dataURL wraps PNG bytes in the inline encoding chat APIs accept
func dataURL(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
