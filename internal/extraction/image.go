package extraction

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// maxImageSide is the longest side sent to the backend; larger images are
// downscaled client-side to keep payloads small.
const maxImageSide = 1024

// ValidatePayload checks an incoming image payload before any extraction
// work: it must be non-empty, within the configured size cap, and decodable.
func ValidatePayload(data []byte, maxBytes int) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(data), maxBytes)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	return nil
}

// PrepareImage downscales an image to fit within maxImageSide while keeping
// aspect ratio, re-encoding as JPEG. Images already small enough are
// returned unchanged.
func PrepareImage(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxImageSide && height <= maxImageSide {
		return data, nil
	}

	// Calculate new dimensions.
	var newWidth, newHeight int
	if width > height {
		newWidth = maxImageSide
		newHeight = int(float64(height) * float64(maxImageSide) / float64(width))
	} else {
		newHeight = maxImageSide
		newWidth = int(float64(width) * float64(maxImageSide) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
