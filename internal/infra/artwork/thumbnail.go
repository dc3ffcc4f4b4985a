package artwork

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Thumbnail scales an encoded image to fit within maxSize and returns it as
// JPEG. Images already small enough are returned unchanged.
func Thumbnail(data []byte, maxSize int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() <= maxSize && b.Dy() <= maxSize {
		return data, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resize(src, maxSize), &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// resize keeps the aspect ratio.
func resize(src image.Image, maxSize int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	var newW, newH int
	if srcW > srcH {
		newW = maxSize
		newH = max(1, srcH*maxSize/srcW)
	} else {
		newH = maxSize
		newW = max(1, srcW*maxSize/srcH)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
