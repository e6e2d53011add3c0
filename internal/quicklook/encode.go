package quicklook

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// maxSide caps the longest side of a scaled quicklook.
const maxSide = 4096

// Result contains an encoded quicklook
type Result struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Crop extracts the pixel window (x1,y1)-(x2,y2) of img, x2 and y2 exclusive.
func Crop(img image.Image, x1, y1, x2, y2 int) (*image.NRGBA, error) {
	bounds := img.Bounds()
	if x1 < bounds.Min.X || y1 < bounds.Min.Y || x2 > bounds.Max.X || y2 > bounds.Max.Y {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			x1, y1, x2, y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}
	return imaging.Crop(img, image.Rect(x1, y1, x2, y2)), nil
}

// Scale resizes img by factor with nearest-neighbour sampling. The result is
// capped so its longest side does not exceed 4096 pixels.
func Scale(img image.Image, factor float64) (image.Image, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %g", factor)
	}
	b := img.Bounds()
	if longest := float64(max(b.Dx(), b.Dy())); longest*factor > maxSide {
		factor = maxSide / longest
	}
	if factor == 1 {
		return img, nil
	}
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))
	return imaging.Resize(img, w, h, imaging.NearestNeighbor), nil
}

// Encode scales img and returns it as base64 PNG data.
func Encode(img image.Image, factor float64) (*Result, error) {
	scaled, err := Scale(img, factor)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("failed to encode quicklook: %w", err)
	}
	return &Result{
		Width:       scaled.Bounds().Dx(),
		Height:      scaled.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// Save scales img and writes it as a PNG file, creating parent directories.
func Save(path string, img image.Image, factor float64) error {
	scaled, err := Scale(img, factor)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create quicklook directory: %w", err)
	}
	if err := imaging.Save(scaled, path); err != nil {
		return fmt.Errorf("failed to save quicklook %s: %w", path, err)
	}
	return nil
}
