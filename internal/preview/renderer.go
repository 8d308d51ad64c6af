// Package preview renders single PDF pages to JPEG thumbnails.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// ErrPageOutOfRange is returned for page numbers outside 1..pageCount.
var ErrPageOutOfRange = errors.New("page out of range")

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Options control rendering. Zero values fall back to 72 DPI and quality 80.
type Options struct {
	DPI     int
	Quality int
	Color   ColorMode
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = 72
	}
	if o.Quality < 1 || o.Quality > 100 {
		o.Quality = 80
	}
	if o.Color == "" {
		o.Color = ColorRGB
	}
	return o
}

// Image is an encoded page preview.
type Image struct {
	JPEG   []byte
	Width  int
	Height int
}

// RenderPage renders 1-based page of the PDF in data as a JPEG.
func RenderPage(data []byte, page int, opts Options) (*Image, error) {
	opts = opts.withDefaults()

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, doc.NumPage())
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(page-1, float64(opts.DPI))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	bounds := img.Bounds()

	var final image.Image = img
	if opts.Color == ColorGray {
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, image.Point{}, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", page).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Str("color", string(opts.Color)).
		Int("jpeg_size", buf.Len()).
		Msg("rendered page preview")

	return &Image{JPEG: buf.Bytes(), Width: bounds.Dx(), Height: bounds.Dy()}, nil
}
