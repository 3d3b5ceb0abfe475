// Package generator creates cover images to hide text in.
//
// A cover is an opaque canvas (solid color or noise) with an optional caption,
// written through imageio so only lossless formats are produced. Noise covers
// hide LSB changes better than flat ones.
package generator

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/xob0t/stegcrypt/pkg/imageio"
	"github.com/xob0t/stegcrypt/pkg/stego"
)

// Config holds parameters for cover generation.
type Config struct {
	Width   int    // Pixel width (default: 640)
	Height  int    // Pixel height (default: 480)
	Color   string // Hex "#rrggbb" or "random"
	Noise   bool   // Fill with random pixels instead of a solid color
	Caption string // Optional text drawn onto the cover
	Font    string // Optional TTF path for the caption
}

const (
	defaultWidth  = 640
	defaultHeight = 480
)

// Generate creates a cover image file. The format is inferred from the file
// extension: ".png", ".bmp" or ".tiff".
func Generate(output string, cfg Config) error {
	img, err := Render(cfg)
	if err != nil {
		return err
	}
	return imageio.FromImage(img, "").Save(output)
}

// GenerateToWriter writes a cover to w in the given format ("png", "bmp", "tiff").
func GenerateToWriter(w io.Writer, format string, cfg Config) error {
	f, err := imageio.ParseFormat(format)
	if err != nil {
		return err
	}
	img, err := Render(cfg)
	if err != nil {
		return err
	}
	return imageio.FromImage(img, "").Encode(w, f)
}

// Render builds the cover image in memory.
func Render(cfg Config) (*image.RGBA, error) {
	w := cfg.Width
	if w <= 0 {
		w = defaultWidth
	}
	h := cfg.Height
	if h <= 0 {
		h = defaultHeight
	}

	var img *image.RGBA
	if cfg.Noise {
		var err error
		if img, err = NewNoiseImage(w, h); err != nil {
			return nil, err
		}
	} else {
		r, g, b, err := ParseColor(cfg.Color)
		if err != nil {
			return nil, err
		}
		img = NewSolidImage(w, h, toRGBA(r, g, b))
	}

	if cfg.Caption != "" {
		if err := drawCaption(img, cfg.Caption, cfg.Font); err != nil {
			return nil, fmt.Errorf("caption: %w", err)
		}
	}
	return img, nil
}

// SizeFor returns the dimensions of the smallest square cover that can hold
// a plaintext of n bytes, never smaller than minSide on either axis.
func SizeFor(n, minSide int) (w, h int) {
	need := stego.RequiredPixels(n)
	side := int(math.Ceil(math.Sqrt(float64(need))))
	side = max(side, minSide, 1)
	return side, side
}
