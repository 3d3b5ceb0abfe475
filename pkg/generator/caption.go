// caption.go - Caption rendering with custom TTF support and embedded fallback font.
// Uses golang.org/x/image/font for OpenType rendering. Defaults to Go Regular
// when no custom font is given.
package generator

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// loadFace parses the TTF at path (or the embedded Go font) at a size
// proportional to the canvas height.
func loadFace(path string, canvasHeight int) (font.Face, error) {
	data := goregular.TTF
	if path != "" {
		custom, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", path, err)
		}
		data = custom
	}

	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    max(float64(canvasHeight)/12, 8),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}

// drawCaption draws text centered horizontally, wrapped to the canvas width,
// in white with a one-pixel dark shadow.
func drawCaption(img *image.RGBA, text, fontPath string) error {
	face, err := loadFace(fontPath, img.Bounds().Dy())
	if err != nil {
		return err
	}
	defer face.Close()

	width := img.Bounds().Dx()
	margin := width / 20
	lineHeight := face.Metrics().Height.Ceil()
	lines := wrapText(text, width-2*margin, face)

	y := (img.Bounds().Dy()-lineHeight*len(lines))/2 + face.Metrics().Ascent.Ceil()
	for _, line := range lines {
		x := (width - font.MeasureString(face, line).Ceil()) / 2
		drawString(img, line, x+1, y+1, color.RGBA{0, 0, 0, 160}, face)
		drawString(img, line, x, y, color.RGBA{255, 255, 255, 255}, face)
		y += lineHeight
	}
	return nil
}

// wrapText breaks text into lines that each fit within maxWidth pixels.
func wrapText(text string, maxWidth int, face font.Face) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxWidth <= 0 {
		return []string{strings.Join(words, " ")}
	}

	var lines []string
	currentLine := words[0]
	for _, word := range words[1:] {
		testLine := currentLine + " " + word
		if font.MeasureString(face, testLine).Ceil() > maxWidth {
			lines = append(lines, currentLine)
			currentLine = word
		} else {
			currentLine = testLine
		}
	}
	return append(lines, currentLine)
}

// drawString draws text with its baseline at (x, y).
func drawString(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}
