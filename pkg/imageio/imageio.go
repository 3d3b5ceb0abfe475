// Package imageio converts image files to and from the flat pixel buffers the
// stego codec works on.
//
// Images with an alpha channel are exposed as 4-channel buffers whose carrier
// is alpha; opaque images as 3-channel buffers whose carrier is blue. Pixel
// order is row-major and stable between Pixels and Put on the same Image.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/xob0t/stegcrypt/pkg/stego"
)

// Image is a decoded image held as non-premultiplied RGBA.
type Image struct {
	img    *image.NRGBA
	alpha  bool   // carrier is alpha rather than blue
	Format string // source format reported by the decoder
}

// Load decodes the image file at path.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	im, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return im, nil
}

// Decode reads any registered image format from r.
func Decode(r io.Reader) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return FromImage(src, format), nil
}

// FromImage copies src into a new Image.
func FromImage(src image.Image, format string) *Image {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return &Image{img: dst, alpha: hasAlpha(src), Format: format}
}

// hasAlpha reports whether src's color model carries an alpha channel that
// is worth preserving. Opaque RGBA images (as png decodes truecolor files)
// count as having none.
func hasAlpha(src image.Image) bool {
	switch src.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.YCbCrModel, color.CMYKModel:
		return false
	}
	if o, ok := src.(interface{ Opaque() bool }); ok && o.Opaque() {
		return false
	}
	return true
}

// Width returns the image width in pixels.
func (m *Image) Width() int { return m.img.Rect.Dx() }

// Height returns the image height in pixels.
func (m *Image) Height() int { return m.img.Rect.Dy() }

// Channels is 4 when the carrier is alpha, 3 when it is blue.
func (m *Image) Channels() int {
	if m.alpha {
		return 4
	}
	return 3
}

// NRGBA returns the underlying image. Callers must not modify it while a
// PixelBuffer taken from it is outstanding.
func (m *Image) NRGBA() *image.NRGBA { return m.img }

// Pixels returns a copy of the image as a pixel buffer.
func (m *Image) Pixels() *stego.PixelBuffer {
	if m.alpha {
		pix := make([]uint8, len(m.img.Pix))
		copy(pix, m.img.Pix)
		return &stego.PixelBuffer{Pix: pix, Channels: 4}
	}

	n := m.Width() * m.Height()
	buf := stego.NewPixelBuffer(n, 3)
	for i := 0; i < n; i++ {
		copy(buf.Pix[i*3:i*3+3], m.img.Pix[i*4:i*4+3])
	}
	return buf
}

// ErrShape reports a pixel buffer that does not match the image.
var ErrShape = errors.New("imageio: pixel buffer does not match image")

// Put writes buf back into the image. buf must come from Pixels on this image
// (same pixel count and channel layout).
func (m *Image) Put(buf *stego.PixelBuffer) error {
	n := m.Width() * m.Height()
	if buf == nil || buf.Channels != m.Channels() || buf.Len() != n || len(buf.Pix) != n*buf.Channels {
		return ErrShape
	}

	if m.alpha {
		copy(m.img.Pix, buf.Pix)
		return nil
	}
	for i := 0; i < n; i++ {
		copy(m.img.Pix[i*4:i*4+3], buf.Pix[i*3:i*3+3])
		m.img.Pix[i*4+3] = 0xFF
	}
	return nil
}
