// encode.go — Lossless writers and preview scaling.
package imageio

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Format names an output encoding.
type Format string

const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// ParseFormat maps a format name or file extension to a Format. Lossy
// formats are rejected because they destroy least-significant bits.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "png":
		return PNG, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	case "jpg", "jpeg", "gif", "webp":
		return "", fmt.Errorf("format %q is lossy or palettized and would destroy hidden data: use png, bmp or tiff", s)
	default:
		return "", fmt.Errorf("unsupported format %q: use png, bmp or tiff", s)
	}
}

// FormatForPath infers the output format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// MimeType returns the content type for f.
func (f Format) MimeType() string {
	switch f {
	case BMP:
		return "image/bmp"
	case TIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Encode writes the image to w in format f.
func (m *Image) Encode(w io.Writer, f Format) error {
	var err error
	switch f {
	case PNG, "":
		err = png.Encode(w, m.img)
	case BMP:
		if m.alpha {
			return fmt.Errorf("bmp cannot preserve an alpha carrier: use png or tiff")
		}
		err = bmp.Encode(w, m.img)
	case TIFF:
		err = tiff.Encode(w, m.img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	return nil
}

// Save writes the image to path, choosing the format from its extension.
func (m *Image) Save(path string) error {
	f, err := FormatForPath(path)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := m.Encode(out, f); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// DefaultThumbnail is the preview bound in pixels.
const DefaultThumbnail = 300

// Thumbnail returns a copy scaled to fit within bound×bound, keeping the
// aspect ratio. Images already within bounds are returned as is. Previews are
// for display only and never carry the payload.
func (m *Image) Thumbnail(bound int) image.Image {
	if bound <= 0 {
		bound = DefaultThumbnail
	}
	w, h := m.Width(), m.Height()
	if w <= bound && h <= bound {
		return m.img
	}

	tw, th := bound, bound
	if w >= h {
		th = max(h*bound/w, 1)
	} else {
		tw = max(w*bound/h, 1)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, tw, th))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), m.img, m.img.Bounds(), xdraw.Src, nil)
	return dst
}
