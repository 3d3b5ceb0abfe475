// Package stego hides sealed text in the least-significant bit of one carrier
// channel per pixel.
//
// The embedded container is
//
//	[length:32 bits, big-endian, ciphertext bytes][ciphertext bits, MSB first][zero pad to a byte]
//
// Bit i of the container lives in the carrier channel of pixel i.
package stego

import "fmt"

// PixelBuffer is a flat, pixel-major view of an image: Pix holds Channels
// consecutive values per pixel and the last channel of each pixel is the
// carrier. The codec borrows a buffer for one call and never retains it.
type PixelBuffer struct {
	Pix      []uint8
	Channels int
}

// NewPixelBuffer allocates a zeroed buffer of n pixels.
func NewPixelBuffer(n, channels int) *PixelBuffer {
	return &PixelBuffer{Pix: make([]uint8, n*channels), Channels: channels}
}

// Len returns the number of pixels, which is also the carrier capacity in bits.
func (b *PixelBuffer) Len() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Pix) / b.Channels
}

// Validate reports a buffer whose shape the codec cannot address.
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("stego: nil pixel buffer")
	}
	if b.Channels < 1 || b.Channels > 4 {
		return fmt.Errorf("stego: unsupported channel count %d", b.Channels)
	}
	if len(b.Pix)%b.Channels != 0 {
		return fmt.Errorf("stego: pixel data length %d is not a multiple of %d channels", len(b.Pix), b.Channels)
	}
	return nil
}

// carrier returns the index in Pix of pixel i's carrier channel.
func (b *PixelBuffer) carrier(i int) int {
	return i*b.Channels + b.Channels - 1
}

// setBit overwrites bit 0 of pixel i's carrier.
func (b *PixelBuffer) setBit(i int, bit byte) {
	j := b.carrier(i)
	b.Pix[j] = b.Pix[j]&0xFE | bit
}

// bit returns bit 0 of pixel i's carrier.
func (b *PixelBuffer) bit(i int) byte {
	return b.Pix[b.carrier(i)] & 1
}
