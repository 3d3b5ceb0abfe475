// container.go — Length-prefixed bitstream framing.
package stego

import "encoding/binary"

// HeaderBits is the width of the length prefix.
const HeaderBits = 32

// MaxPayload is the largest ciphertext the length prefix can describe.
const MaxPayload = 1<<32 - 1

// containerBits returns the embedded size of a ciphertext of n bytes,
// including zero padding up to the next byte boundary.
func containerBits(n int) int {
	bits := HeaderBits + n*8
	return (bits + 7) &^ 7
}

// frame builds the container bytes for ciphertext, zero padded to
// containerBits.
func frame(ciphertext []byte) []byte {
	buf := make([]byte, containerBits(len(ciphertext))/8)
	binary.BigEndian.PutUint32(buf, uint32(len(ciphertext)))
	copy(buf[HeaderBits/8:], ciphertext)
	return buf
}

// embed writes the first nbits of data, MSB first, into consecutive carriers
// starting at pixel start.
func embed(pixels *PixelBuffer, start int, data []byte, nbits int) {
	for i := 0; i < nbits; i++ {
		bit := data[i>>3] >> (7 - uint(i&7)) & 1
		pixels.setBit(start+i, bit)
	}
}

// extract reads up to nbytes whole bytes, MSB first, from consecutive carriers
// starting at pixel start. It stops early when the buffer runs out and drops
// any trailing partial byte.
func extract(pixels *PixelBuffer, start, nbytes int) []byte {
	avail := (pixels.Len() - start) / 8
	if avail < 0 {
		avail = 0
	}
	n := min(nbytes, avail)
	out := make([]byte, n)
	for i := 0; i < n*8; i++ {
		out[i>>3] |= pixels.bit(start+i) << (7 - uint(i&7))
	}
	return out
}

// readHeader decodes the 32-bit length prefix.
func readHeader(pixels *PixelBuffer) uint32 {
	return binary.BigEndian.Uint32(extract(pixels, 0, HeaderBits/8))
}
