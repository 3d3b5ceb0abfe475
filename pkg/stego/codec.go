// codec.go — Encode and decode against a pixel buffer.
package stego

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/xob0t/stegcrypt/pkg/crypt"
	"github.com/xob0t/stegcrypt/pkg/keystore"
)

// Encode seals plaintext under key and embeds the container into pixels.
// Nothing is written unless the whole container fits.
func Encode(plaintext string, key keystore.Key, pixels *PixelBuffer) error {
	if err := pixels.Validate(); err != nil {
		return err
	}

	ciphertext, err := crypt.Seal(key, []byte(plaintext))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncryption, err)
	}
	if uint64(len(ciphertext)) > MaxPayload {
		return ErrPayloadTooLarge
	}

	nbits := containerBits(len(ciphertext))
	if have := pixels.Len(); have < nbits {
		return &CapacityError{Need: nbits, Have: have}
	}

	embed(pixels, 0, frame(ciphertext), nbits)
	return nil
}

type decodeOptions struct {
	strict bool
}

// DecodeOption tunes Decode.
type DecodeOption func(*decodeOptions)

// WithStrictLength reports TruncatedContainer when the image ends before the
// declared payload, instead of attempting to decrypt the bytes that were read.
func WithStrictLength() DecodeOption {
	return func(o *decodeOptions) { o.strict = true }
}

// Decode extracts and opens the container in pixels. A nil key yields
// NoKeyAvailable once a payload is found. The only error is a buffer
// too small to hold the length header (or a malformed buffer).
func Decode(pixels *PixelBuffer, key keystore.Key, opts ...DecodeOption) (Result, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := pixels.Validate(); err != nil {
		return Result{}, err
	}
	if have := pixels.Len(); have < HeaderBits {
		return Result{}, &CapacityError{Need: HeaderBits, Have: have}
	}

	declared := readHeader(pixels)
	if declared == 0 {
		return Result{Outcome: NoHiddenData}, nil
	}

	// Cap at what the buffer holds so a noisy header cannot overflow int.
	want := min(uint64(declared), uint64(pixels.Len()-HeaderBits)/8)
	ciphertext := extract(pixels, HeaderBits, int(want))

	res := Result{
		DeclaredLength: declared,
		ReadLength:     len(ciphertext),
		Truncated:      uint64(len(ciphertext)) < uint64(declared),
	}
	if res.Truncated && o.strict {
		res.Outcome = TruncatedContainer
		return res, nil
	}
	if key == nil {
		res.Outcome = NoKeyAvailable
		return res, nil
	}

	plaintext, err := crypt.Open(key, ciphertext)
	switch {
	case errors.Is(err, crypt.ErrAuthentication):
		res.Outcome = AuthenticationFailed
	case err != nil:
		res.Outcome = OtherDecryptionError
		res.Message = err.Error()
	case !utf8.Valid(plaintext):
		res.Outcome = OtherDecryptionError
		res.Message = "plaintext is not valid UTF-8"
	default:
		res.Outcome = Decrypted
		res.Plaintext = string(plaintext)
	}
	return res, nil
}

// RequiredPixels returns the carrier bits a plaintext of n bytes needs.
func RequiredPixels(n int) int {
	return containerBits(n + crypt.Overhead)
}

// Capacity returns the longest plaintext, in bytes, that fits in pixels.
func Capacity(pixels *PixelBuffer) int {
	n := (pixels.Len()-HeaderBits)/8 - crypt.Overhead
	return max(n, 0)
}
