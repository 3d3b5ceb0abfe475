package stego

import "github.com/xob0t/stegcrypt/pkg/keystore"

// Codec binds Encode and Decode to a key manager: hiding creates the key on
// first use, revealing uses whatever key is currently loaded.
type Codec struct {
	keys *keystore.Manager
	opts []DecodeOption
}

// NewCodec returns a codec backed by keys. opts apply to every Reveal.
func NewCodec(keys *keystore.Manager, opts ...DecodeOption) *Codec {
	return &Codec{keys: keys, opts: opts}
}

// Hide ensures a key exists and embeds plaintext into pixels.
func (c *Codec) Hide(plaintext string, pixels *PixelBuffer) error {
	if err := pixels.Validate(); err != nil {
		return err
	}
	if have, need := pixels.Len(), RequiredPixels(len(plaintext)); have < need {
		return &CapacityError{Need: need, Have: have}
	}
	key, err := c.keys.EnsureKey()
	if err != nil {
		return err
	}
	return Encode(plaintext, key, pixels)
}

// Reveal decodes pixels with the current key, if any.
func (c *Codec) Reveal(pixels *PixelBuffer) (Result, error) {
	key, _ := c.keys.Key()
	return Decode(pixels, key, c.opts...)
}
