// errors.go — Encode and decode error taxonomy.
package stego

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity is matched by every CapacityError.
	ErrCapacity = errors.New("stego: image too small")
	// ErrEncryption reports a key that the cipher rejected at encryption time.
	ErrEncryption = errors.New("stego: encryption failed")
	// ErrPayloadTooLarge reports a ciphertext the 32-bit header cannot describe.
	ErrPayloadTooLarge = errors.New("stego: payload exceeds 32-bit length field")
)

// CapacityError reports an image with fewer carrier bits than a container
// (or a bare header) needs.
type CapacityError struct {
	Need int // carrier bits required
	Have int // carrier bits available
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("stego: image too small: need %d pixels, have %d", e.Need, e.Have)
}

// Is makes errors.Is(err, ErrCapacity) hold.
func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }
