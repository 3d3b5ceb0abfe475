// result.go — Decode outcomes.
package stego

import "fmt"

// Outcome classifies a decode. Every value is a normal result, not an error.
type Outcome int

const (
	// Decrypted means the payload authenticated and Plaintext is valid.
	Decrypted Outcome = iota
	// NoHiddenData means the length header was zero.
	NoHiddenData
	// NoKeyAvailable means a payload was found but no key has been loaded.
	NoKeyAvailable
	// AuthenticationFailed means the ciphertext failed its integrity check:
	// wrong key, corrupted carrier bits, or noise read as a length.
	AuthenticationFailed
	// OtherDecryptionError is any other cipher failure; see Result.Message.
	OtherDecryptionError
	// TruncatedContainer is only returned under WithStrictLength when the
	// image ends before the declared payload does.
	TruncatedContainer
)

var outcomeNames = [...]string{
	Decrypted:            "decrypted",
	NoHiddenData:         "no_hidden_data",
	NoKeyAvailable:       "no_key_available",
	AuthenticationFailed: "authentication_failed",
	OtherDecryptionError: "decryption_error",
	TruncatedContainer:   "truncated_container",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// OK reports whether o is a non-failure outcome. A missing payload or key is
// an expected situation, so both count as OK.
func (o Outcome) OK() bool {
	switch o {
	case Decrypted, NoHiddenData, NoKeyAvailable:
		return true
	}
	return false
}

// Result is the outcome of one decode.
type Result struct {
	Outcome   Outcome
	Plaintext string // set only for Decrypted
	Message   string // diagnostic for OtherDecryptionError

	DeclaredLength uint32 // ciphertext bytes announced by the header
	ReadLength     int    // ciphertext bytes actually extracted
	Truncated      bool   // ReadLength < DeclaredLength
}

// String renders the result for display.
func (r Result) String() string {
	switch r.Outcome {
	case Decrypted:
		return r.Plaintext
	case NoHiddenData:
		return "image does not contain hidden text"
	case NoKeyAvailable:
		return "hidden text found, but no encryption key is available"
	case AuthenticationFailed:
		if r.Truncated {
			return fmt.Sprintf("hidden text could not be authenticated (container truncated: read %d of %d bytes)", r.ReadLength, r.DeclaredLength)
		}
		return "hidden text could not be authenticated: wrong key or corrupted image"
	case OtherDecryptionError:
		return "decryption error: " + r.Message
	case TruncatedContainer:
		return fmt.Sprintf("container truncated: image holds %d of %d declared bytes", r.ReadLength, r.DeclaredLength)
	}
	return r.Outcome.String()
}
