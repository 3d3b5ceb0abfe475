package stego

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xob0t/stegcrypt/pkg/crypt"
	"github.com/xob0t/stegcrypt/pkg/keystore"
)

func testKey(t testing.TB) keystore.Key {
	t.Helper()
	key, err := keystore.Generate()
	require.NoError(t, err)
	return key
}

// noisyPixels returns a buffer of n pixels filled with pseudo-random values.
func noisyPixels(n, channels int, seed int64) *PixelBuffer {
	b := NewPixelBuffer(n, channels)
	r := rand.New(rand.NewSource(seed))
	r.Read(b.Pix)
	return b
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	key := testKey(t)
	tests := []struct {
		name     string
		text     string
		channels int
	}{
		{"rgba ascii", "Secret message hidden in the image.", 4},
		{"rgb ascii", "Secret message hidden in the image.", 3},
		{"empty text", "", 4},
		{"unicode", "ünïcødé • 隠された", 3},
		{"newlines", "line one\nline two\n", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pixels := noisyPixels(RequiredPixels(len(tt.text))+17, tt.channels, 1)

			require.NoError(t, Encode(tt.text, key, pixels))

			res, err := Decode(pixels, key)
			require.NoError(t, err)
			assert.Equal(t, Decrypted, res.Outcome)
			assert.Equal(t, tt.text, res.Plaintext)
			assert.False(t, res.Truncated)
		})
	}
}

func TestEncode_OnlyCarrierLSBChanges(t *testing.T) {
	key := testKey(t)
	pixels := noisyPixels(2000, 4, 2)
	before := bytes.Clone(pixels.Pix)

	require.NoError(t, Encode("touch only bit zero", key, pixels))

	for i := 0; i < pixels.Len(); i++ {
		for c := 0; c < pixels.Channels; c++ {
			j := i*pixels.Channels + c
			if c == pixels.Channels-1 {
				assert.Equal(t, before[j]&0xFE, pixels.Pix[j]&0xFE, "pixel %d carrier high bits", i)
				continue
			}
			assert.Equal(t, before[j], pixels.Pix[j], "pixel %d channel %d", i, c)
		}
	}
}

func TestEncode_HeaderLayout(t *testing.T) {
	key := testKey(t)
	text := "layout"
	pixels := NewPixelBuffer(RequiredPixels(len(text)), 3)

	require.NoError(t, Encode(text, key, pixels))

	var header uint32
	for i := 0; i < HeaderBits; i++ {
		header = header<<1 | uint32(pixels.Pix[i*3+2]&1)
	}
	assert.Equal(t, uint32(len(text)+crypt.Overhead), header,
		"header holds ciphertext byte length, MSB first")

	// First ciphertext byte is the token version.
	var first byte
	for i := 0; i < 8; i++ {
		first = first<<1 | pixels.Pix[(HeaderBits+i)*3+2]&1
	}
	assert.Equal(t, crypt.Version, first)
}

func TestEncode_CapacityBoundary(t *testing.T) {
	key := testKey(t)
	text := "hello"
	exact := HeaderBits + 8*(len(text)+crypt.Overhead)
	require.Equal(t, exact, RequiredPixels(len(text)))

	short := noisyPixels(exact-1, 4, 3)
	before := bytes.Clone(short.Pix)
	err := Encode(text, key, short)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, exact, capErr.Need)
	assert.Equal(t, exact-1, capErr.Have)
	assert.Equal(t, before, short.Pix, "a failed encode must not write")

	fits := noisyPixels(exact, 4, 3)
	require.NoError(t, Encode(text, key, fits))
	res, err := Decode(fits, key)
	require.NoError(t, err)
	assert.Equal(t, Decrypted, res.Outcome)
	assert.Equal(t, text, res.Plaintext)
}

func TestEncode_MalformedKey(t *testing.T) {
	pixels := NewPixelBuffer(4096, 4)
	err := Encode("text", keystore.Key{1, 2, 3}, pixels)
	assert.ErrorIs(t, err, ErrEncryption)
	assert.ErrorIs(t, err, crypt.ErrKeySize)
}

func TestEncode_InvalidBuffer(t *testing.T) {
	key := testKey(t)
	tests := []struct {
		name   string
		pixels *PixelBuffer
	}{
		{"nil", nil},
		{"zero channels", &PixelBuffer{Pix: make([]uint8, 10)}},
		{"five channels", &PixelBuffer{Pix: make([]uint8, 10), Channels: 5}},
		{"ragged", &PixelBuffer{Pix: make([]uint8, 10), Channels: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Encode("x", key, tt.pixels))
			_, err := Decode(tt.pixels, key)
			assert.Error(t, err)
		})
	}
}

func TestDecode_TamperDetection(t *testing.T) {
	key := testKey(t)
	text := "tamper evident"
	pixels := noisyPixels(RequiredPixels(len(text)), 3, 4)
	require.NoError(t, Encode(text, key, pixels))

	payloadBits := 8 * (len(text) + crypt.Overhead)
	for i := 0; i < payloadBits; i++ {
		tampered := &PixelBuffer{Pix: bytes.Clone(pixels.Pix), Channels: 3}
		tampered.Pix[tampered.carrier(HeaderBits+i)] ^= 1

		res, err := Decode(tampered, key)
		require.NoError(t, err)
		require.Equal(t, AuthenticationFailed, res.Outcome, "flipped payload bit %d", i)
		require.Empty(t, res.Plaintext)
	}
}

func TestDecode_NoHiddenData(t *testing.T) {
	key := testKey(t)
	pixels := NewPixelBuffer(1024, 4)

	res, err := Decode(pixels, key)
	require.NoError(t, err)
	assert.Equal(t, NoHiddenData, res.Outcome)
	assert.Empty(t, res.Plaintext)
	assert.True(t, res.Outcome.OK())

	res, err = Decode(pixels, nil)
	require.NoError(t, err)
	assert.Equal(t, NoHiddenData, res.Outcome, "no payload wins over no key")
}

func TestDecode_ShorterThanHeader(t *testing.T) {
	_, err := Decode(NewPixelBuffer(HeaderBits-1, 4), nil)
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, HeaderBits, capErr.Need)
}

func TestDecode_NoKeyAvailable(t *testing.T) {
	key := testKey(t)
	pixels := noisyPixels(2048, 4, 5)
	require.NoError(t, Encode("needs a key", key, pixels))

	res, err := Decode(pixels, nil)
	require.NoError(t, err)
	assert.Equal(t, NoKeyAvailable, res.Outcome)
	assert.NotEqual(t, AuthenticationFailed, res.Outcome)
	assert.Empty(t, res.Plaintext)
}

func TestDecode_WrongKey(t *testing.T) {
	pixels := noisyPixels(2048, 4, 6)
	require.NoError(t, Encode("for someone else", testKey(t), pixels))

	res, err := Decode(pixels, testKey(t))
	require.NoError(t, err)
	assert.Equal(t, AuthenticationFailed, res.Outcome)
	assert.False(t, res.Outcome.OK())
}

func TestDecode_MalformedKey(t *testing.T) {
	pixels := noisyPixels(2048, 4, 7)
	require.NoError(t, Encode("x", testKey(t), pixels))

	res, err := Decode(pixels, keystore.Key{0xAA})
	require.NoError(t, err)
	assert.Equal(t, OtherDecryptionError, res.Outcome)
	assert.Contains(t, res.Message, "invalid key size")
}

func TestDecode_InvalidUTF8Plaintext(t *testing.T) {
	key := testKey(t)
	pixels := noisyPixels(2048, 4, 8)
	require.NoError(t, Encode("\xff\xfe", key, pixels))

	res, err := Decode(pixels, key)
	require.NoError(t, err)
	assert.Equal(t, OtherDecryptionError, res.Outcome)
	assert.Empty(t, res.Plaintext)
}

func TestDecode_Truncated(t *testing.T) {
	key := testKey(t)
	text := "this container gets cut short"
	full := noisyPixels(RequiredPixels(len(text)), 4, 9)
	require.NoError(t, Encode(text, key, full))

	// Drop the last 12 pixels: one whole byte plus a partial one.
	cut := &PixelBuffer{Pix: full.Pix[:len(full.Pix)-12*4], Channels: 4}
	declared := uint32(len(text) + crypt.Overhead)

	t.Run("lenient", func(t *testing.T) {
		res, err := Decode(cut, key)
		require.NoError(t, err)
		assert.Equal(t, AuthenticationFailed, res.Outcome)
		assert.True(t, res.Truncated)
		assert.Equal(t, declared, res.DeclaredLength)
		assert.Equal(t, int(declared)-2, res.ReadLength)
		assert.Contains(t, res.String(), "truncated")
	})

	t.Run("strict", func(t *testing.T) {
		res, err := Decode(cut, key, WithStrictLength())
		require.NoError(t, err)
		assert.Equal(t, TruncatedContainer, res.Outcome)
		assert.Equal(t, int(declared)-2, res.ReadLength)
	})

	t.Run("noise header", func(t *testing.T) {
		noise := NewPixelBuffer(64, 4)
		for i := 0; i < HeaderBits; i++ {
			noise.setBit(i, 1)
		}
		res, err := Decode(noise, key)
		require.NoError(t, err)
		assert.Equal(t, AuthenticationFailed, res.Outcome)
		assert.Equal(t, uint32(MaxPayload), res.DeclaredLength)
		assert.Equal(t, 4, res.ReadLength)
	})
}

func TestCapacity(t *testing.T) {
	for _, n := range []int{0, 1, 10, 300} {
		pixels := NewPixelBuffer(RequiredPixels(n), 3)
		assert.Equal(t, n, Capacity(pixels))
	}
	assert.Equal(t, 0, Capacity(NewPixelBuffer(10, 4)))
}

func TestResult_String(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Outcome: Decrypted, Plaintext: "hi"}, "hi"},
		{Result{Outcome: NoHiddenData}, "image does not contain hidden text"},
		{Result{Outcome: NoKeyAvailable}, "hidden text found, but no encryption key is available"},
		{Result{Outcome: OtherDecryptionError, Message: "boom"}, "decryption error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.res.Outcome.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.String())
		})
	}
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}

func TestCodec_HideReveal(t *testing.T) {
	store := keystore.NewStore(filepath.Join(t.TempDir(), "secret.key"))
	keys, err := keystore.NewManager(store)
	require.NoError(t, err)
	codec := NewCodec(keys)

	pixels := noisyPixels(4096, 4, 10)
	res, err := codec.Reveal(pixels)
	require.NoError(t, err)
	require.NotEqual(t, Decrypted, res.Outcome)

	require.NoError(t, codec.Hide("first", pixels))
	first, _ := keys.Key()
	require.NoError(t, codec.Hide("second", pixels))
	second, _ := keys.Key()
	assert.Equal(t, first, second, "one key per process lifetime")

	res, err = codec.Reveal(pixels)
	require.NoError(t, err)
	assert.Equal(t, Decrypted, res.Outcome)
	assert.Equal(t, "second", res.Plaintext)

	// A fresh manager on the same store (next process start) still decodes.
	reloaded, err := keystore.NewManager(store)
	require.NoError(t, err)
	res, err = NewCodec(reloaded).Reveal(pixels)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Plaintext)
}

func TestCodec_HideTooSmallCreatesNoKey(t *testing.T) {
	store := keystore.NewStore(filepath.Join(t.TempDir(), "secret.key"))
	keys, err := keystore.NewManager(store)
	require.NoError(t, err)

	err = NewCodec(keys).Hide("does not fit", NewPixelBuffer(64, 4))
	assert.ErrorIs(t, err, ErrCapacity)

	_, ok, err := store.LoadOrNone()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCodec_StrictOption(t *testing.T) {
	keys, err := keystore.NewManager(keystore.NewStore(filepath.Join(t.TempDir(), "k")))
	require.NoError(t, err)
	codec := NewCodec(keys, WithStrictLength())

	text := "strict"
	pixels := NewPixelBuffer(RequiredPixels(len(text)), 4)
	require.NoError(t, codec.Hide(text, pixels))

	cut := &PixelBuffer{Pix: pixels.Pix[:len(pixels.Pix)-8*4], Channels: 4}
	res, err := codec.Reveal(cut)
	require.NoError(t, err)
	assert.Equal(t, TruncatedContainer, res.Outcome)
}

func TestEncodeDecode_Property_RoundTrip(t *testing.T) {
	key := testKey(t)
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		channels := rapid.IntRange(3, 4).Draw(t, "channels")
		slack := rapid.IntRange(0, 64).Draw(t, "slack")
		seed := rapid.Int64().Draw(t, "seed")

		pixels := noisyPixels(RequiredPixels(len(text))+slack, channels, seed)
		if err := Encode(text, key, pixels); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		res, err := Decode(pixels, key)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if res.Outcome != Decrypted || res.Plaintext != text {
			t.Fatalf("got %v %q, want %q", res.Outcome, res.Plaintext, text)
		}
	})
}

func BenchmarkEncode_1KB(b *testing.B) {
	key := testKey(b)
	text := string(bytes.Repeat([]byte("a"), 1024))
	pixels := NewPixelBuffer(RequiredPixels(len(text)), 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Encode(text, key, pixels)
	}
}

func BenchmarkDecode_1KB(b *testing.B) {
	key := testKey(b)
	text := string(bytes.Repeat([]byte("a"), 1024))
	pixels := NewPixelBuffer(RequiredPixels(len(text)), 4)
	_ = Encode(text, key, pixels)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Decode(pixels, key)
	}
}
