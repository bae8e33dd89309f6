package decoding

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeySize is the key and IV length for HLS METHOD=AES-128.
const KeySize = aes.BlockSize

// DecryptionError is returned when a segment cannot be decrypted with the
// supplied key/IV. Callers fall back to keeping the raw bytes.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aes-128 decrypt: %s: %v", e.Reason, e.Err)
	}
	return "aes-128 decrypt: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// DecryptAES128CBC decrypts a full segment and strips its PKCS#7 padding.
func DecryptAES128CBC(data, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, &DecryptionError{Reason: fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key))}
	}
	if len(iv) != KeySize {
		return nil, &DecryptionError{Reason: fmt.Sprintf("iv must be %d bytes, got %d", KeySize, len(iv))}
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, &DecryptionError{Reason: fmt.Sprintf("ciphertext length %d is not a multiple of the block size", len(data))}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptionError{Reason: "init cipher", Err: err}
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	return unpad(out)
}

// unpad removes PKCS#7 padding, validating every pad byte.
func unpad(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, &DecryptionError{Reason: fmt.Sprintf("invalid padding length %d", n)}
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, &DecryptionError{Reason: "corrupt padding"}
		}
	}
	return data[:len(data)-n], nil
}

// SequenceIV derives the implicit IV for a segment: the media sequence number
// as a 16-byte big-endian integer.
func SequenceIV(sequence int64) []byte {
	iv := make([]byte, KeySize)
	binary.BigEndian.PutUint64(iv[8:], uint64(sequence))
	return iv
}

// ParseIV decodes an EXT-X-KEY IV attribute ("0x" + 32 hex digits).
// Shorter values are left-padded with zeros.
func ParseIV(value string) ([]byte, error) {
	raw := strings.TrimSpace(value)
	if len(raw) > 1 && (raw[:2] == "0x" || raw[:2] == "0X") {
		raw = raw[2:]
	}
	if raw == "" || len(raw) > KeySize*2 {
		return nil, fmt.Errorf("iv %q must hold 1-%d hex digits", value, KeySize*2)
	}
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}

	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("iv %q: %w", value, err)
	}

	iv := make([]byte, KeySize)
	copy(iv[KeySize-len(decoded):], decoded)
	return iv, nil
}
