package decoding

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"testing"
)

func encrypt(t *testing.T, plain, key, iv []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func TestDecryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")

	for _, size := range []int{0, 1, 15, 16, 17, 188 * 7} {
		plain := bytes.Repeat([]byte{0x47}, size)
		got, err := DecryptAES128CBC(encrypt(t, plain, key, iv), key, iv)
		if err != nil {
			t.Fatalf("size %d: decrypt failed: %v", size, err)
		}
		if !bytes.Equal(got, plain) {
			t.Fatalf("size %d: plaintext mismatch", size)
		}
	}
}

func TestDecryptWithWrongKeyNeverYieldsPlaintext(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := SequenceIV(1)
	plain := []byte("segment payload that is long enough")
	ciphertext := encrypt(t, plain, key, iv)

	got, err := DecryptAES128CBC(ciphertext, []byte("ffffffffffffffff"), iv)
	if err != nil {
		var decErr *DecryptionError
		if !errors.As(err, &decErr) {
			t.Fatalf("expected DecryptionError, got %T: %v", err, err)
		}
		return
	}
	if bytes.Equal(got, plain) {
		t.Fatal("wrong key must not reproduce the plaintext")
	}
}

func TestDecryptRejectsBadInputs(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	cases := map[string]func() error{
		"short key": func() error { _, err := DecryptAES128CBC(make([]byte, 16), key[:8], iv); return err },
		"short iv":  func() error { _, err := DecryptAES128CBC(make([]byte, 16), key, iv[:4]); return err },
		"ragged":    func() error { _, err := DecryptAES128CBC(make([]byte, 20), key, iv); return err },
		"empty":     func() error { _, err := DecryptAES128CBC(nil, key, iv); return err },
	}
	for name, fn := range cases {
		var decErr *DecryptionError
		if err := fn(); !errors.As(err, &decErr) {
			t.Errorf("%s: expected DecryptionError, got %v", name, err)
		}
	}
}

func TestSequenceIV(t *testing.T) {
	iv := SequenceIV(6)
	want := append(make([]byte, 15), 6)
	if !bytes.Equal(iv, want) {
		t.Fatalf("expected %x, got %x", want, iv)
	}

	iv = SequenceIV(0x0102030405060708)
	want = []byte{0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(iv, want) {
		t.Fatalf("expected %x, got %x", want, iv)
	}
}

func TestParseIV(t *testing.T) {
	iv, err := ParseIV("0x000102030405060708090A0B0C0D0E0F")
	if err != nil {
		t.Fatalf("ParseIV failed: %v", err)
	}
	if iv[0] != 0x00 || iv[15] != 0x0f {
		t.Fatalf("unexpected iv %x", iv)
	}

	short, err := ParseIV("0x1")
	if err != nil {
		t.Fatalf("ParseIV short failed: %v", err)
	}
	if !bytes.Equal(short, SequenceIV(1)) {
		t.Fatalf("expected left padded iv, got %x", short)
	}

	for _, bad := range []string{"", "0x", "0xZZ", "0x" + string(bytes.Repeat([]byte("a"), 33))} {
		if _, err := ParseIV(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
