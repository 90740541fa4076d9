package security

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c, err := NewCodec(key)
	if err != nil {
		t.Fatalf("NewCodec() error: %v", err)
	}
	return c
}

func TestNewCodec_RejectsWrongKeyLength(t *testing.T) {
	if _, err := NewCodec(make([]byte, 16)); err == nil {
		t.Error("expected error for short key")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	cases := [][]byte{
		{},
		[]byte("Hunter2!"),
		bytes.Repeat([]byte("x"), 4096),
	}
	for _, plaintext := range cases {
		token, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt() error: %v", err)
		}
		got, err := c.Decrypt(token)
		if err != nil {
			t.Fatalf("Decrypt() error: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round trip = %q, want %q", got, plaintext)
		}
	}
}

func TestEncrypt_CiphertextLongerThanPlaintext(t *testing.T) {
	c := newTestCodec(t)
	plaintext := []byte("Hunter2!")

	token, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	raw, err := c.Decrypt(token)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	_ = raw

	decoded := decodeBase64Len(t, token)
	if decoded < len(plaintext)+28 {
		t.Errorf("ciphertext len = %d, want >= %d (plaintext + nonce + tag)", decoded, len(plaintext)+28)
	}
}

func TestDecrypt_TamperedByteFailsClosed(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.Encrypt([]byte("Hunter2!"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	tampered := tamperOneByte(t, token)
	if _, err := c.Decrypt(tampered); err == nil {
		t.Error("Decrypt() should fail on tampered ciphertext")
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	c1 := newTestCodec(t)
	c2 := newTestCodec(t)

	token, err := c1.Encrypt([]byte("Hunter2!"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := c2.Decrypt(token); err == nil {
		t.Error("Decrypt() with wrong key should fail")
	}
}
