package domain

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestParseEncodedSecret_Versioned(t *testing.T) {
	nonce := bytes.Repeat([]byte{0x01}, SecretNonceSize)
	ciphertext := bytes.Repeat([]byte{0x02}, SecretTagSize+5)
	encoded := NewVersionedSecret(nonce, ciphertext).String()

	if !strings.HasPrefix(encoded, "v1gcm:") {
		t.Fatalf("expected v1gcm prefix, got %s", encoded)
	}
	if got := strings.Count(encoded, SecretSeparator); got != 2 {
		t.Fatalf("expected 2 separators, got %d", got)
	}

	parsed, err := ParseEncodedSecret(encoded)
	if err != nil {
		t.Fatalf("ParseEncodedSecret failed: %v", err)
	}
	if parsed.Format != SecretFormatVersioned {
		t.Errorf("expected format v1gcm, got %s", parsed.Format)
	}
	if !bytes.Equal(parsed.Nonce, nonce) {
		t.Errorf("nonce mismatch: %x", parsed.Nonce)
	}
	if !bytes.Equal(parsed.Ciphertext, ciphertext) {
		t.Errorf("ciphertext mismatch: %x", parsed.Ciphertext)
	}
	if parsed.String() != encoded {
		t.Errorf("expected String to reproduce %s, got %s", encoded, parsed.String())
	}
}

func TestParseEncodedSecret_Empty(t *testing.T) {
	parsed, err := ParseEncodedSecret("")
	if err != nil {
		t.Fatalf("ParseEncodedSecret failed: %v", err)
	}
	if parsed.Format != SecretFormatEmpty {
		t.Errorf("expected format empty, got %s", parsed.Format)
	}
	if parsed.String() != "" {
		t.Errorf("expected empty string, got %q", parsed.String())
	}
}

func TestParseEncodedSecret_Legacy(t *testing.T) {
	long := strings.Repeat("correct horse battery staple ", 5)
	wrapped := base64.StdEncoding.EncodeToString([]byte(long))
	wrapped = wrapped[:76] + "\r\n" + wrapped[76:]

	tests := []struct {
		name    string
		encoded string
		want    string
	}{
		{"padded", "aHVudGVyMg==", "hunter2"},
		{"unpadded", "aHVudGVyMg", "hunter2"},
		{"line wrapped", wrapped, long},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ParseEncodedSecret(tt.encoded)
			if err != nil {
				t.Fatalf("ParseEncodedSecret failed: %v", err)
			}
			if parsed.Format != SecretFormatLegacy {
				t.Errorf("expected format legacy, got %s", parsed.Format)
			}
			if string(parsed.Blob) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, parsed.Blob)
			}
		})
	}
}

func TestParseEncodedSecret_Malformed(t *testing.T) {
	nonce := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x01}, SecretNonceSize))
	shortNonce := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x01}, 8))
	tag := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x02}, SecretTagSize))
	shortCT := base64.StdEncoding.EncodeToString([]byte("short"))

	tests := []struct {
		name    string
		encoded string
	}{
		{"unknown tag", "v2xyz:" + nonce + ":" + tag},
		{"missing component", "v1gcm:" + nonce},
		{"extra component", "v1gcm:" + nonce + ":" + tag + ":" + tag},
		{"nonce not base64", "v1gcm:!!!:" + tag},
		{"short nonce", "v1gcm:" + shortNonce + ":" + tag},
		{"ciphertext not base64", "v1gcm:" + nonce + ":***"},
		{"ciphertext shorter than tag", "v1gcm:" + nonce + ":" + shortCT},
		{"legacy garbage", "not base64 at all!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEncodedSecret(tt.encoded)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}
