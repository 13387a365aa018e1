package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// SecretVersionTag は現行の認証付き保存形式を示すタグ。
	SecretVersionTag = "v1gcm"

	// SecretSeparator は保存形式の区切り文字。
	// レコードコーデックの区切り文字（タブ）とは異なる必要がある。
	SecretSeparator = ":"

	// SecretNonceSize は AES-GCM のノンス長。
	SecretNonceSize = 12

	// SecretTagSize は AES-GCM の認証タグ長。
	SecretTagSize = 16
)

// SecretFormat は保存された秘密情報の形式を表す。
type SecretFormat string

const (
	// SecretFormatEmpty は秘密情報が設定されていないことを表す。
	SecretFormatEmpty SecretFormat = "empty"
	// SecretFormatVersioned はバージョン付き認証暗号形式を表す。
	SecretFormatVersioned SecretFormat = "v1gcm"
	// SecretFormatLegacy は旧形式（認証なしの base64）を表す。
	SecretFormatLegacy SecretFormat = "legacy"
)

// EncodedSecret は秘密情報1件の永続化表現を表す。
// Format によって有効なフィールドが異なる（Versioned: Nonce/Ciphertext、Legacy: Blob）。
type EncodedSecret struct {
	Format     SecretFormat
	Nonce      []byte
	Ciphertext []byte // 認証タグを末尾に含む
	Blob       []byte
}

// NewVersionedSecret は現行形式の EncodedSecret を生成する。
func NewVersionedSecret(nonce, ciphertext []byte) EncodedSecret {
	return EncodedSecret{
		Format:     SecretFormatVersioned,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
}

// NewLegacySecret は旧形式の EncodedSecret を生成する。
func NewLegacySecret(blob []byte) EncodedSecret {
	return EncodedSecret{
		Format: SecretFormatLegacy,
		Blob:   blob,
	}
}

// String は保存用の文字列表現を返す。
func (s EncodedSecret) String() string {
	switch s.Format {
	case SecretFormatVersioned:
		return strings.Join([]string{
			SecretVersionTag,
			base64.StdEncoding.EncodeToString(s.Nonce),
			base64.StdEncoding.EncodeToString(s.Ciphertext),
		}, SecretSeparator)
	case SecretFormatLegacy:
		return base64.StdEncoding.EncodeToString(s.Blob)
	default:
		return ""
	}
}

// ParseEncodedSecret は保存文字列を解析して形式を判定する。
// 形式の判定はこの関数のみで行う。
func ParseEncodedSecret(encoded string) (EncodedSecret, error) {
	if encoded == "" {
		return EncodedSecret{Format: SecretFormatEmpty}, nil
	}

	if strings.HasPrefix(encoded, SecretVersionTag+SecretSeparator) {
		return parseVersioned(encoded)
	}

	// base64 は ':' を含まないため、未知のバージョンタグとみなす
	if strings.Contains(encoded, SecretSeparator) {
		return EncodedSecret{}, fmt.Errorf("%w: unknown format tag", ErrDecode)
	}

	blob, err := decodeLegacyBase64(encoded)
	if err != nil {
		return EncodedSecret{}, fmt.Errorf("%w: legacy value is not valid base64: %v", ErrDecode, err)
	}
	return NewLegacySecret(blob), nil
}

func parseVersioned(encoded string) (EncodedSecret, error) {
	parts := strings.Split(encoded, SecretSeparator)
	if len(parts) != 3 {
		return EncodedSecret{}, fmt.Errorf("%w: expected 3 components, got %d", ErrDecode, len(parts))
	}

	nonce, err := base64.StdEncoding.Strict().DecodeString(parts[1])
	if err != nil {
		return EncodedSecret{}, fmt.Errorf("%w: nonce is not valid base64: %v", ErrDecode, err)
	}
	if len(nonce) != SecretNonceSize {
		return EncodedSecret{}, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecode, SecretNonceSize, len(nonce))
	}

	ciphertext, err := base64.StdEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return EncodedSecret{}, fmt.Errorf("%w: ciphertext is not valid base64: %v", ErrDecode, err)
	}
	if len(ciphertext) < SecretTagSize {
		return EncodedSecret{}, fmt.Errorf("%w: ciphertext shorter than authentication tag", ErrDecode)
	}

	return NewVersionedSecret(nonce, ciphertext), nil
}

// decodeLegacyBase64 は旧クライアントが書いた base64 を復号する。
// 旧クライアントは76文字ごとに改行を挿入していた。
func decodeLegacyBase64(encoded string) ([]byte, error) {
	cleaned := strings.NewReplacer("\r", "", "\n", "").Replace(encoded)
	blob, err := base64.StdEncoding.DecodeString(cleaned)
	if err == nil {
		return blob, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(cleaned); rawErr == nil {
		return raw, nil
	}
	return nil, err
}
