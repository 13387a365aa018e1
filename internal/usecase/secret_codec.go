package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"vault-secret-store/internal/domain"
)

// KeyProvider は鍵ハンドルの取得インターフェース。
type KeyProvider interface {
	Alias() string
	GetOrCreateKey(ctx context.Context) (*domain.KeyHandle, error)
}

// SecretCipher は鍵ファシリティの暗号処理インターフェース。
type SecretCipher interface {
	NonceSize() int
	Seal(ctx context.Context, handle *domain.KeyHandle, nonce, plaintext, aad []byte) ([]byte, error)
	Open(ctx context.Context, handle *domain.KeyHandle, nonce, ciphertext, aad []byte) ([]byte, error)
}

// EncodeOutcome は Encode の結果種別を表す。
type EncodeOutcome string

const (
	// OutcomeEmpty は空の入力で鍵を使わずに終了したことを表す。
	OutcomeEmpty EncodeOutcome = "empty"
	// OutcomeSealed は認証付き暗号で保存形式を生成したことを表す。
	OutcomeSealed EncodeOutcome = "sealed"
	// OutcomeDegraded は暗号化に失敗し、認証なしの旧形式で符号化したことを表す。
	OutcomeDegraded EncodeOutcome = "degraded"
)

// EncodeResult は Encode の結果を表す。
type EncodeResult struct {
	Value   string
	Outcome EncodeOutcome
	Format  domain.SecretFormat
	// Cause は OutcomeDegraded の場合に元のエラーを保持する。
	Cause error
}

// Degraded は弱い符号化で保存されたかどうかを返す。
func (r EncodeResult) Degraded() bool {
	return r.Outcome == OutcomeDegraded
}

// SecretCodecOption は SecretCodec の設定関数。
type SecretCodecOption func(*SecretCodec)

// WithDegradedFallback は暗号化失敗時に旧形式へ退避するかを設定する。
func WithDegradedFallback(allow bool) SecretCodecOption {
	return func(c *SecretCodec) {
		c.allowDegraded = allow
	}
}

// WithNonceSource はノンス生成に使う乱数源を差し替える。
func WithNonceSource(r io.Reader) SecretCodecOption {
	return func(c *SecretCodec) {
		c.random = r
	}
}

// SecretCodec は平文の秘密情報と保存形式の相互変換を提供する。
type SecretCodec struct {
	keys          KeyProvider
	cipher        SecretCipher
	random        io.Reader
	allowDegraded bool
}

// NewSecretCodec は新しいSecretCodecを生成する。
func NewSecretCodec(keys KeyProvider, cipher SecretCipher, opts ...SecretCodecOption) *SecretCodec {
	c := &SecretCodec{
		keys:   keys,
		cipher: cipher,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// versionAAD は保存形式のタグを認証対象に含める。
var versionAAD = []byte(domain.SecretVersionTag)

// Encode は平文を保存形式に変換する。空文字列は空文字列のまま返す。
func (c *SecretCodec) Encode(ctx context.Context, plaintext string) (EncodeResult, error) {
	if plaintext == "" {
		return EncodeResult{Outcome: OutcomeEmpty, Format: domain.SecretFormatEmpty}, nil
	}

	encoded, err := c.seal(ctx, plaintext)
	if err == nil {
		return EncodeResult{
			Value:   encoded,
			Outcome: OutcomeSealed,
			Format:  domain.SecretFormatVersioned,
		}, nil
	}

	if !c.allowDegraded {
		return EncodeResult{}, err
	}

	slog.WarnContext(ctx, "secure encoding failed, falling back to unauthenticated encoding",
		"operation", "encode",
		"alias", c.keys.Alias(),
		"error", err,
	)
	return EncodeResult{
		Value:   domain.NewLegacySecret([]byte(plaintext)).String(),
		Outcome: OutcomeDegraded,
		Format:  domain.SecretFormatLegacy,
		Cause:   errors.Join(domain.ErrDegradedEncoding, err),
	}, nil
}

func (c *SecretCodec) seal(ctx context.Context, plaintext string) (string, error) {
	handle, err := c.keys.GetOrCreateKey(ctx)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.cipher.NonceSize())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", errors.Join(domain.ErrKeyFacility, fmt.Errorf("generating nonce: %w", err))
	}

	ciphertext, err := c.cipher.Seal(ctx, handle, nonce, []byte(plaintext), versionAAD)
	if err != nil {
		return "", fmt.Errorf("sealing secret: %w", err)
	}
	return domain.NewVersionedSecret(nonce, ciphertext).String(), nil
}

// Decode は保存形式を平文に戻す。旧形式も読み取る。
// 形式不正・改ざんは domain.ErrDecode、鍵の問題は domain.ErrKeyFacility を返す。
func (c *SecretCodec) Decode(ctx context.Context, encoded string) (string, error) {
	secret, err := domain.ParseEncodedSecret(encoded)
	if err != nil {
		return "", err
	}

	switch secret.Format {
	case domain.SecretFormatEmpty:
		return "", nil
	case domain.SecretFormatLegacy:
		if !utf8.Valid(secret.Blob) {
			return "", fmt.Errorf("%w: legacy value is not valid UTF-8", domain.ErrDecode)
		}
		return string(secret.Blob), nil
	case domain.SecretFormatVersioned:
		handle, err := c.keys.GetOrCreateKey(ctx)
		if err != nil {
			return "", err
		}
		plaintext, err := c.cipher.Open(ctx, handle, secret.Nonce, secret.Ciphertext, versionAAD)
		if err != nil {
			return "", fmt.Errorf("opening secret: %w", err)
		}
		return string(plaintext), nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", domain.ErrDecode, secret.Format)
	}
}
