// Package facility はデバイスローカルの鍵ファシリティを提供する。
//
// 鍵はラッパー（Cloud KMS またはローカルマスター鍵）で暗号化して永続化し、
// プロセス内では memguard の Enclave にのみ保持する。暗号処理はすべて
// ファシリティ内部で行い、鍵の生バイトを呼び出し側へ返すことはない。
package facility

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vault-secret-store/internal/domain"
)

const keySize = 32 // AES-256 = 256 bits = 32 bytes

// KeyRepository はラップ済み鍵の永続化インターフェース。
type KeyRepository interface {
	FindByAlias(ctx context.Context, alias string) (*domain.StoredKey, error)
	Create(ctx context.Context, key *domain.StoredKey) error
	FindAll(ctx context.Context) ([]*domain.StoredKey, error)
}

// KeyWrapper は鍵素材の暗号化/復号のインターフェース。
type KeyWrapper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// SecureKeyFacility は鍵ファシリティの実装。
type SecureKeyFacility struct {
	repo    KeyRepository
	wrapper KeyWrapper
	tracer  trace.Tracer

	mu       sync.RWMutex
	enclaves map[string]*memguard.Enclave
}

// NewSecureKeyFacility は新しいSecureKeyFacilityを生成する。
func NewSecureKeyFacility(repo KeyRepository, wrapper KeyWrapper) *SecureKeyFacility {
	return &SecureKeyFacility{
		repo:     repo,
		wrapper:  wrapper,
		tracer:   otel.Tracer("vault-secret-store/facility"),
		enclaves: make(map[string]*memguard.Enclave),
	}
}

// NonceSize は Seal に渡すノンスの長さを返す。
func (f *SecureKeyFacility) NonceSize() int {
	return domain.SecretNonceSize
}

// LookupKey はエイリアスに対応する鍵のハンドルを返す。存在しない場合は nil を返す。
func (f *SecureKeyFacility) LookupKey(ctx context.Context, alias string) (*domain.KeyHandle, error) {
	ctx, span := f.tracer.Start(ctx, "facility.LookupKey", trace.WithAttributes(attribute.String("key.alias", alias)))
	defer span.End()

	stored, err := f.repo.FindByAlias(ctx, alias)
	if err != nil {
		recordError(span, err)
		return nil, errors.Join(domain.ErrKeyFacility, err)
	}
	if stored == nil {
		return nil, nil
	}
	if _, err := f.loadEnclave(ctx, stored); err != nil {
		recordError(span, err)
		return nil, err
	}
	return stored.Handle(), nil
}

// GenerateKey はエイリアスに鍵が無ければ生成して保存する。
// 既に存在する場合（競合を含む）は既存の鍵のハンドルを返す。
func (f *SecureKeyFacility) GenerateKey(ctx context.Context, alias string) (*domain.KeyHandle, error) {
	ctx, span := f.tracer.Start(ctx, "facility.GenerateKey", trace.WithAttributes(attribute.String("key.alias", alias)))
	defer span.End()

	buf := memguard.NewBufferRandom(keySize)
	defer buf.Destroy()

	wrapped, err := f.wrapper.Encrypt(ctx, buf.Bytes())
	if err != nil {
		recordError(span, err)
		return nil, errors.Join(domain.ErrKeyFacility, fmt.Errorf("wrapping key: %w", err))
	}

	stored := &domain.StoredKey{
		Alias:      alias,
		WrappedKey: wrapped,
		Algorithm:  domain.KeyAlgorithmAES256GCM,
	}
	if err := f.repo.Create(ctx, stored); err != nil {
		// 別プロセス・別ゴルーチンが先に作成した場合は既存鍵に収束する
		existing, findErr := f.repo.FindByAlias(ctx, alias)
		if findErr == nil && existing != nil {
			slog.InfoContext(ctx, "key already created concurrently",
				"operation", "generate_key",
				"alias", alias,
			)
			if _, err := f.loadEnclave(ctx, existing); err != nil {
				recordError(span, err)
				return nil, err
			}
			return existing.Handle(), nil
		}
		recordError(span, err)
		return nil, errors.Join(domain.ErrKeyFacility, fmt.Errorf("storing key: %w", err))
	}

	f.mu.Lock()
	f.enclaves[alias] = buf.Seal()
	f.mu.Unlock()

	return stored.Handle(), nil
}

// ListKeys は保存済みの全鍵のハンドルを返す。
func (f *SecureKeyFacility) ListKeys(ctx context.Context) ([]*domain.KeyHandle, error) {
	keys, err := f.repo.FindAll(ctx)
	if err != nil {
		return nil, errors.Join(domain.ErrKeyFacility, err)
	}
	handles := make([]*domain.KeyHandle, len(keys))
	for i, k := range keys {
		handles[i] = k.Handle()
	}
	return handles, nil
}

// Seal は鍵で平文を暗号化し、認証タグ付きの暗号文を返す。
func (f *SecureKeyFacility) Seal(ctx context.Context, handle *domain.KeyHandle, nonce, plaintext, aad []byte) ([]byte, error) {
	ctx, span := f.tracer.Start(ctx, "facility.Seal", trace.WithAttributes(attribute.String("key.alias", handle.Alias)))
	defer span.End()

	if len(nonce) != domain.SecretNonceSize {
		err := fmt.Errorf("%w: nonce must be %d bytes", domain.ErrKeyFacility, domain.SecretNonceSize)
		recordError(span, err)
		return nil, err
	}

	var sealed []byte
	err := f.withAEAD(ctx, handle, func(aead cipher.AEAD) error {
		sealed = aead.Seal(nil, nonce, plaintext, aad)
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return sealed, nil
}

// Open は暗号文の認証タグを検証して復号する。
// 検証に失敗した場合は domain.ErrDecode を返す。
func (f *SecureKeyFacility) Open(ctx context.Context, handle *domain.KeyHandle, nonce, ciphertext, aad []byte) ([]byte, error) {
	ctx, span := f.tracer.Start(ctx, "facility.Open", trace.WithAttributes(attribute.String("key.alias", handle.Alias)))
	defer span.End()

	if len(nonce) != domain.SecretNonceSize {
		err := fmt.Errorf("%w: nonce must be %d bytes", domain.ErrDecode, domain.SecretNonceSize)
		recordError(span, err)
		return nil, err
	}

	var opened []byte
	err := f.withAEAD(ctx, handle, func(aead cipher.AEAD) error {
		plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
		if err != nil {
			return errors.Join(domain.ErrDecode, err)
		}
		opened = plaintext
		return nil
	})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return opened, nil
}

// withAEAD は Enclave を一時的に開いて AEAD を構築し fn を実行する。
// 開いたバッファは fn の終了後に破棄する。
func (f *SecureKeyFacility) withAEAD(ctx context.Context, handle *domain.KeyHandle, fn func(cipher.AEAD) error) error {
	if handle == nil || handle.Alias == "" {
		return fmt.Errorf("%w: nil key handle", domain.ErrKeyFacility)
	}

	enclave, err := f.enclaveFor(ctx, handle.Alias)
	if err != nil {
		return err
	}

	buf, err := enclave.Open()
	if err != nil {
		return errors.Join(domain.ErrKeyFacility, fmt.Errorf("opening enclave: %w", err))
	}
	defer buf.Destroy()

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		return errors.Join(domain.ErrKeyFacility, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return errors.Join(domain.ErrKeyFacility, err)
	}
	return fn(aead)
}

func (f *SecureKeyFacility) enclaveFor(ctx context.Context, alias string) (*memguard.Enclave, error) {
	f.mu.RLock()
	enclave, ok := f.enclaves[alias]
	f.mu.RUnlock()
	if ok {
		return enclave, nil
	}

	stored, err := f.repo.FindByAlias(ctx, alias)
	if err != nil {
		return nil, errors.Join(domain.ErrKeyFacility, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: no key for alias %q", domain.ErrKeyFacility, alias)
	}
	return f.loadEnclave(ctx, stored)
}

// loadEnclave はラップ済み鍵を復号して Enclave に格納する。
func (f *SecureKeyFacility) loadEnclave(ctx context.Context, stored *domain.StoredKey) (*memguard.Enclave, error) {
	f.mu.RLock()
	enclave, ok := f.enclaves[stored.Alias]
	f.mu.RUnlock()
	if ok {
		return enclave, nil
	}

	plain, err := f.wrapper.Decrypt(ctx, stored.WrappedKey)
	if err != nil {
		slog.ErrorContext(ctx, "failed to unwrap key",
			"operation", "load_enclave",
			"alias", stored.Alias,
			"error", err,
		)
		return nil, errors.Join(domain.ErrKeyFacility, fmt.Errorf("unwrapping key: %w", err))
	}
	if len(plain) != keySize {
		memguard.WipeBytes(plain)
		return nil, fmt.Errorf("%w: stored key for alias %q is corrupted", domain.ErrKeyFacility, stored.Alias)
	}

	// NewEnclave は元のスライスを消去する
	enclave = memguard.NewEnclave(plain)

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.enclaves[stored.Alias]; ok {
		return existing, nil
	}
	f.enclaves[stored.Alias] = enclave
	return enclave, nil
}

// Forget はプロセス内に保持した Enclave を破棄する。
// 次回の利用時に永続化された鍵から再ロードされる。
func (f *SecureKeyFacility) Forget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enclaves = make(map[string]*memguard.Enclave)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
