package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vault-secret-store/internal/domain"
	"vault-secret-store/internal/facility"
)

// memoryKeyRepository はテスト用のインメモリ鍵リポジトリ。
type memoryKeyRepository struct {
	mu   sync.Mutex
	keys map[string]*domain.StoredKey
}

func newMemoryKeyRepository() *memoryKeyRepository {
	return &memoryKeyRepository{keys: make(map[string]*domain.StoredKey)}
}

func (r *memoryKeyRepository) FindByAlias(ctx context.Context, alias string) (*domain.StoredKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[alias]
	if !ok {
		return nil, nil
	}
	cp := *k
	cp.WrappedKey = bytes.Clone(k.WrappedKey)
	return &cp, nil
}

func (r *memoryKeyRepository) Create(ctx context.Context, key *domain.StoredKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key.Alias]; ok {
		return domain.ErrKeyAlreadyExists
	}
	key.CreatedAt = time.Now()
	cp := *key
	cp.WrappedKey = bytes.Clone(key.WrappedKey)
	r.keys[key.Alias] = &cp
	return nil
}

func (r *memoryKeyRepository) FindAll(ctx context.Context) ([]*domain.StoredKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StoredKey
	for _, k := range r.keys {
		out = append(out, k)
	}
	return out, nil
}

// copyWrapper は鍵素材をそのままコピーするテスト用ラッパー。
type copyWrapper struct{}

func (copyWrapper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return bytes.Clone(plaintext), nil
}

func (copyWrapper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return bytes.Clone(ciphertext), nil
}

// failingCipher は常に失敗する SecretCipher。
type failingCipher struct{}

func (failingCipher) NonceSize() int { return domain.SecretNonceSize }

func (failingCipher) Seal(ctx context.Context, h *domain.KeyHandle, nonce, plaintext, aad []byte) ([]byte, error) {
	return nil, errors.Join(domain.ErrKeyFacility, errors.New("keystore locked"))
}

func (failingCipher) Open(ctx context.Context, h *domain.KeyHandle, nonce, ciphertext, aad []byte) ([]byte, error) {
	return nil, errors.Join(domain.ErrKeyFacility, errors.New("keystore locked"))
}

func newTestCodec(t *testing.T, repo *memoryKeyRepository, opts ...SecretCodecOption) *SecretCodec {
	t.Helper()
	f := facility.NewSecureKeyFacility(repo, copyWrapper{})
	custodian, err := NewKeyCustodian("vault", f)
	require.NoError(t, err)
	return NewSecretCodec(custodian, f, opts...)
}

func TestSecretCodec_RoundTrip(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t, newMemoryKeyRepository())
	ctx := context.Background()

	tests := []struct {
		name      string
		plaintext string
	}{
		{"simple", "hunter2"},
		{"symbols", "Tr0ub4dor&3"},
		{"contains separators", "a:b:c\td|e"},
		{"unicode", "パスワード🔑"},
		{"long", strings.Repeat("correct horse battery staple ", 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := codec.Encode(ctx, tt.plaintext)
			require.NoError(t, err)
			require.Equal(t, OutcomeSealed, result.Outcome)
			require.Equal(t, domain.SecretFormatVersioned, result.Format)
			require.NotContains(t, result.Value, tt.plaintext)

			decoded, err := codec.Decode(ctx, result.Value)
			require.NoError(t, err)
			require.Equal(t, tt.plaintext, decoded)
		})
	}
}

func TestSecretCodec_WireFormat(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t, newMemoryKeyRepository())
	ctx := context.Background()

	result, err := codec.Encode(ctx, "Tr0ub4dor&3")
	require.NoError(t, err)

	parts := strings.Split(result.Value, ":")
	require.Len(t, parts, 3)
	require.Equal(t, "v1gcm", parts[0])

	nonce, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	require.Len(t, nonce, 12)

	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	require.Len(t, ciphertext, len("Tr0ub4dor&3")+16)

	decoded, err := codec.Decode(ctx, result.Value)
	require.NoError(t, err)
	require.Equal(t, "Tr0ub4dor&3", decoded)
}

func TestSecretCodec_NonceUniqueness(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t, newMemoryKeyRepository())
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		result, err := codec.Encode(ctx, "same-password")
		require.NoError(t, err)
		_, dup := seen[result.Value]
		require.False(t, dup, "encoding repeated: %s", result.Value)
		seen[result.Value] = struct{}{}
	}
}

func TestSecretCodec_TamperDetection(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t, newMemoryKeyRepository())
	ctx := context.Background()

	result, err := codec.Encode(ctx, "Tr0ub4dor&3")
	require.NoError(t, err)
	secret, err := domain.ParseEncodedSecret(result.Value)
	require.NoError(t, err)

	for i := range secret.Ciphertext {
		tampered := bytes.Clone(secret.Ciphertext)
		tampered[i] ^= 0xFF
		value := domain.NewVersionedSecret(secret.Nonce, tampered).String()

		_, err := codec.Decode(ctx, value)
		require.ErrorIs(t, err, domain.ErrDecode, "byte %d", i)
	}
}

func TestSecretCodec_LastByteCorrupted(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t, newMemoryKeyRepository())
	ctx := context.Background()

	result, err := codec.Encode(ctx, "Tr0ub4dor&3")
	require.NoError(t, err)
	secret, err := domain.ParseEncodedSecret(result.Value)
	require.NoError(t, err)

	secret.Ciphertext[len(secret.Ciphertext)-1] ^= 0xFF
	decoded, err := codec.Decode(ctx, secret.String())
	require.ErrorIs(t, err, domain.ErrDecode)
	require.Empty(t, decoded)
}

func TestSecretCodec_LegacyCompatibility(t *testing.T) {
	t.Parallel()
	// 鍵ファシリティに触れずに復号できること
	codec := NewSecretCodec(&staticKeys{err: errors.New("must not be called")}, failingCipher{})
	ctx := context.Background()

	decoded, err := codec.Decode(ctx, base64.StdEncoding.EncodeToString([]byte("hunter2")))
	require.NoError(t, err)
	require.Equal(t, "hunter2", decoded)
}

func TestSecretCodec_EmptyIdentity(t *testing.T) {
	t.Parallel()
	codec := NewSecretCodec(&staticKeys{err: errors.New("must not be called")}, failingCipher{})
	ctx := context.Background()

	result, err := codec.Encode(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "", result.Value)
	require.Equal(t, OutcomeEmpty, result.Outcome)

	decoded, err := codec.Decode(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "", decoded)
}

func TestSecretCodec_MalformedInput(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t, newMemoryKeyRepository())
	ctx := context.Background()

	tests := []struct {
		name    string
		encoded string
	}{
		{"too few components", "v1gcm:AAAAAAAAAAAAAAAA"},
		{"too many components", "v1gcm:AAAAAAAAAAAAAAAA:AAAAAAAAAAAAAAAAAAAAAA==:x"},
		{"nonce not base64", "v1gcm:!!!!:AAAAAAAAAAAAAAAAAAAAAA=="},
		{"short nonce", "v1gcm:AAAA:AAAAAAAAAAAAAAAAAAAAAA=="},
		{"ciphertext not base64", "v1gcm:AAAAAAAAAAAAAAAA:***"},
		{"ciphertext shorter than tag", "v1gcm:AAAAAAAAAAAAAAAA:AAAA"},
		{"unknown tag", "v2xyz:AAAAAAAAAAAAAAAA:AAAAAAAAAAAAAAAAAAAAAA=="},
		{"legacy not base64", "not base64 at all!"},
		{"legacy invalid utf8", base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(ctx, tt.encoded)
			require.ErrorIs(t, err, domain.ErrDecode)
		})
	}
}

func TestSecretCodec_KeyStability(t *testing.T) {
	t.Parallel()
	repo := newMemoryKeyRepository()
	ctx := context.Background()

	first := newTestCodec(t, repo)
	result, err := first.Encode(ctx, "persisted across restarts")
	require.NoError(t, err)

	// 再起動を模擬: 新しいファシリティ・カストディアンで同じ永続化ストアを使う
	restarted := newTestCodec(t, repo)
	decoded, err := restarted.Decode(ctx, result.Value)
	require.NoError(t, err)
	require.Equal(t, "persisted across restarts", decoded)

	// 逆方向も復号できること
	again, err := restarted.Encode(ctx, "written after restart")
	require.NoError(t, err)
	decoded, err = first.Decode(ctx, again.Value)
	require.NoError(t, err)
	require.Equal(t, "written after restart", decoded)
}

func TestSecretCodec_WrongKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	result, err := newTestCodec(t, newMemoryKeyRepository()).Encode(ctx, "hunter2")
	require.NoError(t, err)

	// ストレージ消去後は新しい鍵が生成され、既存の秘密情報は復号できない
	_, err = newTestCodec(t, newMemoryKeyRepository()).Decode(ctx, result.Value)
	require.ErrorIs(t, err, domain.ErrDecode)
}

// staticKeys は固定の結果を返す KeyProvider。
type staticKeys struct {
	handle *domain.KeyHandle
	err    error
}

func (s *staticKeys) Alias() string { return "vault" }

func (s *staticKeys) GetOrCreateKey(ctx context.Context) (*domain.KeyHandle, error) {
	return s.handle, s.err
}

func TestSecretCodec_FacilityFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	keys := &staticKeys{err: errors.Join(domain.ErrKeyFacility, errors.New("keystore unavailable"))}

	t.Run("strict mode surfaces the error", func(t *testing.T) {
		codec := NewSecretCodec(keys, failingCipher{})
		_, err := codec.Encode(ctx, "hunter2")
		require.ErrorIs(t, err, domain.ErrKeyFacility)
	})

	t.Run("degraded mode falls back", func(t *testing.T) {
		codec := NewSecretCodec(keys, failingCipher{}, WithDegradedFallback(true))
		result, err := codec.Encode(ctx, "hunter2")
		require.NoError(t, err)
		require.True(t, result.Degraded())
		require.Equal(t, domain.SecretFormatLegacy, result.Format)
		require.ErrorIs(t, result.Cause, domain.ErrDegradedEncoding)
		require.ErrorIs(t, result.Cause, domain.ErrKeyFacility)
		require.Equal(t, base64.StdEncoding.EncodeToString([]byte("hunter2")), result.Value)

		decoded, err := codec.Decode(ctx, result.Value)
		require.NoError(t, err)
		require.Equal(t, "hunter2", decoded)
	})

	t.Run("cipher failure in degraded mode", func(t *testing.T) {
		codec := NewSecretCodec(&staticKeys{handle: &domain.KeyHandle{Alias: "vault"}}, failingCipher{}, WithDegradedFallback(true))
		result, err := codec.Encode(ctx, "hunter2")
		require.NoError(t, err)
		require.True(t, result.Degraded())
	})

	t.Run("decode surfaces facility errors", func(t *testing.T) {
		codec := NewSecretCodec(keys, failingCipher{})
		_, err := codec.Decode(ctx, "v1gcm:AAAAAAAAAAAAAAAA:AAAAAAAAAAAAAAAAAAAAAA==")
		require.ErrorIs(t, err, domain.ErrKeyFacility)
		require.False(t, errors.Is(err, domain.ErrDecode))
	})

	t.Run("nonce source failure", func(t *testing.T) {
		f := facility.NewSecureKeyFacility(newMemoryKeyRepository(), copyWrapper{})
		custodian, err := NewKeyCustodian("vault", f)
		require.NoError(t, err)
		codec := NewSecretCodec(custodian, f, WithNonceSource(bytes.NewReader(nil)))
		_, err = codec.Encode(ctx, "hunter2")
		require.ErrorIs(t, err, domain.ErrKeyFacility)
	})
}
