package infra

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalKeyWrapper_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "master.key")

	w, err := NewLocalKeyWrapper(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Equal(t, int64(masterKeySize), info.Size())

	key := bytes.Repeat([]byte{0x42}, 32)
	wrapped, err := w.Encrypt(ctx, key)
	require.NoError(t, err)
	assert.NotContains(t, string(wrapped), string(key))

	// 同じファイルから読み直しても復元できる
	reopened, err := NewLocalKeyWrapper(path)
	require.NoError(t, err)
	unwrapped, err := reopened.Decrypt(ctx, wrapped)
	require.NoError(t, err)
	assert.Equal(t, key, unwrapped)
}

func TestLocalKeyWrapper_DifferentMasterKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, err := NewLocalKeyWrapper(filepath.Join(dir, "a.key"))
	require.NoError(t, err)
	b, err := NewLocalKeyWrapper(filepath.Join(dir, "b.key"))
	require.NoError(t, err)

	wrapped, err := a.Encrypt(ctx, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	_, err = b.Decrypt(ctx, wrapped)
	assert.Error(t, err)
}

func TestLocalKeyWrapper_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("wrong master key size", func(t *testing.T) {
		path := filepath.Join(dir, "short.key")
		require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

		_, err := NewLocalKeyWrapper(path)
		assert.Error(t, err)
	})

	t.Run("truncated wrapped key", func(t *testing.T) {
		w, err := NewLocalKeyWrapper(filepath.Join(dir, "ok.key"))
		require.NoError(t, err)

		_, err = w.Decrypt(ctx, []byte("tiny"))
		assert.Error(t, err)
	})

	t.Run("tampered wrapped key", func(t *testing.T) {
		w, err := NewLocalKeyWrapper(filepath.Join(dir, "tamper.key"))
		require.NoError(t, err)

		wrapped, err := w.Encrypt(ctx, []byte("0123456789abcdef0123456789abcdef"))
		require.NoError(t, err)
		wrapped[len(wrapped)-1] ^= 0xFF

		_, err = w.Decrypt(ctx, wrapped)
		assert.Error(t, err)
	})
}

func TestLocalKeyWrapper_Close(t *testing.T) {
	ctx := context.Background()
	w, err := NewLocalKeyWrapper(filepath.Join(t.TempDir(), "master.key"))
	require.NoError(t, err)

	wrapped, err := w.Encrypt(ctx, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Encrypt(ctx, []byte("0123456789abcdef0123456789abcdef"))
	assert.ErrorIs(t, err, ErrWrapperClosed)
	_, err = w.Decrypt(ctx, wrapped)
	assert.ErrorIs(t, err, ErrWrapperClosed)
}
