package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-secret-store/config"
	"vault-secret-store/internal/domain"
	"vault-secret-store/internal/infra"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DatabaseDriver: config.DatabaseDriverSQLite,
		DatabaseURL:    filepath.Join(dir, "vault.db"),
		KeyAlias:       "vault",
		KeyWrapper:     config.KeyWrapperLocal,
		MasterKeyPath:  filepath.Join(dir, "master.key"),
	}
}

func TestOpen_EndToEndAcrossRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := Open(ctx, cfg, true)
	require.NoError(t, err)

	entry, result, err := first.Vault.CreateEntry(ctx, domain.EntryInput{Title: "Mail", Password: "Tr0ub4dor&3"})
	require.NoError(t, err)
	assert.False(t, result.Degraded())
	assert.True(t, strings.HasPrefix(result.Value, "v1gcm:"))
	require.NoError(t, first.Close())

	// 再起動後も同じ鍵で復号できる
	second, err := Open(ctx, cfg, true)
	require.NoError(t, err)
	defer second.Close()

	decoded, err := second.Vault.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SecretStateOK, decoded.SecretState)
	assert.Equal(t, "Tr0ub4dor&3", decoded.Password)

	handles, err := second.Keys.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "vault", handles[0].Alias)
}

func TestOpen_LegacyEntriesAreResealed(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), true)
	require.NoError(t, err)
	defer a.Close()

	legacy := &domain.VaultEntry{Title: "Old", Password: "aHVudGVyMg=="}
	require.NoError(t, a.Vault.ImportEntry(ctx, legacy))
	assert.Equal(t, domain.SecretFormatLegacy, legacy.SecretFormat)

	report, err := a.Vault.Reseal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resealed)

	decoded, err := a.Vault.GetEntry(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", decoded.Password)
	assert.Equal(t, domain.SecretFormatVersioned, decoded.Entry.SecretFormat)
}

func TestOpen_InvalidAlias(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeyAlias = "bad alias!"

	_, err := Open(context.Background(), cfg, true)
	assert.True(t, errors.Is(err, domain.ErrInvalidAlias), "got %v", err)
}

func TestNewKeyWrapper_Unsupported(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeyWrapper = "hsm"

	_, _, err := NewKeyWrapper(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewKeyWrapper_LocalCloserReleasesMasterKey(t *testing.T) {
	ctx := context.Background()
	wrapper, closeWrapper, err := NewKeyWrapper(ctx, testConfig(t))
	require.NoError(t, err)

	_, err = wrapper.Encrypt(ctx, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	require.NoError(t, closeWrapper())
	_, err = wrapper.Encrypt(ctx, []byte("0123456789abcdef0123456789abcdef"))
	assert.ErrorIs(t, err, infra.ErrWrapperClosed)
}
