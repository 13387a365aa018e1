// Package app は各コンポーネントの組み立てを提供する。サーバーとCLIで共有する。
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"vault-secret-store/config"
	"vault-secret-store/internal/facility"
	"vault-secret-store/internal/infra"
	"vault-secret-store/internal/repository"
	"vault-secret-store/internal/usecase"
	"vault-secret-store/migrations"
)

// App は組み立て済みのコンポーネントを保持する。
type App struct {
	DB        *gorm.DB
	Facility  *facility.SecureKeyFacility
	Custodian *usecase.KeyCustodian
	Codec     *usecase.SecretCodec
	Vault     *usecase.VaultService
	Keys      *usecase.KeyInventory

	closers []func() error
}

// NewMigrationService は埋め込みマイグレーションを使うMigrationServiceを生成する。
func NewMigrationService(db *gorm.DB) *usecase.MigrationService {
	return usecase.NewMigrationService(repository.NewMigrationRepository(db), db, migrations.FS)
}

// NewKeyWrapper は KEY_WRAPPER に応じた鍵ラッパーを生成する。
// 返される関数でリソースを解放する。
func NewKeyWrapper(ctx context.Context, cfg *config.Config) (facility.KeyWrapper, func() error, error) {
	switch cfg.KeyWrapper {
	case config.KeyWrapperKMS:
		client, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case config.KeyWrapperLocal:
		wrapper, err := infra.NewLocalKeyWrapper(cfg.MasterKeyPath)
		if err != nil {
			return nil, nil, err
		}
		return wrapper, wrapper.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported key wrapper: %s", cfg.KeyWrapper)
	}
}

// Open は設定からDB・鍵ファシリティ・サービスを組み立てる。
// migrate が true の場合は未適用マイグレーションを先に適用する。
func Open(ctx context.Context, cfg *config.Config, migrate bool) (*App, error) {
	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	a := &App{DB: db}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if migrate {
		applied, err := NewMigrationService(db).ApplyMigrations(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		if applied > 0 {
			slog.InfoContext(ctx, "migrations applied", "count", applied)
		}
	}

	wrapper, closeWrapper, err := NewKeyWrapper(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("initializing key wrapper: %w", err)
	}
	a.closers = append(a.closers, closeWrapper)

	if err := a.wire(cfg, repository.NewKeyRepository(db), wrapper, repository.NewEntryRepository(db)); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(cfg *config.Config, keys facility.KeyRepository, wrapper facility.KeyWrapper, entries usecase.EntryRepository) error {
	a.Facility = facility.NewSecureKeyFacility(keys, wrapper)

	custodian, err := usecase.NewKeyCustodian(cfg.KeyAlias, a.Facility)
	if err != nil {
		return err
	}
	a.Custodian = custodian
	a.Codec = usecase.NewSecretCodec(custodian, a.Facility,
		usecase.WithDegradedFallback(cfg.AllowDegradedEncoding),
	)
	a.Vault = usecase.NewVaultService(entries, a.Codec)
	a.Keys = usecase.NewKeyInventory(cfg.KeyAlias, a.Facility)
	a.closers = append(a.closers, func() error {
		a.Facility.Forget()
		return nil
	})
	return nil
}

// Close は確保したリソースを逆順に解放する。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
