// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vault-secret-store/internal/domain"
)

// SecureKeyModel はgorm用のモデル定義。
type SecureKeyModel struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	Alias      string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_alias"`
	WrappedKey []byte    `gorm:"type:blob;not null"`
	Algorithm  string    `gorm:"type:varchar(32);not null"`
	CreatedAt  time.Time `gorm:"type:datetime;not null;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:datetime;not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (SecureKeyModel) TableName() string {
	return "secure_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *SecureKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *SecureKeyModel) toDomain() *domain.StoredKey {
	return &domain.StoredKey{
		ID:         m.ID,
		Alias:      m.Alias,
		WrappedKey: m.WrappedKey,
		Algorithm:  m.Algorithm,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// KeyRepository はラップ済み鍵のデータアクセスを提供する。
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository は新しいKeyRepositoryを生成する。
func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// FindByAlias はエイリアスに対応する鍵を取得する。存在しない場合は nil を返す。
func (r *KeyRepository) FindByAlias(ctx context.Context, alias string) (*domain.StoredKey, error) {
	var model SecureKeyModel
	err := r.db.WithContext(ctx).
		Where("alias = ?", alias).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key",
			"operation", "find_by_alias",
			"alias", alias,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// Create は新しいラップ済み鍵を保存する。
// エイリアスが重複する場合は domain.ErrKeyAlreadyExists を返す。
func (r *KeyRepository) Create(ctx context.Context, key *domain.StoredKey) error {
	model := &SecureKeyModel{
		ID:         key.ID,
		Alias:      key.Alias,
		WrappedKey: key.WrappedKey,
		Algorithm:  key.Algorithm,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrKeyAlreadyExists
		}
		// エラー変換に対応しないドライバ向け
		if existing, findErr := r.FindByAlias(ctx, key.Alias); findErr == nil && existing != nil {
			return domain.ErrKeyAlreadyExists
		}
		slog.ErrorContext(ctx, "failed to create key",
			"operation", "create",
			"alias", key.Alias,
			"error", err,
		)
		return err
	}
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindAll は全ての鍵をエイリアス順に取得する。
func (r *KeyRepository) FindAll(ctx context.Context) ([]*domain.StoredKey, error) {
	var models []SecureKeyModel
	if err := r.db.WithContext(ctx).Order("alias ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find all keys",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.StoredKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}
