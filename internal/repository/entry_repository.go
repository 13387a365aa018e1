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

// VaultEntryModel はgorm用のモデル定義。
type VaultEntryModel struct {
	ID           string    `gorm:"type:char(36);primaryKey"`
	Title        string    `gorm:"type:varchar(255);not null"`
	Username     string    `gorm:"type:varchar(255);not null;default:''"`
	Password     string    `gorm:"type:text;not null"`
	Note         string    `gorm:"type:text;not null"`
	Category     string    `gorm:"type:varchar(64);not null;default:'';index:idx_category"`
	SecretFormat string    `gorm:"type:varchar(16);not null;default:'legacy';index:idx_secret_format"`
	CreatedAt    time.Time `gorm:"type:datetime;not null;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"type:datetime;not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (VaultEntryModel) TableName() string {
	return "vault_entries"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *VaultEntryModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *VaultEntryModel) toDomain() *domain.VaultEntry {
	return &domain.VaultEntry{
		ID:           m.ID,
		Title:        m.Title,
		Username:     m.Username,
		Password:     m.Password,
		Note:         m.Note,
		Category:     m.Category,
		SecretFormat: domain.SecretFormat(m.SecretFormat),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func newVaultEntryModel(e *domain.VaultEntry) *VaultEntryModel {
	return &VaultEntryModel{
		ID:           e.ID,
		Title:        e.Title,
		Username:     e.Username,
		Password:     e.Password,
		Note:         e.Note,
		Category:     e.Category,
		SecretFormat: string(e.SecretFormat),
		CreatedAt:    e.CreatedAt,
	}
}

// EntryRepository はエントリのデータアクセスを提供する。
type EntryRepository struct {
	db *gorm.DB
}

// NewEntryRepository は新しいEntryRepositoryを生成する。
func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create は新しいエントリを保存する。
func (r *EntryRepository) Create(ctx context.Context, entry *domain.VaultEntry) error {
	model := newVaultEntryModel(entry)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create entry",
			"operation", "create_entry",
			"error", err,
		)
		return err
	}
	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	entry.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたIDのエントリを取得する。存在しない場合は nil を返す。
func (r *EntryRepository) FindByID(ctx context.Context, id string) (*domain.VaultEntry, error) {
	var model VaultEntryModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find entry",
			"operation", "find_entry_by_id",
			"entry_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAll は全エントリをタイトル順に取得する。
func (r *EntryRepository) FindAll(ctx context.Context) ([]*domain.VaultEntry, error) {
	return r.find(ctx, "find_all_entries", r.db.WithContext(ctx))
}

// FindBySecretFormat は指定された保存形式のエントリを取得する。
func (r *EntryRepository) FindBySecretFormat(ctx context.Context, format domain.SecretFormat) ([]*domain.VaultEntry, error) {
	return r.find(ctx, "find_entries_by_secret_format", r.db.WithContext(ctx).Where("secret_format = ?", string(format)))
}

func (r *EntryRepository) find(ctx context.Context, operation string, query *gorm.DB) ([]*domain.VaultEntry, error) {
	var models []VaultEntryModel
	if err := query.Order("title ASC").Order("id ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find entries",
			"operation", operation,
			"error", err,
		)
		return nil, err
	}
	entries := make([]*domain.VaultEntry, len(models))
	for i := range models {
		entries[i] = models[i].toDomain()
	}
	return entries, nil
}

// Update はエントリの内容を置き換える。
func (r *EntryRepository) Update(ctx context.Context, entry *domain.VaultEntry) error {
	result := r.db.WithContext(ctx).
		Model(&VaultEntryModel{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"title":         entry.Title,
			"username":      entry.Username,
			"password":      entry.Password,
			"note":          entry.Note,
			"category":      entry.Category,
			"secret_format": string(entry.SecretFormat),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update entry",
			"operation", "update_entry",
			"entry_id", entry.ID,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

// Delete は指定されたIDのエントリを削除する。削除した場合は true を返す。
func (r *EntryRepository) Delete(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&VaultEntryModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to delete entry",
			"operation", "delete_entry",
			"entry_id", id,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
