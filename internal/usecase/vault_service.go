package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"vault-secret-store/internal/domain"
)

// EntryRepository はエントリのデータアクセスインターフェース。
type EntryRepository interface {
	Create(ctx context.Context, entry *domain.VaultEntry) error
	FindByID(ctx context.Context, id string) (*domain.VaultEntry, error)
	FindAll(ctx context.Context) ([]*domain.VaultEntry, error)
	FindBySecretFormat(ctx context.Context, format domain.SecretFormat) ([]*domain.VaultEntry, error)
	Update(ctx context.Context, entry *domain.VaultEntry) error
	Delete(ctx context.Context, id string) (bool, error)
}

// SecretEncoder は秘密情報の符号化インターフェース。
type SecretEncoder interface {
	Encode(ctx context.Context, plaintext string) (EncodeResult, error)
	Decode(ctx context.Context, encoded string) (string, error)
}

// VaultService は資格情報エントリのビジネスロジックを提供する。
// パスワードは必ず符号化してから永続化する。
type VaultService struct {
	repo  EntryRepository
	codec SecretEncoder
}

// NewVaultService は新しいVaultServiceを生成する。
func NewVaultService(repo EntryRepository, codec SecretEncoder) *VaultService {
	return &VaultService{
		repo:  repo,
		codec: codec,
	}
}

func validateEntryInput(in domain.EntryInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidEntry)
	}
	if len(in.Title) > 255 || len(in.Username) > 255 || len(in.Category) > 64 {
		return fmt.Errorf("%w: field too long", domain.ErrInvalidEntry)
	}
	return nil
}

// CreateEntry は新しいエントリを作成する。
func (s *VaultService) CreateEntry(ctx context.Context, in domain.EntryInput) (*domain.VaultEntry, EncodeResult, error) {
	if err := validateEntryInput(in); err != nil {
		return nil, EncodeResult{}, err
	}

	encoded, err := s.codec.Encode(ctx, in.Password)
	if err != nil {
		return nil, EncodeResult{}, fmt.Errorf("encoding password: %w", err)
	}

	entry := &domain.VaultEntry{
		Title:        in.Title,
		Username:     in.Username,
		Password:     encoded.Value,
		Note:         in.Note,
		Category:     in.Category,
		SecretFormat: encoded.Format,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, EncodeResult{}, fmt.Errorf("creating entry: %w", err)
	}
	return entry, encoded, nil
}

// GetEntry はエントリを取得し、パスワードを復号する。
// 復号できない場合はエラーではなく SecretStateUnreadable を返す。
func (s *VaultService) GetEntry(ctx context.Context, id string) (*domain.DecodedEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrEntryNotFound
	}

	if entry.Password == "" {
		return &domain.DecodedEntry{Entry: entry, SecretState: domain.SecretStateBlank}, nil
	}

	password, err := s.codec.Decode(ctx, entry.Password)
	if err != nil {
		if errors.Is(err, domain.ErrDecode) {
			slog.WarnContext(ctx, "stored secret is unreadable",
				"operation", "get_entry",
				"entry_id", id,
				"error", err,
			)
			return &domain.DecodedEntry{Entry: entry, SecretState: domain.SecretStateUnreadable}, nil
		}
		return nil, fmt.Errorf("decoding password: %w", err)
	}

	return &domain.DecodedEntry{
		Entry:       entry,
		Password:    password,
		SecretState: domain.SecretStateOK,
	}, nil
}

// ListEntries は全エントリを取得する（パスワードは復号しない）。
func (s *VaultService) ListEntries(ctx context.Context) ([]*domain.VaultEntry, error) {
	entries, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding entries: %w", err)
	}
	return entries, nil
}

// UpdateEntry はエントリを更新する。パスワードは常に新しく符号化し直す。
func (s *VaultService) UpdateEntry(ctx context.Context, id string, in domain.EntryInput) (*domain.VaultEntry, EncodeResult, error) {
	if err := validateEntryInput(in); err != nil {
		return nil, EncodeResult{}, err
	}

	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, EncodeResult{}, fmt.Errorf("finding entry: %w", err)
	}
	if entry == nil {
		return nil, EncodeResult{}, domain.ErrEntryNotFound
	}

	encoded, err := s.codec.Encode(ctx, in.Password)
	if err != nil {
		return nil, EncodeResult{}, fmt.Errorf("encoding password: %w", err)
	}

	entry.Title = in.Title
	entry.Username = in.Username
	entry.Password = encoded.Value
	entry.Note = in.Note
	entry.Category = in.Category
	entry.SecretFormat = encoded.Format
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, EncodeResult{}, fmt.Errorf("updating entry: %w", err)
	}
	return entry, encoded, nil
}

// DeleteEntry はエントリを削除する。
func (s *VaultService) DeleteEntry(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if !deleted {
		return domain.ErrEntryNotFound
	}
	return nil
}

// ResealReport は再暗号化の結果を表す。
type ResealReport struct {
	Resealed   int
	Unreadable []string
}

// Reseal は旧形式（退避符号化を含む）のエントリを現行形式で再暗号化する。
// 再暗号化がまた退避符号化になった場合は中断する。
func (s *VaultService) Reseal(ctx context.Context) (*ResealReport, error) {
	entries, err := s.repo.FindBySecretFormat(ctx, domain.SecretFormatLegacy)
	if err != nil {
		return nil, fmt.Errorf("finding legacy entries: %w", err)
	}

	report := &ResealReport{}
	for _, entry := range entries {
		password, err := s.codec.Decode(ctx, entry.Password)
		if err != nil {
			if errors.Is(err, domain.ErrDecode) {
				report.Unreadable = append(report.Unreadable, entry.ID)
				continue
			}
			return report, fmt.Errorf("decoding entry %s: %w", entry.ID, err)
		}

		encoded, err := s.codec.Encode(ctx, password)
		if err != nil {
			return report, fmt.Errorf("encoding entry %s: %w", entry.ID, err)
		}
		if encoded.Degraded() {
			return report, fmt.Errorf("resealing entry %s: %w", entry.ID, encoded.Cause)
		}

		entry.Password = encoded.Value
		entry.SecretFormat = encoded.Format
		if err := s.repo.Update(ctx, entry); err != nil {
			return report, fmt.Errorf("updating entry %s: %w", entry.ID, err)
		}
		report.Resealed++
	}

	slog.InfoContext(ctx, "reseal completed",
		"operation", "reseal",
		"resealed", report.Resealed,
		"unreadable", len(report.Unreadable),
	)
	return report, nil
}

// ImportEntry は符号化済みのエントリをそのまま取り込む。
// パスワードは再暗号化せず、保存形式の検証のみ行う。旧形式は後で Reseal する。
func (s *VaultService) ImportEntry(ctx context.Context, entry *domain.VaultEntry) error {
	if err := validateEntryInput(domain.EntryInput{
		Title:    entry.Title,
		Username: entry.Username,
		Category: entry.Category,
	}); err != nil {
		return err
	}

	secret, err := domain.ParseEncodedSecret(entry.Password)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEntry, err)
	}
	entry.SecretFormat = secret.Format

	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("importing entry: %w", err)
	}
	return nil
}
