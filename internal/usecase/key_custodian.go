// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"golang.org/x/sync/singleflight"

	"vault-secret-store/internal/domain"
)

var aliasRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// KeyFacility は鍵ファシリティの鍵管理インターフェース。
type KeyFacility interface {
	LookupKey(ctx context.Context, alias string) (*domain.KeyHandle, error)
	GenerateKey(ctx context.Context, alias string) (*domain.KeyHandle, error)
}

// KeyCustodian は1つのエイリアスに対して永続的な鍵を1つだけ保証する。
type KeyCustodian struct {
	alias    string
	facility KeyFacility
	group    singleflight.Group
}

// ValidateAlias は鍵エイリアスの形式を検証する。
func ValidateAlias(alias string) error {
	if alias == "" || len(alias) > 64 {
		return domain.ErrInvalidAlias
	}
	if !aliasRegex.MatchString(alias) {
		return domain.ErrInvalidAlias
	}
	return nil
}

// NewKeyCustodian は新しいKeyCustodianを生成する。
func NewKeyCustodian(alias string, facility KeyFacility) (*KeyCustodian, error) {
	if err := ValidateAlias(alias); err != nil {
		return nil, fmt.Errorf("%w: %q", err, alias)
	}
	return &KeyCustodian{
		alias:    alias,
		facility: facility,
	}, nil
}

// Alias は管理対象のエイリアスを返す。
func (c *KeyCustodian) Alias() string {
	return c.alias
}

// GetOrCreateKey は鍵のハンドルを返す。鍵が無ければファシリティ内で生成する。
// 同時に呼ばれた場合も生成処理は1回にまとめられる。
// まとめた処理は呼び出し元のキャンセルで中断しない。待機は各自の ctx で打ち切る。
func (c *KeyCustodian) GetOrCreateKey(ctx context.Context) (*domain.KeyHandle, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.alias, func() (any, error) {
		handle, err := c.facility.LookupKey(shared, c.alias)
		if err != nil {
			return nil, err
		}
		if handle != nil {
			return handle, nil
		}

		slog.InfoContext(shared, "generating new key",
			"operation", "get_or_create_key",
			"alias", c.alias,
		)
		return c.facility.GenerateKey(shared, c.alias)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("getting key %q: %w", c.alias, ctx.Err())
	case res = <-ch:
	}

	v, err := res.Val, res.Err
	if err != nil {
		if !errors.Is(err, domain.ErrKeyFacility) {
			err = errors.Join(domain.ErrKeyFacility, err)
		}
		return nil, fmt.Errorf("getting key %q: %w", c.alias, err)
	}
	handle, ok := v.(*domain.KeyHandle)
	if !ok || handle == nil {
		return nil, fmt.Errorf("%w: facility returned no handle for %q", domain.ErrKeyFacility, c.alias)
	}
	return handle, nil
}
