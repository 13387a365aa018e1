package usecase

import (
	"context"
	"fmt"

	"vault-secret-store/internal/domain"
)

// KeyLister は鍵ファシリティ内の鍵を参照するインターフェース。
type KeyLister interface {
	LookupKey(ctx context.Context, alias string) (*domain.KeyHandle, error)
	ListKeys(ctx context.Context) ([]*domain.KeyHandle, error)
}

// KeyInventory は鍵の管理用ビューを提供する。鍵の生成は行わない。
type KeyInventory struct {
	alias  string
	lister KeyLister
}

// NewKeyInventory は新しいKeyInventoryを生成する。alias は現在使用中の鍵。
func NewKeyInventory(alias string, lister KeyLister) *KeyInventory {
	return &KeyInventory{alias: alias, lister: lister}
}

// CurrentKey は使用中のエイリアスの鍵ハンドルを返す。
// まだ生成されていない場合は domain.ErrKeyNotFound を返す。
func (i *KeyInventory) CurrentKey(ctx context.Context) (*domain.KeyHandle, error) {
	handle, err := i.lister.LookupKey(ctx, i.alias)
	if err != nil {
		return nil, fmt.Errorf("%w: looking up key %q: %v", domain.ErrKeyFacility, i.alias, err)
	}
	if handle == nil {
		return nil, domain.ErrKeyNotFound
	}
	return handle, nil
}

// ListKeys は保存されている全ての鍵ハンドルを返す。
func (i *KeyInventory) ListKeys(ctx context.Context) ([]*domain.KeyHandle, error) {
	handles, err := i.lister.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing keys: %v", domain.ErrKeyFacility, err)
	}
	return handles, nil
}
