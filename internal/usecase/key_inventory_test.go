package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"vault-secret-store/internal/domain"
)

// mockKeyLister はテスト用のモック。
type mockKeyLister struct {
	handles map[string]*domain.KeyHandle
	err     error
}

func (m *mockKeyLister) LookupKey(ctx context.Context, alias string) (*domain.KeyHandle, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.handles[alias], nil
}

func (m *mockKeyLister) ListKeys(ctx context.Context) ([]*domain.KeyHandle, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.KeyHandle
	for _, h := range m.handles {
		out = append(out, h)
	}
	return out, nil
}

func TestKeyInventory_CurrentKey(t *testing.T) {
	ctx := context.Background()
	lister := &mockKeyLister{handles: map[string]*domain.KeyHandle{
		"vault": {Alias: "vault", Algorithm: domain.KeyAlgorithmAES256GCM, CreatedAt: time.Now()},
	}}

	handle, err := NewKeyInventory("vault", lister).CurrentKey(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handle.Alias != "vault" {
		t.Errorf("want alias vault, got %s", handle.Alias)
	}

	_, err = NewKeyInventory("other", lister).CurrentKey(ctx)
	if !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("want ErrKeyNotFound, got %v", err)
	}
}

func TestKeyInventory_FacilityError(t *testing.T) {
	ctx := context.Background()
	inv := NewKeyInventory("vault", &mockKeyLister{err: errors.New("unwrap failed")})

	if _, err := inv.CurrentKey(ctx); !errors.Is(err, domain.ErrKeyFacility) {
		t.Errorf("CurrentKey: want ErrKeyFacility, got %v", err)
	}
	if _, err := inv.ListKeys(ctx); !errors.Is(err, domain.ErrKeyFacility) {
		t.Errorf("ListKeys: want ErrKeyFacility, got %v", err)
	}
}
