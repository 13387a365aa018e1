// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// KeyAlgorithmAES256GCM は鍵ファシリティが扱う唯一のアルゴリズム。
const KeyAlgorithmAES256GCM = "AES-256-GCM"

// KeyHandle は鍵ファシリティ内の対称鍵への不透明な参照を表す。
// 鍵の生バイトは含まない。
type KeyHandle struct {
	Alias     string
	Algorithm string
	CreatedAt time.Time
}

// StoredKey は永続化されたラップ済み鍵エンティティを表す。
type StoredKey struct {
	ID         string
	Alias      string
	WrappedKey []byte // ラッパー（KMS またはローカルマスター鍵）で暗号化された鍵
	Algorithm  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Handle はラップ済み鍵から不透明なハンドルを生成する。
func (k *StoredKey) Handle() *KeyHandle {
	return &KeyHandle{
		Alias:     k.Alias,
		Algorithm: k.Algorithm,
		CreatedAt: k.CreatedAt,
	}
}
