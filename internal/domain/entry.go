package domain

import "time"

// SecretState は復号結果の表示状態を表す。
type SecretState string

const (
	// SecretStateOK は復号に成功した状態。
	SecretStateOK SecretState = "ok"
	// SecretStateBlank はパスワードが意図的に空である状態。
	SecretStateBlank SecretState = "blank"
	// SecretStateUnreadable は復号できない状態（改ざん・鍵喪失）。
	SecretStateUnreadable SecretState = "unreadable"
)

// VaultEntry は資格情報エントリを表す。Password は符号化済みの文字列。
type VaultEntry struct {
	ID           string
	Title        string
	Username     string
	Password     string
	Note         string
	Category     string
	SecretFormat SecretFormat
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EntryInput はエントリ作成・更新時の平文入力を表す。
type EntryInput struct {
	Title    string
	Username string
	Password string
	Note     string
	Category string
}

// DecodedEntry は復号済みパスワードを伴うエントリを表す。
type DecodedEntry struct {
	Entry       *VaultEntry
	Password    string
	SecretState SecretState
}
