package domain

import "errors"

var (
	// ErrKeyFacility は鍵の生成・取得に失敗した場合のエラー。
	ErrKeyFacility = errors.New("key facility error")

	// ErrDecode は保存形式の不正または認証タグ検証失敗のエラー。
	ErrDecode = errors.New("secret cannot be decoded")

	// ErrDegradedEncoding は暗号化に失敗し、認証なしの符号化で保存されたことを表す。
	ErrDegradedEncoding = errors.New("secret stored with degraded encoding")

	// ErrInvalidAlias は鍵エイリアスが不正な場合のエラー。
	ErrInvalidAlias = errors.New("invalid key alias")

	// ErrKeyAlreadyExists は指定されたエイリアスに既に鍵が存在する場合のエラー。
	ErrKeyAlreadyExists = errors.New("key already exists")

	// ErrKeyNotFound は指定されたエイリアスの鍵がまだ生成されていない場合のエラー。
	ErrKeyNotFound = errors.New("key not found")

	// ErrEntryNotFound は指定されたエントリが存在しない場合のエラー。
	ErrEntryNotFound = errors.New("entry not found")

	// ErrInvalidEntry はエントリの内容が不正な場合のエラー。
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
