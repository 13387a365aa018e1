package infra

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
)

const masterKeySize = 32

// wrapAAD は鍵ラップ用の追加認証データ。エントリ暗号とは別の値にする。
var wrapAAD = []byte("vault-key-wrap")

// wrapInfo はマスター鍵からラップ用の鍵を導出する際の HKDF info。
var wrapInfo = []byte("vault-secret-store/key-wrap/v1")

// LocalKeyWrapper はローカルのマスター鍵ファイルで鍵をラップする。
// KMS を使えない環境（開発・オフライン運用）向け。
type LocalKeyWrapper struct {
	mu     sync.RWMutex
	master *memguard.LockedBuffer
}

// ErrWrapperClosed は Close 後に利用された場合のエラー。
var ErrWrapperClosed = errors.New("key wrapper closed")

// NewLocalKeyWrapper はマスター鍵ファイルを読み込む。
// ファイルが存在しない場合は 0600 で新規生成する。
func NewLocalKeyWrapper(path string) (*LocalKeyWrapper, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = createMasterKeyFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading master key: %w", err)
	}
	if len(data) != masterKeySize {
		memguard.WipeBytes(data)
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(data))
	}

	// NewBufferFromBytes は data をゼロ化する
	master := memguard.NewBufferFromBytes(data)
	master.Freeze()
	return &LocalKeyWrapper{master: master}, nil
}

// Close はマスター鍵を保持するバッファを破棄する。以降の Encrypt/Decrypt は失敗する。
func (w *LocalKeyWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.master != nil {
		w.master.Destroy()
		w.master = nil
	}
	return nil
}

func createMasterKeyFile(path string) ([]byte, error) {
	key := make([]byte, masterKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		// 並行起動で先に作られた場合は読み直す
		if errors.Is(err, fs.ErrExist) {
			memguard.WipeBytes(key)
			return os.ReadFile(path)
		}
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(key); err != nil {
		return nil, err
	}
	return key, f.Sync()
}

// Encrypt は鍵をマスター鍵でラップする。出力は nonce || ciphertext。
func (w *LocalKeyWrapper) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	var out []byte
	err := w.withAEAD(func(aead cipher.AEAD) error {
		nonce := make([]byte, aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return fmt.Errorf("generating nonce: %w", err)
		}
		out = aead.Seal(nonce, nonce, plaintext, wrapAAD)
		return nil
	})
	return out, err
}

// Decrypt はラップされた鍵を復元する。
func (w *LocalKeyWrapper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	var out []byte
	err := w.withAEAD(func(aead cipher.AEAD) error {
		if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
			return errors.New("wrapped key too short")
		}
		nonce, body := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
		plain, err := aead.Open(nil, nonce, body, wrapAAD)
		if err != nil {
			return fmt.Errorf("unwrapping key: %w", err)
		}
		out = plain
		return nil
	})
	return out, err
}

func (w *LocalKeyWrapper) withAEAD(fn func(cipher.AEAD) error) error {
	derived, err := w.deriveWrapKey()
	if err != nil {
		return err
	}
	defer memguard.WipeBytes(derived)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	return fn(aead)
}

// deriveWrapKey はマスター鍵から用途別の鍵を導出する。マスター鍵は直接使わない。
func (w *LocalKeyWrapper) deriveWrapKey() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.master == nil || !w.master.IsAlive() {
		return nil, ErrWrapperClosed
	}

	derived := make([]byte, masterKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, w.master.Bytes(), nil, wrapInfo), derived); err != nil {
		memguard.WipeBytes(derived)
		return nil, fmt.Errorf("deriving wrap key: %w", err)
	}
	return derived, nil
}
