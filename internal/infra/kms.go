package infra

import (
	"context"
	"errors"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// KMSClient はCloud KMSクライアントをラップする。
// 鍵ファシリティの KeyWrapper として鍵のラップ・アンラップに使う。
type KMSClient struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSClient は指定された暗号鍵名でKMSClientを生成する。
// keyName は projects/*/locations/*/keyRings/*/cryptoKeys/* 形式。
func NewKMSClient(ctx context.Context, keyName string) (*KMSClient, error) {
	if keyName == "" {
		return nil, errors.New("KMS key name is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSClient{
		client:  client,
		keyName: keyName,
	}, nil
}

// KeyName は使用中の暗号鍵名を返す。
func (c *KMSClient) KeyName() string {
	return c.keyName
}

// Encrypt は平文をCloud KMSで暗号化する。
func (c *KMSClient) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	req := &kmspb.EncryptRequest{
		Name:      c.keyName,
		Plaintext: plaintext,
	}
	resp, err := c.client.Encrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	return resp.Ciphertext, nil
}

// Decrypt は暗号文をCloud KMSで復号する。
func (c *KMSClient) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	req := &kmspb.DecryptRequest{
		Name:       c.keyName,
		Ciphertext: ciphertext,
	}
	resp, err := c.client.Decrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return resp.Plaintext, nil
}

// EnsureCryptoKey はキーリング配下に対称暗号鍵が無ければ作成し、鍵名を返す。
// keyRing は projects/*/locations/*/keyRings/* 形式。
func (c *KMSClient) EnsureCryptoKey(ctx context.Context, keyRing, cryptoKeyID string) (string, bool, error) {
	name := keyRing + "/cryptoKeys/" + cryptoKeyID

	if _, err := c.client.GetCryptoKey(ctx, &kmspb.GetCryptoKeyRequest{Name: name}); err == nil {
		return name, false, nil
	} else if status.Code(err) != codes.NotFound {
		return "", false, fmt.Errorf("getting crypto key: %w", err)
	}

	key, err := c.client.CreateCryptoKey(ctx, &kmspb.CreateCryptoKeyRequest{
		Parent:      keyRing,
		CryptoKeyId: cryptoKeyID,
		CryptoKey: &kmspb.CryptoKey{
			Purpose: kmspb.CryptoKey_ENCRYPT_DECRYPT,
			VersionTemplate: &kmspb.CryptoKeyVersionTemplate{
				Algorithm: kmspb.CryptoKeyVersion_GOOGLE_SYMMETRIC_ENCRYPTION,
			},
		},
	})
	if err != nil {
		// 並行作成は成功とみなす
		if status.Code(err) == codes.AlreadyExists {
			return name, false, nil
		}
		return "", false, fmt.Errorf("creating crypto key: %w", err)
	}
	return key.Name, true, nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSClient) Close() error {
	return c.client.Close()
}
