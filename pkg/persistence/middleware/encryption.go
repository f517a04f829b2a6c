package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/parley/pkg/ports"
)

// envelopeKey is the only field of a stored encrypted record.
const envelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new records. Must be 32 bytes (AES-256).
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt a
	// record, so keys can be rotated without rewriting every conversation.
	FallbackKeys [][]byte
}

type encryptedStore struct {
	next   ports.RecordStore
	config EncryptionConfig
}

// NewEncryption returns a middleware that seals every record with AES-GCM.
// Stored records stay JSON: {"__encrypted__": "<base64 nonce+ciphertext>"}.
func NewEncryption(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return func(next ports.RecordStore) ports.RecordStore {
		return preserveIndex(&encryptedStore{next: next, config: config}, next)
	}, nil
}

// DecodeKey parses a base64 (standard encoding) AES-256 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (m *encryptedStore) Upsert(ctx context.Context, id string, blob []byte) error {
	sealed, err := encrypt(blob, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt record %s: %w", id, err)
	}
	envelope, err := json.Marshal(map[string]string{envelopeKey: base64.StdEncoding.EncodeToString(sealed)})
	if err != nil {
		return err
	}
	return m.next.Upsert(ctx, id, envelope)
}

func (m *encryptedStore) Get(ctx context.Context, id string) ([]byte, error) {
	envelope, err := m.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var fields map[string]string
	if err := json.Unmarshal(envelope, &fields); err != nil || fields[envelopeKey] == "" {
		// Plain records are refused rather than passed through.
		return nil, fmt.Errorf("record %s is missing its encrypted envelope", id)
	}

	sealed, err := base64.StdEncoding.DecodeString(fields[envelopeKey])
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	plain, err := decryptWithRotation(sealed, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt record %s: %w", id, err)
	}
	return plain, nil
}

func (m *encryptedStore) Delete(ctx context.Context, ids ...string) error {
	return m.next.Delete(ctx, ids...)
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(sealed []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(sealed, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(sealed, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(sealed []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
