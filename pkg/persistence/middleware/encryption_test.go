package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.RecordStore, cfg middleware.EncryptionConfig) ports.RecordStore {
	t.Helper()
	mw, err := middleware.NewEncryption(cfg)
	require.NoError(t, err)
	return middleware.Chain(next, mw)
}

func TestEncryption_RecordContract(t *testing.T) {
	store := encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunRecordStoreContract(t, store)
}

func TestEncryption_Roundtrip(t *testing.T) {
	raw := memory.NewStore()
	sessions := session.NewStore(encrypted(t, raw, middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
	ctx := context.Background()

	require.NoError(t, sessions.SetState(ctx, "u1", domain.State{"secret": "my-secret-sauce"}))

	blob, err := raw.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "my-secret-sauce")
	assert.Contains(t, string(blob), "__encrypted__")

	state, err := sessions.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", state["secret"])
}

func TestEncryption_KeyRotation(t *testing.T) {
	raw := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	oldStore := encrypted(t, raw, middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, oldStore.Upsert(ctx, "u1", []byte(`{"data":"old"}`)))

	newStore := encrypted(t, raw, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	blob, err := newStore.Get(ctx, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"old"}`, string(blob))

	require.NoError(t, newStore.Upsert(ctx, "u1", []byte(`{"data":"new"}`)))
	_, err = oldStore.Get(ctx, "u1")
	assert.Error(t, err, "a record sealed with the new key is unreadable with only the old one")
}

func TestEncryption_RefusesPlainRecords(t *testing.T) {
	raw := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, raw.Upsert(ctx, "u1", []byte(`{"plain":true}`)))

	store := encrypted(t, raw, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err := store.Get(ctx, "u1")
	assert.Error(t, err)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestEncryption_PreservesActivityIndex(t *testing.T) {
	store := encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	index, ok := store.(ports.ActivityIndex)
	require.True(t, ok)

	require.NoError(t, store.Upsert(context.Background(), "u1", []byte(`{}`)))
	ids, err := index.ListInactive(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}

func TestNewEncryption_InvalidKeys(t *testing.T) {
	_, err := middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.Error(t, err)

	_, err = middleware.NewEncryption(middleware.EncryptionConfig{ActiveKey: generateKey(t), FallbackKeys: [][]byte{{1}}})
	assert.Error(t, err)
}

func TestDecodeKey(t *testing.T) {
	key := generateKey(t)
	decoded, err := middleware.DecodeKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	_, err = middleware.DecodeKey("not base64!")
	assert.Error(t, err)
	_, err = middleware.DecodeKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
