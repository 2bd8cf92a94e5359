package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
	keysRepository "github.com/allisson/provenance/internal/keys/repository"
	keysUseCase "github.com/allisson/provenance/internal/keys/usecase"
)

func newTestManager(t *testing.T) *keysUseCase.Manager {
	t.Helper()
	m, err := keysUseCase.NewManager(context.Background(), keysUseCase.Config{
		Repository: keysRepository.NewMemoryRepository(),
	})
	require.NoError(t, err)
	return m
}

func generateAnchorKey(t *testing.T, m *keysUseCase.Manager, id string) {
	t.Helper()
	var out bytes.Buffer
	err := RunGenerateKey(context.Background(), m, slog.Default(), &out, GenerateKeyInput{
		ID:           id,
		KeyType:      "signing",
		Purpose:      "anchor",
		Algorithm:    "ed25519",
		ValidityDays: 30,
		Format:       "json",
	})
	require.NoError(t, err)
}

func TestRunGenerateKey(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("success-json", func(t *testing.T) {
		m := newTestManager(t)

		var out bytes.Buffer
		err := RunGenerateKey(ctx, m, logger, &out, GenerateKeyInput{
			ID:           "anchor-1",
			KeyType:      "signing",
			Purpose:      "anchor",
			Algorithm:    "ed25519",
			ValidityDays: 30,
			Format:       "json",
		})
		require.NoError(t, err)

		var key keysDomain.KeyMetadata
		require.NoError(t, json.Unmarshal(out.Bytes(), &key))
		assert.Equal(t, "anchor-1", key.KeyID)
		assert.Equal(t, keysDomain.StatusActive, key.Status)
		assert.NotNil(t, key.ExpiresAt)
	})

	t.Run("generated-id-text", func(t *testing.T) {
		m := newTestManager(t)

		var out bytes.Buffer
		err := RunGenerateKey(ctx, m, logger, &out, GenerateKeyInput{
			KeyType:   "signing",
			Purpose:   "anchor",
			Algorithm: "ecdsa-p256",
			Format:    "text",
		})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Key generated")
		assert.Contains(t, out.String(), "ID:        anchor-")

		keys := m.List(keysDomain.ListFilter{Purpose: "anchor"})
		require.Len(t, keys, 1)
	})

	t.Run("pending", func(t *testing.T) {
		m := newTestManager(t)
		generateAnchorKey(t, m, "anchor-1")

		var out bytes.Buffer
		err := RunGenerateKey(ctx, m, logger, &out, GenerateKeyInput{
			ID:        "anchor-2",
			KeyType:   "signing",
			Purpose:   "anchor",
			Algorithm: "ed25519",
			Pending:   true,
			Format:    "json",
		})
		require.NoError(t, err)
		assert.Contains(t, out.String(), `"status": "pending"`)
	})

	t.Run("invalid-key-type", func(t *testing.T) {
		err := RunGenerateKey(ctx, nil, logger, nil, GenerateKeyInput{KeyType: "bogus", Format: "text"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid key type")
	})

	t.Run("invalid-format", func(t *testing.T) {
		err := RunGenerateKey(ctx, nil, logger, nil, GenerateKeyInput{KeyType: "signing", Format: "yaml"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid format")
	})
}

func TestRunRotateKey(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("generates-replacement", func(t *testing.T) {
		m := newTestManager(t)
		generateAnchorKey(t, m, "anchor-1")

		var out bytes.Buffer
		err := RunRotateKey(ctx, m, logger, &out, "anchor-1", "", "json")
		require.NoError(t, err)

		var key keysDomain.KeyMetadata
		require.NoError(t, json.Unmarshal(out.Bytes(), &key))
		assert.NotEqual(t, "anchor-1", key.KeyID)
		assert.Equal(t, keysDomain.StatusActive, key.Status)

		old, err := m.Get("anchor-1")
		require.NoError(t, err)
		assert.Equal(t, keysDomain.StatusRetired, old.Status)
	})

	t.Run("unknown-key", func(t *testing.T) {
		m := newTestManager(t)

		err := RunRotateKey(ctx, m, logger, &bytes.Buffer{}, "missing", "", "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, keysDomain.ErrKeyNotFound)
	})
}

func TestRunKeyTransition(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("revoke", func(t *testing.T) {
		m := newTestManager(t)
		generateAnchorKey(t, m, "anchor-1")

		var out bytes.Buffer
		err := RunKeyTransition(ctx, m, logger, &out, "revoke", "anchor-1", "text")
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Key revoked")
	})

	t.Run("revoked-key-cannot-be-activated", func(t *testing.T) {
		m := newTestManager(t)
		generateAnchorKey(t, m, "anchor-1")
		require.NoError(t, RunKeyTransition(ctx, m, logger, &bytes.Buffer{}, "revoke", "anchor-1", "text"))

		err := RunKeyTransition(ctx, m, logger, &bytes.Buffer{}, "activate", "anchor-1", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to activate key")
	})

	t.Run("invalid-action", func(t *testing.T) {
		err := RunKeyTransition(ctx, nil, logger, nil, "delete", "anchor-1", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid key action")
	})
}

func TestRunPurgeKeys(t *testing.T) {
	m := newTestManager(t)

	var out bytes.Buffer
	err := RunPurgeKeys(context.Background(), m, slog.Default(), &out, "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"purged":[],"count":0}`, out.String())
}

func TestRunListKeys(t *testing.T) {
	m := newTestManager(t)
	generateAnchorKey(t, m, "anchor-1")

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunListKeys(m, &out, "", "text"))
		assert.Contains(t, out.String(), "anchor-1")
		assert.Contains(t, out.String(), "active")
	})

	t.Run("other-purpose", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunListKeys(m, &out, "other", "json"))
		assert.JSONEq(t, `[]`, out.String())
	})
}

func TestRunExportPublicKeys(t *testing.T) {
	m := newTestManager(t)
	generateAnchorKey(t, m, "anchor-1")
	generateAnchorKey(t, m, "anchor-2")
	require.NoError(t, RunKeyTransition(context.Background(), m, slog.Default(), &bytes.Buffer{}, "revoke", "anchor-2", "text"))

	var out bytes.Buffer
	require.NoError(t, RunExportPublicKeys(m, &out, "json"))

	var keys map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &keys))
	require.Contains(t, keys, "anchor-1")
	assert.NotContains(t, keys, "anchor-2")
	assert.Contains(t, keys["anchor-1"], "BEGIN PUBLIC KEY")
}
