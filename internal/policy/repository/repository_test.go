package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/provenance/internal/canonical"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

const healthcarePolicy = `
policy_id: hc-diagnostics
schema_version: "1.0"
domain_labels: [Healthcare, diagnostics]
hash_algorithm: sha256
external_timestamping: false
high_risk_domains: [healthcare, finance]
description: Diagnostic model evidence
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo, err := NewMemoryRepository(policyDomain.DefaultPolicy("default"))
	require.NoError(t, err)

	t.Run("get returns a copy", func(t *testing.T) {
		p, err := repo.Get(ctx, "default")
		require.NoError(t, err)
		p.DomainLabels = append(p.DomainLabels, "finance")

		again, err := repo.Get(ctx, "default")
		require.NoError(t, err)
		assert.Empty(t, again.DomainLabels)
	})

	t.Run("missing policy", func(t *testing.T) {
		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, policyDomain.ErrPolicyNotFound)
		_, err = repo.Seal(ctx, "nope")
		assert.ErrorIs(t, err, policyDomain.ErrPolicyNotFound)
	})

	t.Run("put normalizes and validates", func(t *testing.T) {
		p := policyDomain.DefaultPolicy("hc")
		p.DomainLabels = []string{" Healthcare ", "healthcare"}
		require.NoError(t, repo.Put(ctx, p))

		stored, err := repo.Get(ctx, "hc")
		require.NoError(t, err)
		assert.Equal(t, []string{"healthcare"}, stored.DomainLabels)

		err = repo.Put(ctx, &policyDomain.Policy{PolicyID: "bad id", SchemaVersion: "1.0"})
		assert.ErrorIs(t, err, policyDomain.ErrInvalidPolicy)
	})

	t.Run("sealed policy is immutable", func(t *testing.T) {
		fingerprint, err := repo.Seal(ctx, "hc")
		require.NoError(t, err)
		assert.Len(t, fingerprint, 64)
		assert.True(t, repo.IsSealed("hc"))

		again, err := repo.Seal(ctx, "hc")
		require.NoError(t, err)
		assert.Equal(t, fingerprint, again)

		same, err := repo.Get(ctx, "hc")
		require.NoError(t, err)
		assert.NoError(t, repo.Put(ctx, same))

		same.DomainLabels = []string{"finance"}
		assert.ErrorIs(t, repo.Put(ctx, same), policyDomain.ErrPolicyImmutable)
	})

	t.Run("list is sorted", func(t *testing.T) {
		policies, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, policies, 2)
		assert.Equal(t, "default", policies[0].PolicyID)
		assert.Equal(t, "hc", policies[1].PolicyID)
	})
}

func TestMemoryRepository_HashAlgorithmStoredCanonically(t *testing.T) {
	ctx := context.Background()
	repo, err := NewMemoryRepository()
	require.NoError(t, err)

	tests := []struct {
		id       string
		declared canonical.Algorithm
		stored   canonical.Algorithm
	}{
		{id: "upper", declared: "SHA256", stored: canonical.SHA256},
		{id: "padded", declared: " Sha512 ", stored: canonical.SHA512},
		{id: "sha3", declared: "SHA3-256", stored: canonical.SHA3_256},
		{id: "empty", declared: "", stored: canonical.DefaultAlgorithm},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p := policyDomain.DefaultPolicy(tt.id)
			p.HashAlgorithm = tt.declared
			require.NoError(t, repo.Put(ctx, p))

			stored, err := repo.Get(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.stored, stored.HashAlgorithm)
		})
	}

	bad := policyDomain.DefaultPolicy("md5")
	bad.HashAlgorithm = "MD5"
	assert.ErrorIs(t, repo.Put(ctx, bad), policyDomain.ErrInvalidPolicy)
}

func TestFileRepository_UppercaseHashAlgorithm(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "hc.yaml", strings.Replace(healthcarePolicy, "hash_algorithm: sha256", "hash_algorithm: SHA256", 1))

	repo, err := NewFileRepository(ctx, dir, policyDomain.DefaultPolicy("default"), nil)
	require.NoError(t, err)

	p, err := repo.Get(ctx, "hc-diagnostics")
	require.NoError(t, err)
	assert.Equal(t, canonical.SHA256, p.HashAlgorithm)
}

func TestFileRepository_Load(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "hc.yaml", healthcarePolicy)
	writeFile(t, dir, "notes.txt", "ignored")

	repo, err := NewFileRepository(ctx, dir, policyDomain.DefaultPolicy("default"), nil)
	require.NoError(t, err)
	assert.Equal(t, dir, repo.Dir())

	p, err := repo.Get(ctx, "hc-diagnostics")
	require.NoError(t, err)
	assert.Equal(t, []string{"diagnostics", "healthcare"}, p.DomainLabels)
	assert.Equal(t, []string{"finance", "healthcare"}, p.HighRiskDomains)
	assert.True(t, p.IsHighRisk())

	def, err := repo.Get(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, policyDomain.DefaultHighRiskDomains, def.HighRiskDomains)
}

func TestFileRepository_DefinedDefaultWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "default.yml", "policy_id: default\nschema_version: \"2.0\"\n")

	repo, err := NewFileRepository(context.Background(), dir, policyDomain.DefaultPolicy("default"), nil)
	require.NoError(t, err)

	p, err := repo.Get(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "2.0", p.SchemaVersion)
	assert.Empty(t, p.HighRiskDomains)
}

func TestFileRepository_InvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{
			name:    "unknown field",
			files:   map[string]string{"a.yaml": "policy_id: a\nschema_version: \"1.0\"\nretention: 5\n"},
			wantErr: policyDomain.ErrInvalidPolicy,
		},
		{
			name:    "missing id",
			files:   map[string]string{"a.yaml": "schema_version: \"1.0\"\n"},
			wantErr: policyDomain.ErrInvalidPolicy,
		},
		{
			name: "duplicate id",
			files: map[string]string{
				"a.yaml": "policy_id: same\nschema_version: \"1.0\"\n",
				"b.yaml": "policy_id: same\nschema_version: \"1.0\"\n",
			},
			wantErr: policyDomain.ErrInvalidPolicy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				writeFile(t, dir, name, content)
			}
			_, err := NewFileRepository(context.Background(), dir, policyDomain.DefaultPolicy("default"), nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := NewFileRepository(context.Background(), filepath.Join(t.TempDir(), "missing"), policyDomain.DefaultPolicy("default"), nil)
	assert.Error(t, err)
}

func TestFileRepository_Reload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "hc.yaml", healthcarePolicy)

	repo, err := NewFileRepository(ctx, dir, policyDomain.DefaultPolicy("default"), nil)
	require.NoError(t, err)
	_, err = repo.Seal(ctx, "hc-diagnostics")
	require.NoError(t, err)

	t.Run("broken file keeps previous set", func(t *testing.T) {
		writeFile(t, dir, "new.yaml", "policy_id: [")
		assert.Error(t, repo.Reload(ctx))
		_, err := repo.Get(ctx, "hc-diagnostics")
		assert.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(dir, "new.yaml")))
	})

	t.Run("sealed policy cannot change", func(t *testing.T) {
		writeFile(t, dir, "hc.yaml", healthcarePolicy+"external_timestamping: true\n")
		assert.ErrorIs(t, repo.Reload(ctx), policyDomain.ErrInvalidPolicy)

		changed := "policy_id: hc-diagnostics\nschema_version: \"1.1\"\n"
		writeFile(t, dir, "hc.yaml", changed)
		assert.ErrorIs(t, repo.Reload(ctx), policyDomain.ErrPolicyImmutable)
	})

	t.Run("sealed policy survives file removal", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "hc.yaml")))
		writeFile(t, dir, "fin.yaml", "policy_id: fin\nschema_version: \"1.0\"\ndomain_labels: [finance]\n")
		require.NoError(t, repo.Reload(ctx))

		_, err := repo.Get(ctx, "hc-diagnostics")
		assert.NoError(t, err)
		_, err = repo.Get(ctx, "fin")
		assert.NoError(t, err)
	})
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()

	repo, err := NewFileRepository(ctx, dir, policyDomain.DefaultPolicy("default"), nil)
	require.NoError(t, err)

	w, err := NewWatcher(dir, repo, 20*time.Millisecond, nil)
	require.NoError(t, err)
	var reloads atomic.Int32
	w.OnReload(func(err error) {
		if err == nil {
			reloads.Add(1)
		}
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, dir, "hc.yaml", healthcarePolicy)
	assert.Eventually(t, func() bool {
		_, err := repo.Get(context.Background(), "hc-diagnostics")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), nil, 0, nil)
	assert.Error(t, err)
}
