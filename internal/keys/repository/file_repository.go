package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/allisson/provenance/internal/errors"
	keysDomain "github.com/allisson/provenance/internal/keys/domain"
)

const keyringFile = "keyring.json"

// keyring is the on-disk layout: every key record in creation order.
type keyring struct {
	Version int                     `json:"version"`
	Keys    []*keysDomain.KeyBundle `json:"keys"`
}

// FileRepository stores all key bundles in a single JSON keyring file. Each Save rewrites
// the file through a synced temporary file and an atomic rename, so a multi-key update
// such as a rotation is either fully on disk or not at all.
type FileRepository struct {
	mu   sync.Mutex
	dir  string
	path string
}

// NewFileRepository creates dir (0700) if needed.
func NewFileRepository(dir string) (*FileRepository, error) {
	if dir == "" {
		return nil, errors.New("keys directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.Join(apperrors.ErrStorage, fmt.Errorf("create keys directory: %w", err))
	}
	return &FileRepository{dir: dir, path: filepath.Join(dir, keyringFile)}, nil
}

func (r *FileRepository) read() (*keyring, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return &keyring{Version: 1}, nil
	}
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrStorage, fmt.Errorf("read keyring: %w", err))
	}
	var kr keyring
	if err := json.Unmarshal(data, &kr); err != nil {
		return nil, apperrors.Join(apperrors.ErrStorage, fmt.Errorf("decode keyring %s: %w", r.path, err))
	}
	return &kr, nil
}

// Load returns every stored bundle in creation order.
func (r *FileRepository) Load(ctx context.Context) ([]*keysDomain.KeyBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kr, err := r.read()
	if err != nil {
		return nil, err
	}
	return kr.Keys, nil
}

// Save upserts bundles and durably replaces the keyring file.
func (r *FileRepository) Save(ctx context.Context, bundles ...*keysDomain.KeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kr, err := r.read()
	if err != nil {
		return err
	}
	index := make(map[string]int, len(kr.Keys))
	for i, b := range kr.Keys {
		index[b.Metadata.KeyID] = i
	}
	for _, b := range bundles {
		if i, ok := index[b.Metadata.KeyID]; ok {
			kr.Keys[i] = b
			continue
		}
		index[b.Metadata.KeyID] = len(kr.Keys)
		kr.Keys = append(kr.Keys, b)
	}

	data, err := json.MarshalIndent(kr, "", "  ")
	if err != nil {
		return fmt.Errorf("encode keyring: %w", err)
	}
	if err := writeFileAtomic(r.dir, r.path, data); err != nil {
		return apperrors.Join(apperrors.ErrStorage, err)
	}
	return nil
}

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, keyringFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp keyring: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp keyring: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp keyring: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp keyring: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp keyring: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace keyring: %w", err)
	}

	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open keys directory: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync keys directory: %w", err)
	}
	return nil
}
