package repository

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// FileRepository loads policies from the *.yaml and *.yml files of a directory. Each
// file holds one policy document. The fallback policy, when set, is added unless a file
// defines a policy with the same id.
type FileRepository struct {
	*MemoryRepository
	dir      string
	fallback *policyDomain.Policy
	logger   *slog.Logger
}

// NewFileRepository loads every policy document in dir.
func NewFileRepository(
	ctx context.Context,
	dir string,
	fallback *policyDomain.Policy,
	logger *slog.Logger,
) (*FileRepository, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &FileRepository{
		MemoryRepository: &MemoryRepository{policies: make(map[string]*policyEntry)},
		dir:              dir,
		fallback:         fallback,
		logger:           logger,
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the watched directory.
func (r *FileRepository) Dir() string {
	return r.dir
}

// Reload re-reads the directory and swaps the policy set atomically. On any error the
// previous set stays in effect.
func (r *FileRepository) Reload(ctx context.Context) error {
	files, err := policyFiles(r.dir)
	if err != nil {
		return err
	}

	next := make(map[string]*policyEntry, len(files)+1)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := readPolicyFile(path)
		if err != nil {
			return err
		}
		entry, err := newEntry(p)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := next[entry.policy.PolicyID]; dup {
			return fmt.Errorf("%w: %s: duplicate policy id %s", policyDomain.ErrInvalidPolicy, path, entry.policy.PolicyID)
		}
		next[entry.policy.PolicyID] = entry
	}
	if r.fallback != nil {
		if _, ok := next[r.fallback.PolicyID]; !ok {
			entry, err := newEntry(r.fallback)
			if err != nil {
				return err
			}
			next[r.fallback.PolicyID] = entry
		}
	}

	if err := r.replace(next); err != nil {
		return err
	}
	r.logger.Info("policies loaded", slog.String("dir", r.dir), slog.Int("count", len(next)))
	return nil
}

func isPolicyFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(filepath.Base(name), ".")
}

func policyFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory %s: %w", dir, err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && isPolicyFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func readPolicyFile(path string) (*policyDomain.Policy, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the configured policy directory
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p policyDomain.Policy
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", policyDomain.ErrInvalidPolicy, path, err)
	}
	return &p, nil
}
