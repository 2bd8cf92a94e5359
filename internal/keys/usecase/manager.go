// Package usecase implements the key lifecycle: generation, activation, rotation,
// retirement, revocation and purge of signing, encryption and master keys.
//
// State transitions happen under an exclusive lock and are persisted before they become
// visible, so a failed write leaves the key set unchanged and readers never observe a
// purpose with zero or two active keys mid-rotation.
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
	keysService "github.com/allisson/provenance/internal/keys/service"
)

// Config configures a Manager.
type Config struct {
	Repository KeyRepository
	// Wrapper protects private and symmetric material. Defaults to no wrapping.
	Wrapper keysService.KeyWrapper
	// Retention is how long retired keys keep their secret material.
	Retention time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// Manager owns the key set.
type Manager struct {
	mu        sync.RWMutex
	repo      KeyRepository
	wrapper   keysService.KeyWrapper
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
	keys      map[string]*keysDomain.KeyBundle
	order     []string
}

// NewManager loads the persisted key set.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Repository == nil {
		return nil, errors.New("key repository is required")
	}
	if cfg.Wrapper == nil {
		cfg.Wrapper = keysService.NewNoopWrapper()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	bundles, err := cfg.Repository.Load(ctx)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		repo:      cfg.Repository,
		wrapper:   cfg.Wrapper,
		retention: cfg.Retention,
		logger:    cfg.Logger,
		now:       cfg.Now,
		keys:      make(map[string]*keysDomain.KeyBundle, len(bundles)),
	}
	active := make(map[string]string)
	for _, b := range bundles {
		if err := b.Metadata.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.keys[b.Metadata.KeyID]; dup {
			return nil, fmt.Errorf("%w: %s", keysDomain.ErrKeyExists, b.Metadata.KeyID)
		}
		if b.Metadata.Status == keysDomain.StatusActive {
			slot := string(b.Metadata.KeyType) + "/" + b.Metadata.Purpose
			if other, ok := active[slot]; ok {
				return nil, fmt.Errorf("%w: %s and %s", keysDomain.ErrActiveKeyExists, other, b.Metadata.KeyID)
			}
			active[slot] = b.Metadata.KeyID
		}
		m.keys[b.Metadata.KeyID] = b
		m.order = append(m.order, b.Metadata.KeyID)
	}
	return m, nil
}

// GenerateOption customizes key generation.
type GenerateOption func(*generateOptions)

type generateOptions struct {
	algorithm   keysDomain.Algorithm
	tags        map[string]string
	pending     bool
	parentKeyID string
}

// WithAlgorithm selects the signing algorithm.
func WithAlgorithm(alg keysDomain.Algorithm) GenerateOption {
	return func(o *generateOptions) { o.algorithm = alg }
}

// WithTags attaches free-form tags.
func WithTags(tags map[string]string) GenerateOption {
	return func(o *generateOptions) { o.tags = maps.Clone(tags) }
}

// AsPending creates the key in pending state even when its purpose has no active key.
func AsPending() GenerateOption {
	return func(o *generateOptions) { o.pending = true }
}

// WithParent names the master key an encryption key is derived from.
func WithParent(keyID string) GenerateOption {
	return func(o *generateOptions) { o.parentKeyID = keyID }
}

// GenerateSigningKey creates a signing key. It becomes active when its purpose has no
// active signing key or only an expired one, which is retired in the same write; it is
// pending otherwise. validityDays <= 0 means no expiry.
func (m *Manager) GenerateSigningKey(
	ctx context.Context,
	id, purpose string,
	validityDays int,
	opts ...GenerateOption,
) (keysDomain.KeyMetadata, error) {
	return m.GenerateKey(ctx, id, keysDomain.KeyTypeSigning, purpose, validityDays, opts...)
}

// GenerateKey creates a key of any type. Master keys are 32 random bytes; encryption keys
// are derived with HKDF from a master key (WithParent, or the purpose's active master key).
func (m *Manager) GenerateKey(
	ctx context.Context,
	id string,
	keyType keysDomain.KeyType,
	purpose string,
	validityDays int,
	opts ...GenerateOption,
) (keysDomain.KeyMetadata, error) {
	o := generateOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[id]; exists {
		return keysDomain.KeyMetadata{}, fmt.Errorf("%w: %s", keysDomain.ErrKeyExists, id)
	}

	now := m.now().UTC()
	b := &keysDomain.KeyBundle{Metadata: keysDomain.KeyMetadata{
		KeyID:     id,
		KeyType:   keyType,
		Status:    keysDomain.StatusPending,
		Purpose:   purpose,
		CreatedAt: now,
		Tags:      o.tags,
	}}
	if validityDays > 0 {
		expires := now.Add(time.Duration(validityDays) * 24 * time.Hour)
		b.Metadata.ExpiresAt = &expires
	}
	if err := m.fillMaterial(ctx, b, o); err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	if err := b.Metadata.Validate(); err != nil {
		return keysDomain.KeyMetadata{}, err
	}

	updated := []*keysDomain.KeyBundle{b}
	if !o.pending {
		holder := m.slotHolderLocked(purpose, keyType)
		switch {
		case holder == nil:
			b.Metadata.Status = keysDomain.StatusActive
			b.Metadata.ActivatedAt = &now
		case holder.Metadata.ExpiredAt(now):
			// The slot is still held by an expired key: retire it in the same write.
			retired := holder.Clone()
			retired.Metadata.Status = keysDomain.StatusRetired
			retired.Metadata.RetiredAt = &now
			b.Metadata.Status = keysDomain.StatusActive
			b.Metadata.ActivatedAt = &now
			updated = append(updated, retired)
		}
	}

	if err := m.commitLocked(ctx, updated...); err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	m.order = append(m.order, id)
	if len(updated) > 1 {
		m.logger.Info("expired key retired",
			slog.String("key_id", updated[1].Metadata.KeyID),
			slog.String("successor_key_id", id),
		)
	}

	m.logger.Info("key generated",
		slog.String("key_id", id),
		slog.String("key_type", string(keyType)),
		slog.String("purpose", purpose),
		slog.String("algorithm", string(b.Metadata.Algorithm)),
		slog.String("status", string(b.Metadata.Status)),
	)
	return b.Metadata.Clone(), nil
}

func (m *Manager) fillMaterial(ctx context.Context, b *keysDomain.KeyBundle, o generateOptions) error {
	id := b.Metadata.KeyID
	switch b.Metadata.KeyType {
	case keysDomain.KeyTypeSigning:
		alg, err := keysDomain.ParseSigningAlgorithm(string(o.algorithm))
		if err != nil {
			return err
		}
		privatePEM, publicPEM, err := keysService.GenerateKeyPair(alg)
		if err != nil {
			return err
		}
		defer keysDomain.Zero(privatePEM)
		wrapped, err := m.wrapper.Wrap(ctx, privatePEM, []byte(id))
		if err != nil {
			return err
		}
		b.Metadata.Algorithm = alg
		b.PrivateKeyMaterial = wrapped
		b.PublicKeyMaterial = publicPEM

	case keysDomain.KeyTypeMaster:
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate master key: %w", err)
		}
		defer keysDomain.Zero(key)
		wrapped, err := m.wrapper.Wrap(ctx, key, []byte(id))
		if err != nil {
			return err
		}
		b.Metadata.Algorithm = keysDomain.Symmetric256
		b.SymmetricKeyMaterial = wrapped

	case keysDomain.KeyTypeEncryption:
		parentID := o.parentKeyID
		if parentID == "" {
			parent, found := m.activeLocked(b.Metadata.Purpose, keysDomain.KeyTypeMaster)
			if !found {
				return fmt.Errorf("%w: master key for purpose %s", keysDomain.ErrNoActiveKey, b.Metadata.Purpose)
			}
			parentID = parent.Metadata.KeyID
		}
		master, err := m.symmetricLocked(ctx, parentID)
		if err != nil {
			return err
		}
		defer keysDomain.Zero(master)
		derived, err := keysService.DeriveKey(master, b.Metadata.Purpose, id)
		if err != nil {
			return err
		}
		defer keysDomain.Zero(derived)
		wrapped, err := m.wrapper.Wrap(ctx, derived, []byte(id))
		if err != nil {
			return err
		}
		b.Metadata.Algorithm = keysDomain.Symmetric256
		b.Metadata.ParentKeyID = parentID
		b.SymmetricKeyMaterial = wrapped

	default:
		return fmt.Errorf("%w: unknown key type %q", keysDomain.ErrInvalidKey, b.Metadata.KeyType)
	}
	return nil
}

// slotHolderLocked returns the key with status active for the slot, expired or not.
func (m *Manager) slotHolderLocked(purpose string, keyType keysDomain.KeyType) *keysDomain.KeyBundle {
	for _, id := range m.order {
		b := m.keys[id]
		if b.Metadata.Purpose == purpose && b.Metadata.KeyType == keyType && b.Metadata.Status == keysDomain.StatusActive {
			return b
		}
	}
	return nil
}

// activeLocked returns the first active, unexpired key for the slot. When the only active
// key is expired it is returned with found=false.
func (m *Manager) activeLocked(purpose string, keyType keysDomain.KeyType) (*keysDomain.KeyBundle, bool) {
	now := m.now()
	var expired *keysDomain.KeyBundle
	for _, id := range m.order {
		b := m.keys[id]
		if b.Metadata.Purpose != purpose || b.Metadata.KeyType != keyType || b.Metadata.Status != keysDomain.StatusActive {
			continue
		}
		if !b.Metadata.ExpiredAt(now) {
			return b, true
		}
		if expired == nil {
			expired = b
		}
	}
	return expired, false
}

func (m *Manager) activeOrError(purpose string, keyType keysDomain.KeyType) (*keysDomain.KeyBundle, error) {
	b, found := m.activeLocked(purpose, keyType)
	if found {
		return b, nil
	}
	if b != nil {
		return nil, fmt.Errorf("%w: %s", keysDomain.ErrKeyExpired, b.Metadata.KeyID)
	}
	return nil, fmt.Errorf("%w: purpose %s", keysDomain.ErrNoActiveKey, purpose)
}

// ActiveKey returns the active, unexpired signing key for purpose.
func (m *Manager) ActiveKey(purpose string) (keysDomain.KeyMetadata, error) {
	return m.ActiveKeyOfType(purpose, keysDomain.KeyTypeSigning)
}

// ActiveKeyOfType returns the active, unexpired key for purpose and type.
func (m *Manager) ActiveKeyOfType(purpose string, keyType keysDomain.KeyType) (keysDomain.KeyMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.activeOrError(purpose, keyType)
	if err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	return b.Metadata.Clone(), nil
}

func (m *Manager) getLocked(id string) (*keysDomain.KeyBundle, error) {
	b, ok := m.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", keysDomain.ErrKeyNotFound, id)
	}
	return b, nil
}

// Get returns a key's metadata.
func (m *Manager) Get(id string) (keysDomain.KeyMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.getLocked(id)
	if err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	return b.Metadata.Clone(), nil
}

// List returns metadata of matching keys in creation order.
func (m *Manager) List(filter keysDomain.ListFilter) []keysDomain.KeyMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]keysDomain.KeyMetadata, 0, len(m.order))
	for _, id := range m.order {
		md := &m.keys[id].Metadata
		if filter.Matches(md) {
			out = append(out, md.Clone())
		}
	}
	return out
}

// commitLocked persists updated bundles as a single write and then publishes them.
func (m *Manager) commitLocked(ctx context.Context, updated ...*keysDomain.KeyBundle) error {
	if err := m.repo.Save(ctx, updated...); err != nil {
		return err
	}
	for _, b := range updated {
		m.keys[b.Metadata.KeyID] = b
	}
	return nil
}

func checkTransition(b *keysDomain.KeyBundle, next keysDomain.Status) error {
	if b.Metadata.Status == keysDomain.StatusRevoked {
		return fmt.Errorf("%w: %s", keysDomain.ErrKeyRevoked, b.Metadata.KeyID)
	}
	if !b.Metadata.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s is %s, cannot become %s",
			keysDomain.ErrInvalidTransition, b.Metadata.KeyID, b.Metadata.Status, next)
	}
	return nil
}

// Activate moves a pending key to active. The purpose must not have an active key of the
// same type; use Rotate to replace one.
func (m *Manager) Activate(ctx context.Context, id string) (keysDomain.KeyMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.getLocked(id)
	if err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	if err := checkTransition(b, keysDomain.StatusActive); err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	now := m.now().UTC()
	if b.Metadata.ExpiredAt(now) {
		return keysDomain.KeyMetadata{}, fmt.Errorf("%w: %s", keysDomain.ErrKeyExpired, id)
	}
	for _, other := range m.keys {
		if other.Metadata.Status == keysDomain.StatusActive &&
			other.Metadata.Purpose == b.Metadata.Purpose &&
			other.Metadata.KeyType == b.Metadata.KeyType {
			return keysDomain.KeyMetadata{}, fmt.Errorf("%w: %s", keysDomain.ErrActiveKeyExists, other.Metadata.KeyID)
		}
	}

	updated := b.Clone()
	updated.Metadata.Status = keysDomain.StatusActive
	updated.Metadata.ActivatedAt = &now
	if err := m.commitLocked(ctx, updated); err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	m.logger.Info("key activated", slog.String("key_id", id))
	return updated.Metadata.Clone(), nil
}

// Rotate retires oldID and activates newID in one persisted step. newID may name a pending
// key of the same purpose and type; when it does not exist a key is generated with the old
// key's algorithm, tags and validity period. On any failure nothing changes.
func (m *Manager) Rotate(ctx context.Context, oldID, newID string) (keysDomain.KeyMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.getLocked(oldID)
	if err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	if old.Metadata.Status != keysDomain.StatusActive {
		if err := checkTransition(old, keysDomain.StatusRetired); err != nil {
			return keysDomain.KeyMetadata{}, err
		}
	}
	if oldID == newID {
		return keysDomain.KeyMetadata{}, fmt.Errorf("%w: cannot rotate %s onto itself", keysDomain.ErrInvalidTransition, oldID)
	}

	now := m.now().UTC()
	var next *keysDomain.KeyBundle
	isNew := false
	if existing, ok := m.keys[newID]; ok {
		if err := checkTransition(existing, keysDomain.StatusActive); err != nil {
			return keysDomain.KeyMetadata{}, err
		}
		if existing.Metadata.Purpose != old.Metadata.Purpose || existing.Metadata.KeyType != old.Metadata.KeyType {
			return keysDomain.KeyMetadata{}, fmt.Errorf("%w: %s does not share purpose and type with %s",
				keysDomain.ErrInvalidTransition, newID, oldID)
		}
		if existing.Metadata.ExpiredAt(now) {
			return keysDomain.KeyMetadata{}, fmt.Errorf("%w: %s", keysDomain.ErrKeyExpired, newID)
		}
		next = existing.Clone()
	} else {
		next, err = m.successorLocked(ctx, old, newID, now)
		if err != nil {
			return keysDomain.KeyMetadata{}, err
		}
		isNew = true
	}

	retired := old.Clone()
	retired.Metadata.Status = keysDomain.StatusRetired
	retired.Metadata.RetiredAt = &now
	next.Metadata.Status = keysDomain.StatusActive
	next.Metadata.ActivatedAt = &now

	if err := m.commitLocked(ctx, retired, next); err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	if isNew {
		m.order = append(m.order, newID)
	}

	m.logger.Info("key rotated",
		slog.String("old_key_id", oldID),
		slog.String("new_key_id", newID),
		slog.String("purpose", old.Metadata.Purpose),
	)
	return next.Metadata.Clone(), nil
}

func (m *Manager) successorLocked(
	ctx context.Context,
	old *keysDomain.KeyBundle,
	newID string,
	now time.Time,
) (*keysDomain.KeyBundle, error) {
	b := &keysDomain.KeyBundle{Metadata: keysDomain.KeyMetadata{
		KeyID:     newID,
		KeyType:   old.Metadata.KeyType,
		Status:    keysDomain.StatusPending,
		Purpose:   old.Metadata.Purpose,
		CreatedAt: now,
		Tags:      maps.Clone(old.Metadata.Tags),
	}}
	if old.Metadata.ExpiresAt != nil {
		expires := now.Add(old.Metadata.ExpiresAt.Sub(old.Metadata.CreatedAt))
		b.Metadata.ExpiresAt = &expires
	}
	o := generateOptions{algorithm: old.Metadata.Algorithm, parentKeyID: old.Metadata.ParentKeyID}
	if err := m.fillMaterial(ctx, b, o); err != nil {
		return nil, err
	}
	if err := b.Metadata.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Retire moves an active key to retired. Its public material stays available for verification.
func (m *Manager) Retire(ctx context.Context, id string) (keysDomain.KeyMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.getLocked(id)
	if err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	if err := checkTransition(b, keysDomain.StatusRetired); err != nil {
		return keysDomain.KeyMetadata{}, err
	}

	now := m.now().UTC()
	updated := b.Clone()
	updated.Metadata.Status = keysDomain.StatusRetired
	updated.Metadata.RetiredAt = &now
	if err := m.commitLocked(ctx, updated); err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	m.logger.Info("key retired", slog.String("key_id", id))
	return updated.Metadata.Clone(), nil
}

// Revoke marks a key revoked and wipes its secret material. Revocation is terminal and
// takes effect immediately: signatures by a revoked key no longer verify.
func (m *Manager) Revoke(ctx context.Context, id string) (keysDomain.KeyMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.getLocked(id)
	if err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	if err := checkTransition(b, keysDomain.StatusRevoked); err != nil {
		return keysDomain.KeyMetadata{}, err
	}

	now := m.now().UTC()
	updated := b.Clone()
	updated.Metadata.Status = keysDomain.StatusRevoked
	updated.Metadata.RevokedAt = &now
	updated.PrivateKeyMaterial = nil
	updated.SymmetricKeyMaterial = nil
	if err := m.commitLocked(ctx, updated); err != nil {
		return keysDomain.KeyMetadata{}, err
	}
	m.logger.Warn("key revoked", slog.String("key_id", id), slog.String("purpose", b.Metadata.Purpose))
	return updated.Metadata.Clone(), nil
}

// PurgeRetired wipes the secret material of keys retired for longer than the retention
// window. Their metadata and public material are kept so old anchors still verify.
func (m *Manager) PurgeRetired(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var updated []*keysDomain.KeyBundle
	for _, id := range m.order {
		b := m.keys[id]
		if b.Metadata.Status != keysDomain.StatusRetired || b.Metadata.RetiredAt == nil || !b.HasSecretMaterial() {
			continue
		}
		if now.Before(b.Metadata.RetiredAt.Add(m.retention)) {
			continue
		}
		c := b.Clone()
		c.PrivateKeyMaterial = nil
		c.SymmetricKeyMaterial = nil
		c.Metadata.PurgedAt = &now
		updated = append(updated, c)
	}
	if len(updated) == 0 {
		return []string{}, nil
	}
	if err := m.commitLocked(ctx, updated...); err != nil {
		return nil, err
	}

	ids := make([]string, len(updated))
	for i, b := range updated {
		ids[i] = b.Metadata.KeyID
	}
	m.logger.Info("retired key material purged", slog.Int("count", len(ids)))
	return ids, nil
}

// Sign signs data with the active signing key of purpose and returns the key id used.
func (m *Manager) Sign(ctx context.Context, purpose string, data []byte) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.activeOrError(purpose, keysDomain.KeyTypeSigning)
	if err != nil {
		return nil, "", err
	}
	sig, err := m.signLocked(ctx, b, data)
	if err != nil {
		return nil, "", err
	}
	return sig, b.Metadata.KeyID, nil
}

// SignWithKey signs data with a specific key, which must be active and unexpired.
func (m *Manager) SignWithKey(ctx context.Context, id string, data []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, err := m.getLocked(id)
	if err != nil {
		return nil, err
	}
	switch {
	case b.Metadata.Status == keysDomain.StatusRevoked:
		return nil, fmt.Errorf("%w: %s", keysDomain.ErrKeyRevoked, id)
	case b.Metadata.Status != keysDomain.StatusActive:
		return nil, fmt.Errorf("%w: %s is %s", keysDomain.ErrKeyNotActive, id, b.Metadata.Status)
	case b.Metadata.ExpiredAt(m.now()):
		return nil, fmt.Errorf("%w: %s", keysDomain.ErrKeyExpired, id)
	}
	return m.signLocked(ctx, b, data)
}

func (m *Manager) signLocked(ctx context.Context, b *keysDomain.KeyBundle, data []byte) ([]byte, error) {
	if b.Metadata.KeyType != keysDomain.KeyTypeSigning {
		return nil, fmt.Errorf("%w: %s is not a signing key", keysDomain.ErrInvalidKey, b.Metadata.KeyID)
	}
	if len(b.PrivateKeyMaterial) == 0 {
		return nil, fmt.Errorf("%w: %s", keysDomain.ErrKeyMaterialPurged, b.Metadata.KeyID)
	}
	privatePEM, err := m.wrapper.Unwrap(ctx, b.PrivateKeyMaterial, []byte(b.Metadata.KeyID))
	if err != nil {
		return nil, err
	}
	defer keysDomain.Zero(privatePEM)

	signer, err := keysService.NewSigner(privatePEM)
	if err != nil {
		return nil, err
	}
	return signer.Sign(data)
}

// Verify checks sig with the public material of key id. Unknown and revoked keys yield false;
// retired and purged keys still verify.
func (m *Manager) Verify(id string, data, sig []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.keys[id]
	if !ok || b.Metadata.Status == keysDomain.StatusRevoked || len(b.PublicKeyMaterial) == 0 {
		return false
	}
	return keysService.VerifyWithPublicKey(b.PublicKeyMaterial, data, sig)
}

// SymmetricKey returns the unwrapped material of a master or encryption key. The caller
// should zero it after use.
func (m *Manager) SymmetricKey(ctx context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.symmetricLocked(ctx, id)
}

func (m *Manager) symmetricLocked(ctx context.Context, id string) ([]byte, error) {
	b, err := m.getLocked(id)
	if err != nil {
		return nil, err
	}
	if b.Metadata.Status == keysDomain.StatusRevoked {
		return nil, fmt.Errorf("%w: %s", keysDomain.ErrKeyRevoked, id)
	}
	if b.Metadata.KeyType == keysDomain.KeyTypeSigning {
		return nil, fmt.Errorf("%w: %s is a signing key", keysDomain.ErrInvalidKey, id)
	}
	if len(b.SymmetricKeyMaterial) == 0 {
		return nil, fmt.Errorf("%w: %s", keysDomain.ErrKeyMaterialPurged, id)
	}
	return m.wrapper.Unwrap(ctx, b.SymmetricKeyMaterial, []byte(id))
}

// PublicKeys returns the exportable view of every non-revoked signing key, sorted by id.
func (m *Manager) PublicKeys() []keysDomain.PublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]keysDomain.PublicKey, 0)
	for _, b := range m.keys {
		if b.Metadata.KeyType != keysDomain.KeyTypeSigning ||
			b.Metadata.Status == keysDomain.StatusRevoked ||
			len(b.PublicKeyMaterial) == 0 {
			continue
		}
		md := b.Metadata.Clone()
		out = append(out, keysDomain.PublicKey{
			KeyID:        md.KeyID,
			Algorithm:    md.Algorithm,
			Status:       md.Status,
			Purpose:      md.Purpose,
			PublicKeyPEM: string(b.PublicKeyMaterial),
			CreatedAt:    md.CreatedAt,
			ExpiresAt:    md.ExpiresAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KeyID < out[j].KeyID })
	return out
}

// ExportPublicKeys maps key id to PEM public key for every non-revoked signing key.
// Private material is never included.
func (m *Manager) ExportPublicKeys() map[string]string {
	keys := m.PublicKeys()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k.KeyID] = k.PublicKeyPEM
	}
	return out
}

// Close releases the key wrapper.
func (m *Manager) Close() error {
	return m.wrapper.Close()
}
