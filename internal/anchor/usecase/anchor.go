// Package usecase creates, persists and looks up signed anchors.
package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	"github.com/allisson/provenance/internal/canonical"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

// Config configures an Anchorer.
type Config struct {
	LedgerID  string
	Algorithm canonical.Algorithm
	Store     wormDomain.Store
	Signer    Signer
	// Purpose selects the signing key.
	Purpose string
	// External is consulted for policies that require external timestamping.
	External ExternalAnchorer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Anchorer signs ledger roots. Anchoring is idempotent: the anchor of a (root, policy)
// pair is created once and returned as stored afterwards.
type Anchorer struct {
	ledgerID  string
	algorithm canonical.Algorithm
	store     wormDomain.Store
	signer    Signer
	purpose   string
	external  ExternalAnchorer
	logger    *slog.Logger
	now       func() time.Time
	group     singleflight.Group
}

// NewAnchorer creates an Anchorer.
func NewAnchorer(cfg Config) (*Anchorer, error) {
	if cfg.Store == nil || cfg.Signer == nil {
		return nil, errors.New("anchor store and signer are required")
	}
	if cfg.LedgerID == "" || cfg.Purpose == "" {
		return nil, errors.New("ledger id and signing purpose are required")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = canonical.DefaultAlgorithm
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Anchorer{
		ledgerID:  cfg.LedgerID,
		algorithm: cfg.Algorithm,
		store:     cfg.Store,
		signer:    cfg.Signer,
		purpose:   cfg.Purpose,
		external:  cfg.External,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Anchor returns the anchor of root under policy, creating and persisting it on first use.
// leafCount is recorded for auditors and is not signed.
func (a *Anchorer) Anchor(
	ctx context.Context,
	root string,
	leafCount int,
	policy *policyDomain.Policy,
) (*anchorDomain.AnchorRecord, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: policy is required", anchorDomain.ErrInvalidAnchor)
	}
	id := anchorDomain.RecordID(a.ledgerID, root, policy.PolicyID)

	v, err, shared := a.group.Do(id, func() (interface{}, error) {
		existing, err := a.Get(ctx, root, policy.PolicyID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, anchorDomain.ErrAnchorNotFound) {
			return nil, err
		}
		return a.create(ctx, root, leafCount, policy)
	})
	if err != nil {
		return nil, err
	}
	record := v.(*anchorDomain.AnchorRecord)
	if shared {
		return record.Clone(), nil
	}
	return record, nil
}

func (a *Anchorer) create(
	ctx context.Context,
	root string,
	leafCount int,
	policy *policyDomain.Policy,
) (*anchorDomain.AnchorRecord, error) {
	policyHash, err := policy.Fingerprint()
	if err != nil {
		return nil, err
	}
	record := &anchorDomain.AnchorRecord{
		Root:          root,
		PolicyID:      policy.PolicyID,
		SchemaVersion: policy.SchemaVersion,
		Timestamp:     a.now().UTC().Truncate(time.Microsecond),
		DomainLabels:  slices.Sorted(slices.Values(policy.DomainLabels)),
		LedgerID:      a.ledgerID,
		HashAlgorithm: a.algorithm,
		LeafCount:     leafCount,
		PolicyHash:    policyHash,
	}
	if record.DomainLabels == nil {
		record.DomainLabels = []string{}
	}

	payload, err := record.SigningPayload()
	if err != nil {
		return nil, err
	}
	sig, keyID, err := a.signer.Sign(ctx, a.purpose, payload)
	if err != nil {
		return nil, err
	}
	record.Signature = base64.StdEncoding.EncodeToString(sig)
	record.SigningKeyID = keyID

	if policy.ExternalTimestamping {
		if a.external == nil {
			return nil, fmt.Errorf("%w: policy %s", anchorDomain.ErrExternalAnchorUnavailable, policy.PolicyID)
		}
		receipt, err := a.external.Anchor(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", anchorDomain.ErrExternalAnchorFailed, err)
		}
		record.ExternalAnchor = receipt
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	wormRecord, err := wormDomain.NewRecord(record.ID(), wormDomain.RecordTypeAnchor, record, a.now())
	if err != nil {
		return nil, err
	}
	if _, err := a.store.Append(ctx, wormRecord); err != nil {
		if errors.Is(err, wormDomain.ErrDuplicateRecord) {
			// Another writer anchored the same root first; theirs is authoritative.
			return a.Get(ctx, root, policy.PolicyID)
		}
		return nil, err
	}

	a.logger.Info("root anchored",
		slog.String("ledger_id", a.ledgerID),
		slog.String("root", root),
		slog.String("policy_id", policy.PolicyID),
		slog.String("signing_key_id", keyID),
	)
	return record, nil
}

func decodeAnchor(r *wormDomain.Record) (*anchorDomain.AnchorRecord, error) {
	var record anchorDomain.AnchorRecord
	if err := r.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", wormDomain.ErrStorageIO, r.ID, err)
	}
	return &record, nil
}

// Get returns the stored anchor of root under policyID.
func (a *Anchorer) Get(ctx context.Context, root, policyID string) (*anchorDomain.AnchorRecord, error) {
	id := anchorDomain.RecordID(a.ledgerID, root, policyID)
	r, err := a.store.Get(ctx, id)
	if errors.Is(err, wormDomain.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", anchorDomain.ErrAnchorNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeAnchor(r)
}

// List returns every anchor of the ledger in commit order.
func (a *Anchorer) List(ctx context.Context) ([]*anchorDomain.AnchorRecord, error) {
	records, err := a.store.List(ctx, wormDomain.ListFilter{
		RecordType: wormDomain.RecordTypeAnchor,
		IDPrefix:   anchorDomain.RecordPrefix(a.ledgerID),
	})
	if err != nil {
		return nil, err
	}
	out := make([]*anchorDomain.AnchorRecord, 0, len(records))
	for _, r := range records {
		record, err := decodeAnchor(r)
		if err != nil {
			return nil, err
		}
		// Ledger ids may share a prefix, such as "main" and "main:shadow".
		if record.LedgerID != a.ledgerID {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

// Latest returns the most recently committed anchor of the ledger.
func (a *Anchorer) Latest(ctx context.Context) (*anchorDomain.AnchorRecord, error) {
	anchors, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("%w: ledger %s has no anchors", anchorDomain.ErrAnchorNotFound, a.ledgerID)
	}
	return anchors[len(anchors)-1], nil
}

// Verify checks the anchor signature with the key manager. Unknown or revoked keys and
// malformed signatures yield false.
func (a *Anchorer) Verify(record *anchorDomain.AnchorRecord) bool {
	payload, err := record.SigningPayload()
	if err != nil {
		return false
	}
	sig, err := record.SignatureBytes()
	if err != nil {
		return false
	}
	return a.signer.Verify(record.SigningKeyID, payload, sig)
}
