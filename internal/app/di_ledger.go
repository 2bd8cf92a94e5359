package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"gocloud.dev/blob"

	anchorRepository "github.com/allisson/provenance/internal/anchor/repository"
	anchorUseCase "github.com/allisson/provenance/internal/anchor/usecase"
	"github.com/allisson/provenance/internal/blobstore"
	"github.com/allisson/provenance/internal/canonical"
	"github.com/allisson/provenance/internal/config"
	keysRepository "github.com/allisson/provenance/internal/keys/repository"
	keysService "github.com/allisson/provenance/internal/keys/service"
	keysUseCase "github.com/allisson/provenance/internal/keys/usecase"
	ledgerUseCase "github.com/allisson/provenance/internal/ledger/usecase"
)

// externalAnchorPrefix is the key prefix of anchors published to ANCHOR_BUCKET_URL.
const externalAnchorPrefix = "anchors"

type ledgerComponents struct {
	ledger       *ledgerUseCase.Ledger
	keyWrapper   keysService.KeyWrapper
	keyManager   *keysUseCase.Manager
	anchorBucket *blob.Bucket
	anchorer     *anchorUseCase.Anchorer

	ledgerInit       sync.Once
	keyWrapperInit   sync.Once
	keyManagerInit   sync.Once
	anchorBucketInit sync.Once
	anchorerInit     sync.Once
}

// Ledger returns the Merkle ledger, replayed from the store.
func (c *Container) Ledger() (*ledgerUseCase.Ledger, error) {
	var err error
	c.ledgerInit.Do(func() {
		c.ledger, err = c.initLedger()
		if err != nil {
			c.initErrors["ledger"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["ledger"]; exists {
		return nil, storedErr
	}
	return c.ledger, nil
}

// KeyWrapper returns the wrapper protecting private key material at rest.
func (c *Container) KeyWrapper() (keysService.KeyWrapper, error) {
	var err error
	c.keyWrapperInit.Do(func() {
		c.keyWrapper, err = c.initKeyWrapper()
		if err != nil {
			c.initErrors["keyWrapper"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyWrapper"]; exists {
		return nil, storedErr
	}
	return c.keyWrapper, nil
}

// KeyManager returns the key manager loaded from KEYS_DIR.
func (c *Container) KeyManager() (*keysUseCase.Manager, error) {
	var err error
	c.keyManagerInit.Do(func() {
		c.keyManager, err = c.initKeyManager()
		if err != nil {
			c.initErrors["keyManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyManager"]; exists {
		return nil, storedErr
	}
	return c.keyManager, nil
}

// AnchorBucket returns the bucket receiving external anchors, or nil when none is configured.
func (c *Container) AnchorBucket() (*blob.Bucket, error) {
	var err error
	c.anchorBucketInit.Do(func() {
		c.anchorBucket, err = c.initBucket(c.config.AnchorBucketURL)
		if err != nil {
			c.initErrors["anchorBucket"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["anchorBucket"]; exists {
		return nil, storedErr
	}
	return c.anchorBucket, nil
}

// Anchorer returns the anchorer signing ledger roots.
func (c *Container) Anchorer() (*anchorUseCase.Anchorer, error) {
	var err error
	c.anchorerInit.Do(func() {
		c.anchorer, err = c.initAnchorer()
		if err != nil {
			c.initErrors["anchorer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["anchorer"]; exists {
		return nil, storedErr
	}
	return c.anchorer, nil
}

func (c *Container) closeLedgerComponents() []error {
	var errs []error

	if c.ledger != nil {
		c.ledger.Close()
	}

	// The manager owns the wrapper once it exists.
	if c.keyManager != nil {
		if err := c.keyManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("key manager close: %w", err))
		}
	} else if c.keyWrapper != nil {
		if err := c.keyWrapper.Close(); err != nil {
			errs = append(errs, fmt.Errorf("key wrapper close: %w", err))
		}
	}

	if c.anchorBucket != nil {
		if err := c.anchorBucket.Close(); err != nil {
			errs = append(errs, fmt.Errorf("anchor bucket close: %w", err))
		}
	}

	return errs
}

// initLedger replays the configured ledger with a ristretto proof cache.
func (c *Container) initLedger() (*ledgerUseCase.Ledger, error) {
	store, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for ledger: %w", err)
	}

	algorithm, err := canonical.ParseAlgorithm(c.config.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	cache, err := ledgerUseCase.NewProofCache(c.config.ProofCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof cache: %w", err)
	}

	ledger, err := ledgerUseCase.New(context.Background(), ledgerUseCase.Config{
		LedgerID:  c.config.LedgerID,
		Algorithm: algorithm,
		Store:     store,
		Cache:     cache,
		Logger:    c.Logger(),
	})
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("failed to replay ledger: %w", err)
	}
	return ledger, nil
}

// initKeyWrapper selects the wrapper from KEY_WRAP_PROVIDER.
func (c *Container) initKeyWrapper() (keysService.KeyWrapper, error) {
	switch c.config.KeyWrapProvider {
	case config.KeyWrapNone, "":
		return keysService.NewNoopWrapper(), nil
	case config.KeyWrapAEAD:
		key, err := base64.StdEncoding.DecodeString(c.config.KeyWrapKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode key wrap key: %w", err)
		}
		wrapper, err := keysService.NewAEADWrapper(key, keysService.AESGCM)
		if err != nil {
			return nil, fmt.Errorf("failed to create aead key wrapper: %w", err)
		}
		return wrapper, nil
	case config.KeyWrapKMS:
		wrapper, err := keysService.OpenKMSWrapper(context.Background(), c.config.KMSKeyURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open kms keeper: %w", err)
		}
		return wrapper, nil
	default:
		return nil, fmt.Errorf("unsupported key wrap provider: %s", c.config.KeyWrapProvider)
	}
}

// initKeyManager loads the keyring from KEYS_DIR.
func (c *Container) initKeyManager() (*keysUseCase.Manager, error) {
	wrapper, err := c.KeyWrapper()
	if err != nil {
		return nil, fmt.Errorf("failed to get key wrapper for key manager: %w", err)
	}

	repo, err := keysRepository.NewFileRepository(c.config.KeysDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open key repository: %w", err)
	}

	manager, err := keysUseCase.NewManager(context.Background(), keysUseCase.Config{
		Repository: repo,
		Wrapper:    wrapper,
		Retention:  c.config.KeyRetention,
		Logger:     c.Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}
	return manager, nil
}

// initBucket opens url, or returns nil when it is empty.
func (c *Container) initBucket(url string) (*blob.Bucket, error) {
	if url == "" {
		return nil, nil
	}
	return blobstore.Open(context.Background(), url)
}

// initAnchorer creates the anchorer. Anchors of policies requiring external timestamping
// are published to ANCHOR_BUCKET_URL when configured.
func (c *Container) initAnchorer() (*anchorUseCase.Anchorer, error) {
	store, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for anchorer: %w", err)
	}
	ledger, err := c.Ledger()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger for anchorer: %w", err)
	}
	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for anchorer: %w", err)
	}
	bucket, err := c.AnchorBucket()
	if err != nil {
		return nil, fmt.Errorf("failed to get anchor bucket: %w", err)
	}

	cfg := anchorUseCase.Config{
		LedgerID:  ledger.ID(),
		Algorithm: ledger.Algorithm(),
		Store:     store,
		Signer:    keyManager,
		Purpose:   c.config.AnchorKeyPurpose,
		Logger:    c.Logger(),
	}
	if bucket != nil {
		cfg.External = anchorRepository.NewBlobAnchorer(bucket, c.config.AnchorBucketURL, externalAnchorPrefix, nil)
	}

	anchorer, err := anchorUseCase.NewAnchorer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create anchorer: %w", err)
	}
	return anchorer, nil
}
