package app

import (
	"context"
	"fmt"
	"sync"

	capsuleRepository "github.com/allisson/provenance/internal/capsule/repository"
	evidenceHTTP "github.com/allisson/provenance/internal/evidence/http"
	evidenceUseCase "github.com/allisson/provenance/internal/evidence/usecase"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
	policyRepository "github.com/allisson/provenance/internal/policy/repository"
	policyService "github.com/allisson/provenance/internal/policy/service"
)

// capsulePrefix is the key prefix of capsules published to CAPSULE_BUCKET_URL.
const capsulePrefix = "capsules"

// PolicyRepository resolves, lists and seals policies.
type PolicyRepository interface {
	evidenceUseCase.PolicyRepository
	List(ctx context.Context) ([]*policyDomain.Policy, error)
}

type evidenceComponents struct {
	policyRepository PolicyRepository
	policyFiles      *policyRepository.FileRepository
	policyWatcher    *policyRepository.Watcher
	riskEngine       *policyService.Engine
	capsulePublisher *capsuleRepository.BlobPublisher
	evidenceUseCase  evidenceUseCase.EvidenceUseCase
	evidenceHandler  *evidenceHTTP.EvidenceHandler

	policyRepositoryInit sync.Once
	policyWatcherInit    sync.Once
	riskEngineInit       sync.Once
	capsulePublisherInit sync.Once
	evidenceUseCaseInit  sync.Once
	evidenceHandlerInit  sync.Once
}

// PolicyRepository returns the policies loaded from POLICY_DIR, or the built-in default
// policy when no directory is configured.
func (c *Container) PolicyRepository() (PolicyRepository, error) {
	var err error
	c.policyRepositoryInit.Do(func() {
		c.policyRepository, err = c.initPolicyRepository()
		if err != nil {
			c.initErrors["policyRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["policyRepository"]; exists {
		return nil, storedErr
	}
	return c.policyRepository, nil
}

// PolicyWatcher returns the hot-reload watcher of POLICY_DIR. It is nil unless POLICY_WATCH
// is set and a policy directory is configured.
func (c *Container) PolicyWatcher() (*policyRepository.Watcher, error) {
	var err error
	c.policyWatcherInit.Do(func() {
		c.policyWatcher, err = c.initPolicyWatcher()
		if err != nil {
			c.initErrors["policyWatcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["policyWatcher"]; exists {
		return nil, storedErr
	}
	return c.policyWatcher, nil
}

// RiskEngine returns the policy and risk engine with the default rules.
func (c *Container) RiskEngine() *policyService.Engine {
	c.riskEngineInit.Do(func() {
		c.riskEngine = policyService.NewDefaultEngine(c.config.TimestampMaxSkew)
	})
	return c.riskEngine
}

// CapsulePublisher returns the capsule publisher, or nil when CAPSULE_BUCKET_URL is empty.
func (c *Container) CapsulePublisher() (*capsuleRepository.BlobPublisher, error) {
	var err error
	c.capsulePublisherInit.Do(func() {
		c.capsulePublisher, err = c.initCapsulePublisher()
		if err != nil {
			c.initErrors["capsulePublisher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["capsulePublisher"]; exists {
		return nil, storedErr
	}
	return c.capsulePublisher, nil
}

// EvidenceUseCase returns the evidence use case wrapped with business metrics.
func (c *Container) EvidenceUseCase() (evidenceUseCase.EvidenceUseCase, error) {
	var err error
	c.evidenceUseCaseInit.Do(func() {
		c.evidenceUseCase, err = c.initEvidenceUseCase()
		if err != nil {
			c.initErrors["evidenceUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["evidenceUseCase"]; exists {
		return nil, storedErr
	}
	return c.evidenceUseCase, nil
}

// EvidenceHandler returns the HTTP handler of the evidence API.
func (c *Container) EvidenceHandler() (*evidenceHTTP.EvidenceHandler, error) {
	var err error
	c.evidenceHandlerInit.Do(func() {
		c.evidenceHandler, err = c.initEvidenceHandler()
		if err != nil {
			c.initErrors["evidenceHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["evidenceHandler"]; exists {
		return nil, storedErr
	}
	return c.evidenceHandler, nil
}

func (c *Container) closeEvidenceComponents() []error {
	var errs []error

	if c.policyWatcher != nil {
		if err := c.policyWatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("policy watcher close: %w", err))
		}
	}

	if c.capsulePublisher != nil {
		if err := c.capsulePublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("capsule publisher close: %w", err))
		}
	}

	return errs
}

// initPolicyRepository loads POLICY_DIR. The fallback default policy hashes with the
// ledger algorithm so it can always anchor.
func (c *Container) initPolicyRepository() (PolicyRepository, error) {
	ledger, err := c.Ledger()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger for policy repository: %w", err)
	}

	fallback := policyDomain.DefaultPolicy(c.config.DefaultPolicyID)
	fallback.HashAlgorithm = ledger.Algorithm()

	if c.config.PolicyDir == "" {
		repo, err := policyRepository.NewMemoryRepository(fallback)
		if err != nil {
			return nil, fmt.Errorf("failed to create policy repository: %w", err)
		}
		return repo, nil
	}

	repo, err := policyRepository.NewFileRepository(context.Background(), c.config.PolicyDir, fallback, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	c.policyFiles = repo
	return repo, nil
}

// initPolicyWatcher watches POLICY_DIR when hot reload is enabled.
func (c *Container) initPolicyWatcher() (*policyRepository.Watcher, error) {
	if !c.config.PolicyWatch || c.config.PolicyDir == "" {
		return nil, nil
	}
	if _, err := c.PolicyRepository(); err != nil {
		return nil, err
	}

	watcher, err := policyRepository.NewWatcher(
		c.policyFiles.Dir(),
		c.policyFiles,
		policyRepository.DefaultDebounce,
		c.Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to watch policy directory: %w", err)
	}
	return watcher, nil
}

// initCapsulePublisher opens CAPSULE_BUCKET_URL.
func (c *Container) initCapsulePublisher() (*capsuleRepository.BlobPublisher, error) {
	bucket, err := c.initBucket(c.config.CapsuleBucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open capsule bucket: %w", err)
	}
	if bucket == nil {
		return nil, nil
	}
	return capsuleRepository.NewBlobPublisher(bucket, capsulePrefix), nil
}

// initEvidenceUseCase assembles the admission pipeline and wraps it with metrics.
func (c *Container) initEvidenceUseCase() (evidenceUseCase.EvidenceUseCase, error) {
	store, err := c.Store()
	if err != nil {
		return nil, fmt.Errorf("failed to get store for evidence use case: %w", err)
	}
	ledger, err := c.Ledger()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger for evidence use case: %w", err)
	}
	policies, err := c.PolicyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get policy repository for evidence use case: %w", err)
	}
	anchorer, err := c.Anchorer()
	if err != nil {
		return nil, fmt.Errorf("failed to get anchorer for evidence use case: %w", err)
	}
	publisher, err := c.CapsulePublisher()
	if err != nil {
		return nil, fmt.Errorf("failed to get capsule publisher for evidence use case: %w", err)
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for evidence use case: %w", err)
	}

	cfg := evidenceUseCase.Config{
		Ledger:           ledger,
		Store:            store,
		Policies:         policies,
		Engine:           c.RiskEngine(),
		Anchorer:         anchorer,
		DefaultPolicyID:  c.config.DefaultPolicyID,
		AutoAnchor:       c.config.AutoAnchor,
		BatchConcurrency: c.config.BatchConcurrency,
		Logger:           c.Logger(),
	}
	if publisher != nil {
		cfg.Publisher = publisher
	}

	useCase, err := evidenceUseCase.NewEvidenceUseCase(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence use case: %w", err)
	}

	return evidenceUseCase.NewEvidenceUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initEvidenceHandler creates the evidence HTTP handler.
func (c *Container) initEvidenceHandler() (*evidenceHTTP.EvidenceHandler, error) {
	useCase, err := c.EvidenceUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence use case for handler: %w", err)
	}
	ledger, err := c.Ledger()
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger for handler: %w", err)
	}
	anchorer, err := c.Anchorer()
	if err != nil {
		return nil, fmt.Errorf("failed to get anchorer for handler: %w", err)
	}
	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get key manager for handler: %w", err)
	}

	return evidenceHTTP.NewEvidenceHandler(useCase, ledger, anchorer, keyManager, c.Logger()), nil
}
