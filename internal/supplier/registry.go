package supplier

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/config"
	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/metrics"
	"github.com/jafarshop/dropsync/pkg/errors"
)

// ConfigSource loads supplier account settings
type ConfigSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SupplierConfig, error)
}

type registryEntry struct {
	client     *Client
	credential domain.Credential
}

// Registry hands out one Client per supplier account so that each account
// keeps a single session and rate limiter. A client is rebuilt when the
// account's credential changes.
type Registry struct {
	cfg     config.SupplierConfig
	configs ConfigSource
	store   SessionStore
	logger  *zap.Logger
	metrics metrics.Recorder

	mu      sync.Mutex
	clients map[uuid.UUID]*registryEntry
}

// NewRegistry creates a registry. store may be nil.
func NewRegistry(cfg config.SupplierConfig, configs ConfigSource, store SessionStore, logger *zap.Logger, rec metrics.Recorder) *Registry {
	return &Registry{
		cfg:     cfg,
		configs: configs,
		store:   store,
		logger:  logger,
		metrics: rec,
		clients: make(map[uuid.UUID]*registryEntry),
	}
}

// SessionKey is the shared-store key for an account's session
func SessionKey(configID uuid.UUID) string {
	return "supplier:session:" + configID.String()
}

// Client returns the client for configID
func (r *Registry) Client(ctx context.Context, configID uuid.UUID) (*Client, error) {
	conf, err := r.configs.GetByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	if !conf.Credential.IsComplete() {
		return nil, &errors.AuthError{Reason: "credentials not configured for " + conf.Name}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.clients[configID]; ok && entry.credential == conf.Credential {
		return entry.client, nil
	}

	client := NewClient(r.cfg, conf.Credential, r.store, SessionKey(configID),
		r.logger.With(zap.String("supplier_config", conf.Name)), r.metrics)
	r.clients[configID] = &registryEntry{client: client, credential: conf.Credential}
	return client, nil
}

// Forget drops the cached client and the stored session of configID so the
// next call authenticates with the current credential
func (r *Registry) Forget(ctx context.Context, configID uuid.UUID) error {
	r.mu.Lock()
	delete(r.clients, configID)
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	return r.store.Delete(ctx, SessionKey(configID))
}
