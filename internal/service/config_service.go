package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/repository"
)

// ConfigService manages supplier account settings
type ConfigService struct {
	repos   *repository.Repositories
	clients ClientProvider
	logger  *zap.Logger
}

// NewConfigService creates a new config service
func NewConfigService(repos *repository.Repositories, clients ClientProvider, logger *zap.Logger) *ConfigService {
	return &ConfigService{
		repos:   repos,
		clients: clients,
		logger:  logger,
	}
}

// CreateConfig validates and stores a new supplier config
func (s *ConfigService) CreateConfig(ctx context.Context, cfg *domain.SupplierConfig) error {
	if cfg.SyncIntervalHours == 0 {
		cfg.SyncIntervalHours = 24
	}
	if cfg.Markup.Type == "" {
		cfg.Markup = domain.DefaultMarkupRule()
	}
	if cfg.ConnectionStatus == "" {
		cfg.ConnectionStatus = domain.ConnectionStatusNotTested
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid supplier config: %w", err)
	}
	return s.repos.SupplierConfig.Create(ctx, cfg)
}

// TestConnection checks the account's credential against the supplier and
// stores the outcome on the config. The returned error is the supplier
// failure, if any.
func (s *ConfigService) TestConnection(ctx context.Context, configID uuid.UUID) (*domain.SupplierConfig, error) {
	cfg, err := s.repos.SupplierConfig.GetByID(ctx, configID)
	if err != nil {
		return nil, err
	}

	status, message := domain.ConnectionStatusConnected, "Connection successful"
	client, cerr := s.clients.Client(ctx, configID)
	if cerr == nil {
		_, cerr = client.ListCategories(ctx)
	}
	if cerr != nil {
		status, message = domain.ConnectionStatusError, cerr.Error()
	}

	if err := s.repos.SupplierConfig.UpdateConnectionStatus(ctx, configID, status, message); err != nil {
		return nil, err
	}
	cfg.ConnectionStatus = status
	cfg.ConnectionMessage = message

	s.logger.Info("Supplier connection tested",
		zap.String("config_id", configID.String()),
		zap.String("status", string(status)),
	)
	return cfg, cerr
}

// UpdateCredential replaces the account credential. Clients and sessions
// built from the previous credential are dropped.
func (s *ConfigService) UpdateCredential(ctx context.Context, configID uuid.UUID, cred domain.Credential) (*domain.SupplierConfig, error) {
	if !cred.IsComplete() {
		return nil, fmt.Errorf("invalid supplier credential: email and api key are required")
	}
	if err := s.repos.SupplierConfig.UpdateCredential(ctx, configID, cred); err != nil {
		return nil, err
	}

	if cache, ok := s.clients.(clientCache); ok {
		if err := cache.Forget(ctx, configID); err != nil {
			s.logger.Warn("Failed to drop cached supplier session",
				zap.String("config_id", configID.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Supplier credential updated", zap.String("config_id", configID.String()))
	return s.repos.SupplierConfig.GetByID(ctx, configID)
}
