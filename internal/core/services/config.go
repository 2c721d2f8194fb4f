package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.ConfigService = (*ConfigService)(nil)

// ConfigService manages per-table sync configuration
type ConfigService struct {
	store  driven.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewConfigService creates a new config service.
func NewConfigService(store driven.Store, logger *slog.Logger) *ConfigService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Get retrieves the config for a table.
func (s *ConfigService) Get(ctx context.Context, tableID string) (*domain.SyncConfig, error) {
	if strings.TrimSpace(tableID) == "" {
		return nil, fmt.Errorf("%w: tableId is required", domain.ErrInvalidInput)
	}
	var cfg *domain.SyncConfig
	err := withSession(ctx, s.store, func(sess driven.Session) error {
		var err error
		cfg, err = sess.Configs().Get(ctx, tableID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sync config %s: %w", tableID, err)
	}
	return cfg, nil
}

// List retrieves every config, enabled or not.
func (s *ConfigService) List(ctx context.Context) ([]*domain.SyncConfig, error) {
	var configs []*domain.SyncConfig
	err := withSession(ctx, s.store, func(sess driven.Session) error {
		var err error
		configs, err = sess.Configs().List(ctx, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []*domain.SyncConfig{}
	}
	return configs, nil
}

// Save validates and stores cfg, including its sync frequency.
func (s *ConfigService) Save(ctx context.Context, cfg *domain.SyncConfig) (*domain.SyncConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: sync config is required", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := NextRun(cfg.SyncFrequency, s.now()); err != nil {
		return nil, err
	}

	saved := *cfg
	saved.UpdatedAt = s.now().UTC()
	err := withSession(ctx, s.store, func(sess driven.Session) error {
		return sess.Configs().Save(ctx, &saved)
	})
	if err != nil {
		return nil, fmt.Errorf("save sync config %s: %w", cfg.TableID, err)
	}

	s.logger.Info("sync config saved",
		"table_id", saved.TableID,
		"enabled", saved.Enabled,
		"frequency", saved.SyncFrequency,
	)
	return &saved, nil
}
