package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SyncConfigStore = (*SyncConfigStore)(nil)

const configColumns = `table_id, table_name, enabled, sync_frequency, batch_size, max_records, options, updated_at`

// SyncConfigStore implements driven.SyncConfigStore using PostgreSQL
type SyncConfigStore struct {
	q querier
}

// NewSyncConfigStore creates a SyncConfigStore on the shared pool
func NewSyncConfigStore(db *DB) *SyncConfigStore {
	return &SyncConfigStore{q: db.DB}
}

// Get retrieves the config for a table
func (s *SyncConfigStore) Get(ctx context.Context, tableID string) (*domain.SyncConfig, error) {
	query := `SELECT ` + configColumns + ` FROM sync_configs WHERE table_id = $1`

	cfg, err := scanConfig(s.q.QueryRowContext(ctx, query, tableID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get sync config", err)
	}
	return cfg, nil
}

// List retrieves configs ordered by table ID
func (s *SyncConfigStore) List(ctx context.Context, enabledOnly bool) ([]*domain.SyncConfig, error) {
	query := `SELECT ` + configColumns + ` FROM sync_configs`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY table_id`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, storeError("list sync configs", err)
	}
	defer rows.Close()

	var configs []*domain.SyncConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, storeError("scan sync config", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list sync configs", err)
	}
	return configs, nil
}

// Save creates or replaces the config for a table
func (s *SyncConfigStore) Save(ctx context.Context, cfg *domain.SyncConfig) error {
	options, err := json.Marshal(cfg.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}

	query := `
		INSERT INTO sync_configs (` + configColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (table_id) DO UPDATE SET
			table_name = EXCLUDED.table_name,
			enabled = EXCLUDED.enabled,
			sync_frequency = EXCLUDED.sync_frequency,
			batch_size = EXCLUDED.batch_size,
			max_records = EXCLUDED.max_records,
			options = EXCLUDED.options,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.q.ExecContext(ctx, query,
		cfg.TableID,
		cfg.TableName,
		cfg.Enabled,
		cfg.SyncFrequency,
		cfg.BatchSize,
		cfg.MaxRecords,
		options,
		cfg.UpdatedAt,
	)
	if err != nil {
		return storeError("save sync config", err)
	}
	return nil
}

func scanConfig(row scanner) (*domain.SyncConfig, error) {
	var cfg domain.SyncConfig
	var options []byte

	err := row.Scan(
		&cfg.TableID,
		&cfg.TableName,
		&cfg.Enabled,
		&cfg.SyncFrequency,
		&cfg.BatchSize,
		&cfg.MaxRecords,
		&options,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &cfg.Options); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	return &cfg, nil
}
