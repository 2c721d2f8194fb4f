package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RecordStore = (*RecordStore)(nil)

// RecordStore implements driven.RecordStore on a JSONB table keyed by
// (table_id, record_key)
type RecordStore struct {
	q querier
}

// Upsert writes row under key. A row whose data is unchanged is not touched.
func (s *RecordStore) Upsert(ctx context.Context, tableID, key, whseID string, row domain.Row) (domain.UpsertOutcome, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("%w: encode record %s: %v", domain.ErrInvalidInput, key, err)
	}

	query := `
		INSERT INTO synced_records (table_id, record_key, whseid, data, synced_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (table_id, record_key) DO UPDATE SET
			whseid = EXCLUDED.whseid,
			data = EXCLUDED.data,
			synced_at = EXCLUDED.synced_at
		WHERE synced_records.data IS DISTINCT FROM EXCLUDED.data
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err = s.q.QueryRowContext(ctx, query, tableID, key, whseID, data, time.Now().UTC()).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UpsertUnchanged, nil
	}
	if err != nil {
		return "", storeError("upsert record", err)
	}
	if inserted {
		return domain.UpsertInserted, nil
	}
	return domain.UpsertUpdated, nil
}

// Get retrieves a stored row
func (s *RecordStore) Get(ctx context.Context, tableID, key string) (domain.Row, error) {
	var data []byte
	err := s.q.QueryRowContext(ctx,
		`SELECT data FROM synced_records WHERE table_id = $1 AND record_key = $2`,
		tableID, key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get record", err)
	}

	var row domain.Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return row, nil
}

// Count returns the number of rows stored for a table
func (s *RecordStore) Count(ctx context.Context, tableID string) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM synced_records WHERE table_id = $1`, tableID,
	).Scan(&count)
	if err != nil {
		return 0, storeError("count records", err)
	}
	return count, nil
}
