package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Default sync parameters applied when a config leaves them unset
const (
	DefaultBatchSize   = 1000
	DefaultCursorField = "updated_at"
)

// CursorType is the kind of value held by the cursor column
type CursorType string

const (
	CursorTypeTimestamp CursorType = "timestamp"
	CursorTypeNumeric   CursorType = "numeric"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// IsIdentifier reports whether s is safe to splice into SQL as a table or column name.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// SyncOptions holds per-table tuning for a sync run
type SyncOptions struct {
	WarehouseID string     `json:"warehouseId"`
	PrimaryKey  []string   `json:"primaryKey"`
	CursorField string     `json:"cursorField,omitempty"`
	CursorType  CursorType `json:"cursorType,omitempty"`
	InitialSync bool       `json:"initialSync,omitempty"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	PageSize    int        `json:"pageSize,omitempty"`
	CountTotal  bool       `json:"countTotal,omitempty"`
}

// SyncConfig parameterizes runs for one remote table. The orchestrator reads it
// and never mutates it.
type SyncConfig struct {
	TableID       string      `json:"tableId"`
	TableName     string      `json:"tableName"`
	Enabled       bool        `json:"enabled"`
	SyncFrequency string      `json:"syncFrequency"`
	BatchSize     int         `json:"batchSize"`
	MaxRecords    int         `json:"maxRecords"`
	Options       SyncOptions `json:"options"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// EffectiveBatchSize returns BatchSize or the default when unset.
func (c *SyncConfig) EffectiveBatchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// EffectiveCursorField returns the watermark column.
func (c *SyncConfig) EffectiveCursorField() string {
	if c.Options.CursorField == "" {
		return DefaultCursorField
	}
	return c.Options.CursorField
}

// EffectiveCursorType returns the cursor kind, timestamp when unset.
func (c *SyncConfig) EffectiveCursorType() CursorType {
	if c.Options.CursorType == "" {
		return CursorTypeTimestamp
	}
	return c.Options.CursorType
}

// EffectivePageSize returns the fetch page size, never larger than the batch size.
func (c *SyncConfig) EffectivePageSize() int {
	batch := c.EffectiveBatchSize()
	if c.Options.PageSize <= 0 || c.Options.PageSize > batch {
		return batch
	}
	return c.Options.PageSize
}

// Validate checks the fields needed to build remote queries.
func (c *SyncConfig) Validate() error {
	var problems []string
	if c.TableID == "" {
		problems = append(problems, "tableId is required")
	}
	if !IsIdentifier(c.TableName) {
		problems = append(problems, fmt.Sprintf("tableName %q is not a valid identifier", c.TableName))
	}
	if c.Options.WarehouseID == "" {
		problems = append(problems, "options.warehouseId is required")
	}
	if len(c.Options.PrimaryKey) == 0 {
		problems = append(problems, "options.primaryKey is required")
	}
	for _, col := range c.Options.PrimaryKey {
		if !IsIdentifier(col) {
			problems = append(problems, fmt.Sprintf("primary key column %q is not a valid identifier", col))
		}
	}
	if !IsIdentifier(c.EffectiveCursorField()) {
		problems = append(problems, fmt.Sprintf("cursorField %q is not a valid identifier", c.Options.CursorField))
	}
	switch c.EffectiveCursorType() {
	case CursorTypeTimestamp:
	case CursorTypeNumeric:
		if c.Options.StartTime != nil || c.Options.EndTime != nil {
			problems = append(problems, "options.startTime and options.endTime need a timestamp cursor")
		}
	default:
		problems = append(problems, fmt.Sprintf("cursorType %q must be timestamp or numeric", c.Options.CursorType))
	}
	if c.BatchSize < 0 {
		problems = append(problems, "batchSize must not be negative")
	}
	if c.MaxRecords < 0 {
		problems = append(problems, "maxRecords must not be negative")
	}
	if c.Options.StartTime != nil && c.Options.EndTime != nil && !c.Options.StartTime.Before(*c.Options.EndTime) {
		problems = append(problems, "options.startTime must be before options.endTime")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}
