package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// whseIDColumn scopes every remote query to one warehouse.
const whseIDColumn = "whseid"

// keySeparator joins composite primary key values into one record key.
const keySeparator = "|"

// buildBatchQuery renders the SELECT for one batch of the job's frozen window.
// Identifiers were validated by SyncConfig.Validate; values are quoted here.
func buildBatchQuery(cfg *domain.SyncConfig, job *domain.SyncJob, offset, limit int) string {
	cursorField := cfg.EffectiveCursorField()

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(cfg.TableName)
	b.WriteString(windowPredicate(cfg, job))

	b.WriteString(" ORDER BY ")
	b.WriteString(cursorField)
	b.WriteString(" ASC")
	for _, col := range cfg.Options.PrimaryKey {
		if col == cursorField {
			continue
		}
		b.WriteString(", ")
		b.WriteString(col)
		b.WriteString(" ASC")
	}

	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(limit))
	b.WriteString(" OFFSET ")
	b.WriteString(strconv.Itoa(offset))
	return b.String()
}

// buildCountQuery counts the rows inside the job's window.
func buildCountQuery(cfg *domain.SyncConfig, job *domain.SyncJob) string {
	return "SELECT COUNT(*) AS total FROM " + cfg.TableName + windowPredicate(cfg, job)
}

func windowPredicate(cfg *domain.SyncConfig, job *domain.SyncJob) string {
	cursorField := cfg.EffectiveCursorField()
	literal := quoteLiteral
	if cfg.EffectiveCursorType() == domain.CursorTypeNumeric {
		literal = numericLiteral
	}

	var b strings.Builder
	b.WriteString(" WHERE ")
	b.WriteString(whseIDColumn)
	b.WriteString(" = ")
	b.WriteString(quoteLiteral(job.WhseID))
	if job.WindowStart != "" {
		fmt.Fprintf(&b, " AND %s >= %s", cursorField, literal(job.WindowStart))
	}
	if job.WindowEnd != "" {
		fmt.Fprintf(&b, " AND %s < %s", cursorField, literal(job.WindowEnd))
	}
	return b.String()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// numericLiteral leaves numbers bare so the warehouse compares them as numbers.
func numericLiteral(s string) string {
	if domain.IsNumericCursor(s) {
		return s
	}
	return quoteLiteral(s)
}

// recordKey derives the document key from the configured primary key columns.
func recordKey(cfg *domain.SyncConfig, row domain.Row) (string, error) {
	parts := make([]string, 0, len(cfg.Options.PrimaryKey))
	for _, col := range cfg.Options.PrimaryKey {
		v, ok := row[col]
		if !ok || v == nil {
			return "", fmt.Errorf("%w: row is missing primary key column %q", domain.ErrInvalidInput, col)
		}
		part := domain.CursorValue(v)
		if part == "" {
			part = fmt.Sprint(v)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, keySeparator), nil
}

// parseCount reads the single numeric cell of a COUNT(*) result.
func parseCount(rows []domain.Row) (int, error) {
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: count query returned no rows", domain.ErrRemoteQuery)
	}
	v, ok := rows[0]["total"]
	if !ok {
		for _, cell := range rows[0] {
			v = cell
			break
		}
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err == nil {
			return parsed, nil
		}
	}
	return 0, fmt.Errorf("%w: unexpected count value %v", domain.ErrRemoteQuery, v)
}
