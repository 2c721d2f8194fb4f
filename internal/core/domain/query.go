package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// QueryStatus is the normalized status of a remote query. Callers never see
// raw provider strings.
type QueryStatus string

const (
	QueryStatusPending   QueryStatus = "pending"
	QueryStatusRunning   QueryStatus = "running"
	QueryStatusCompleted QueryStatus = "completed"
	QueryStatusFailed    QueryStatus = "failed"
)

var queryStatusSynonyms = map[string]QueryStatus{
	"pending":     QueryStatusPending,
	"queued":      QueryStatusPending,
	"submitted":   QueryStatusPending,
	"waiting":     QueryStatusPending,
	"created":     QueryStatusPending,
	"running":     QueryStatusRunning,
	"in_progress": QueryStatusRunning,
	"inprogress":  QueryStatusRunning,
	"executing":   QueryStatusRunning,
	"processing":  QueryStatusRunning,
	"started":     QueryStatusRunning,
	"completed":   QueryStatusCompleted,
	"complete":    QueryStatusCompleted,
	"succeeded":   QueryStatusCompleted,
	"success":     QueryStatusCompleted,
	"finished":    QueryStatusCompleted,
	"done":        QueryStatusCompleted,
	"failed":      QueryStatusFailed,
	"failure":     QueryStatusFailed,
	"error":       QueryStatusFailed,
	"errored":     QueryStatusFailed,
	"cancelled":   QueryStatusFailed,
	"canceled":    QueryStatusFailed,
	"aborted":     QueryStatusFailed,
}

// NormalizeQueryStatus maps a provider status string onto the four known
// values. Unrecognized strings map to running and ok=false so the caller can log them.
func NormalizeQueryStatus(raw string) (status QueryStatus, ok bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if s, found := queryStatusSynonyms[key]; found {
		return s, true
	}
	return QueryStatusRunning, false
}

// IsTerminal reports whether polling can stop.
func (s QueryStatus) IsTerminal() bool {
	return s == QueryStatusCompleted || s == QueryStatusFailed
}

// QueryState is a normalized status response
type QueryState struct {
	QueryID string      `json:"queryId"`
	Status  QueryStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// Row is one result row keyed by column name
type Row map[string]any

// PollPolicy controls how long the orchestrator waits for a remote query.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Multiplier  float64
	MaxInterval time.Duration
}

// DefaultPollPolicy polls up to 10 times starting at 2s with gentle backoff.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    2 * time.Second,
		MaxAttempts: 10,
		Multiplier:  1.5,
		MaxInterval: 10 * time.Second,
	}
}

// Delay returns the wait before poll attempt n (zero-based).
// A multiplier of 1 or less gives a fixed interval.
func (p PollPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.Multiplier <= 1 {
		return p.capped(p.Interval)
	}
	d := float64(p.Interval) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(math.MaxInt64) {
		return p.capped(time.Duration(math.MaxInt64))
	}
	return p.capped(time.Duration(d))
}

func (p PollPolicy) capped(d time.Duration) time.Duration {
	if p.MaxInterval > 0 && d > p.MaxInterval {
		return p.MaxInterval
	}
	return d
}

// AdvanceCursor returns whichever watermark is larger, so the cursor never moves
// backwards. Timestamps compare with timestamps, numbers with numbers and
// anything else lexically. A candidate of a different kind than current is
// ignored.
func AdvanceCursor(current, candidate string) string {
	if candidate == "" {
		return current
	}
	if current == "" {
		return candidate
	}
	if cmp, ok := compareCursor(candidate, current); ok && cmp > 0 {
		return candidate
	}
	return current
}

// cursorTimeLayouts are the timestamp renderings accepted as cursor values.
var cursorTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseCursorTime(s string) (time.Time, bool) {
	for _, layout := range cursorTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsNumericCursor reports whether s is a plain number.
func IsNumericCursor(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// compareCursor orders two cursor values of the same kind. ok is false when
// they are of different kinds.
func compareCursor(a, b string) (int, bool) {
	ta, timeA := parseCursorTime(a)
	tb, timeB := parseCursorTime(b)
	if timeA || timeB {
		if !(timeA && timeB) {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil || errB == nil {
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	return strings.Compare(a, b), true
}

// CursorValue renders a row value as a cursor string.
func CursorValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
