package backup

import (
	"strconv"
	"strings"
	"time"
)

// Wire formats for scalar fields inside CSV artifacts. These are part of the
// restore wire format and must stay stable.
const (
	csvDateLayout = "2006-01-02"
	csvTimeLayout = time.RFC3339
)

// The converters below implement the validate-with-fallback policy: a field
// that fails to parse yields a type-appropriate default instead of failing
// the row.

func intOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func floatOr(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return v
}

// int64PtrOr parses an optional numeric reference; empty or malformed input
// yields nil.
func int64PtrOr(s string) *int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// dateOr parses a yyyy-mm-dd field, falling back to def (normally "today").
func dateOr(s string, def time.Time) time.Time {
	v, err := time.Parse(csvDateLayout, strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

// timeOr parses an RFC3339 timestamp field, falling back to def.
func timeOr(s string, def time.Time) time.Time {
	v, err := time.Parse(csvTimeLayout, strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func formatDate(t time.Time) string {
	return t.Format(csvDateLayout)
}

func formatTime(t time.Time) string {
	return t.Format(csvTimeLayout)
}

func formatInt64Ptr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatStringPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
