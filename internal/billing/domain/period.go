package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// NormalizeBillingMonth maps YYYY-MM, YYYY-MM-DD or RFC3339 input to the
// first day of that month in UTC.
func NormalizeBillingMonth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{monthLayout, dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return FirstOfMonth(t), nil
		}
	}
	return time.Time{}, ErrInvalidPeriod
}

func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and truncates to midnight UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{dateLayout, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, ErrInvalidDueDate
}

func ReceiptPeriod(month time.Time) string {
	return month.UTC().Format("200601")
}

// FormatReceiptNumber renders e.g. RCP-202610-000123.
func FormatReceiptNumber(month time.Time, seq int64) string {
	return fmt.Sprintf("RCP-%s-%06d", ReceiptPeriod(month), seq)
}
