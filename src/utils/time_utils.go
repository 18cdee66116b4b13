package utils

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// KST is the exchange time zone. Korea has no daylight saving, so a fixed
// zone avoids depending on tzdata being present in the container.
var KST = time.FixedZone("KST", 9*60*60)

const (
	dayLayout      = "2006-01-02"
	brokerDay      = "20060102"
	brokerDateTime = "20060102150405"
	brokerMinute   = "200601021504"
)

// TradingDay returns the KST calendar day of t as YYYY-MM-DD.
func TradingDay(t time.Time) string {
	return t.In(KST).Format(dayLayout)
}

// StartOfDay returns midnight KST of the day t falls in.
func StartOfDay(t time.Time) time.Time {
	k := t.In(KST)
	return time.Date(k.Year(), k.Month(), k.Day(), 0, 0, 0, 0, KST)
}

// ResetTime truncates t to the given granularity.
// Pass "minute" to reset seconds to zero.
// Pass "day" to reset to midnight KST.
func ResetTime(t time.Time, granularity string) time.Time {
	switch granularity {
	case "minute":
		return t.Truncate(time.Minute)
	case "hour":
		return t.Truncate(time.Hour)
	case "day":
		return StartOfDay(t)
	default:
		return t
	}
}

// ParseBrokerTime parses the compact timestamps used by the broker
// (YYYYMMDD, YYYYMMDDHHMM or YYYYMMDDHHMMSS) in KST.
func ParseBrokerTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var layout string
	switch len(s) {
	case len(brokerDay):
		layout = brokerDay
	case len(brokerMinute):
		layout = brokerMinute
	case len(brokerDateTime):
		layout = brokerDateTime
	default:
		return time.Time{}, fmt.Errorf("unexpected broker time %q", s)
	}
	return time.ParseInLocation(layout, s, KST)
}

// Clock abstracts wall time and sleeping so workers can be driven
// deterministically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
