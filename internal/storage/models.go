package storage

import "errors"

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// ErrMalformed is returned when a stored value cannot be decoded.
var ErrMalformed = errors.New("malformed value")

// Persisted keys.
const (
	KeyCaptureInterval = "capture_interval_sec"
	KeyReportInterval  = "report_interval_min"
	KeyObservations    = "capture_summaries"
	KeyReports         = "capture_reports"
	KeyTheme           = "theme"
)

const (
	DefaultCaptureInterval = 30
	MinCaptureInterval     = 1
	MaxCaptureInterval     = 120

	DefaultReportInterval = 30
	MaxReportInterval     = 60
)

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme returns the theme named s, or an error.
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	}
	return "", errors.New("theme must be light or dark")
}

// ClampCaptureInterval bounds seconds to 1..120.
func ClampCaptureInterval(sec int) int {
	return min(max(sec, MinCaptureInterval), MaxCaptureInterval)
}

// ClampReportInterval bounds minutes to 0..60; 0 disables auto-reports.
func ClampReportInterval(minutes int) int {
	return min(max(minutes, 0), MaxReportInterval)
}
