package storage

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/kalambet/screenlog/internal/journal"
)

// Typed accessors. Absent or malformed values load as defaults; only
// database failures are returned as errors.

// CaptureInterval returns the stored capture interval in seconds.
func (s *Store) CaptureInterval() (int, error) {
	v, err := s.intValue(KeyCaptureInterval, DefaultCaptureInterval)
	return ClampCaptureInterval(v), err
}

// ReportInterval returns the stored auto-report interval in minutes.
func (s *Store) ReportInterval() (int, error) {
	v, err := s.intValue(KeyReportInterval, DefaultReportInterval)
	return ClampReportInterval(v), err
}

func (s *Store) SaveCaptureInterval(sec int) error {
	return s.SetJSON(KeyCaptureInterval, ClampCaptureInterval(sec))
}

func (s *Store) SaveReportInterval(minutes int) error {
	return s.SetJSON(KeyReportInterval, ClampReportInterval(minutes))
}

// intValue accepts both a JSON number and a numeric string. Non-finite
// values load as def; finite ones are bounded to the int32 range before
// conversion.
func (s *Store) intValue(key string, def int) (int, error) {
	data, err := s.GetRaw(key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	raw := string(data)
	if uq, err := strconv.Unquote(raw); err == nil {
		raw = uq
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def, nil
	}
	f = math.Max(math.MinInt32, math.Min(math.MaxInt32, f))
	return int(f), nil
}

// Theme returns the stored theme, dark by default.
func (s *Store) Theme() (Theme, error) {
	var v string
	if err := s.GetJSON(KeyTheme, &v); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed) {
			return ThemeDark, nil
		}
		return ThemeDark, err
	}
	t, err := ParseTheme(v)
	if err != nil {
		return ThemeDark, nil
	}
	return t, nil
}

func (s *Store) SaveTheme(t Theme) error {
	return s.SetJSON(KeyTheme, string(t))
}

// Observations loads the stored observations, normalized, without any
// pending entries.
func (s *Store) Observations() ([]journal.Observation, error) {
	var items []journal.Observation
	if err := s.GetJSON(KeyObservations, &items); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed) {
			return nil, nil
		}
		return nil, err
	}
	now := time.Now()
	out := items[:0]
	for _, o := range items {
		o.Normalize(now)
		if o.Status == journal.StatusPending {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// SaveObservations writes items, dropping pending entries.
func (s *Store) SaveObservations(items []journal.Observation) error {
	out := make([]journal.Observation, 0, len(items))
	for _, o := range items {
		if o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return s.SetJSON(KeyObservations, out)
}

// Reports loads the stored reports, normalized, without any pending entries.
func (s *Store) Reports() ([]journal.Report, error) {
	var items []journal.Report
	if err := s.GetJSON(KeyReports, &items); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMalformed) {
			return nil, nil
		}
		return nil, err
	}
	now := time.Now()
	out := items[:0]
	for _, r := range items {
		r.Normalize(now)
		if r.Status == journal.StatusPending {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// SaveReports writes items, dropping pending entries.
func (s *Store) SaveReports(items []journal.Report) error {
	out := make([]journal.Report, 0, len(items))
	for _, r := range items {
		if r.Status.Terminal() {
			out = append(out, r)
		}
	}
	return s.SetJSON(KeyReports, out)
}

// ClearAll removes intervals, observations and reports atomically. The
// theme is kept.
func (s *Store) ClearAll() error {
	return s.Delete(KeyCaptureInterval, KeyReportInterval, KeyObservations, KeyReports)
}
