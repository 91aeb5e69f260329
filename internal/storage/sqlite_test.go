package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/kalambet/screenlog/internal/journal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func setRaw(t *testing.T, s *Store, key, value string) {
	t.Helper()
	if _, err := s.db.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, '2026-01-01T00:00:00Z')
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		t.Fatalf("seeding %s: %v", key, err)
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if err := s1.SetJSON(KeyTheme, "light"); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
	theme, err := s2.Theme()
	if err != nil {
		t.Fatalf("Theme: %v", err)
	}
	if theme != ThemeLight {
		t.Errorf("Theme after reopen = %q, want light", theme)
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestGetJSON_NotFound(t *testing.T) {
	s := openTestStore(t)
	var v int
	if err := s.GetJSON("missing", &v); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJSON error = %v, want ErrNotFound", err)
	}
}

func TestSetJSON_Overwrites(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetJSON("k", 1); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if err := s.SetJSON("k", 2); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var v int
	if err := s.GetJSON("k", &v); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if v != 2 {
		t.Errorf("value = %d, want 2", v)
	}
}

func TestIntervals_Defaults(t *testing.T) {
	s := openTestStore(t)

	c, err := s.CaptureInterval()
	if err != nil {
		t.Fatalf("CaptureInterval: %v", err)
	}
	if c != DefaultCaptureInterval {
		t.Errorf("capture = %d, want %d", c, DefaultCaptureInterval)
	}
	r, err := s.ReportInterval()
	if err != nil {
		t.Fatalf("ReportInterval: %v", err)
	}
	if r != DefaultReportInterval {
		t.Errorf("report = %d, want %d", r, DefaultReportInterval)
	}
}

func TestIntervals_ClampAndMalformed(t *testing.T) {
	tests := []struct {
		name        string
		capture     string
		report      string
		wantCapture int
		wantReport  int
	}{
		{"in range", "10", "5", 10, 5},
		{"clamped high", "500", "90", 120, 60},
		{"clamped low", "0", "-3", 1, 0},
		{"string numbers", `"45"`, `"15"`, 45, 15},
		{"malformed", `{bad`, `"abc"`, DefaultCaptureInterval, DefaultReportInterval},
		{"huge magnitude", "1e300", "-1e300", 120, 0},
		{"huge magnitude flipped", "-1e300", "1e300", 1, 60},
		{"non-finite", `"NaN"`, `"-Inf"`, DefaultCaptureInterval, DefaultReportInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			setRaw(t, s, KeyCaptureInterval, tt.capture)
			setRaw(t, s, KeyReportInterval, tt.report)

			c, _ := s.CaptureInterval()
			r, _ := s.ReportInterval()
			if c != tt.wantCapture {
				t.Errorf("capture = %d, want %d", c, tt.wantCapture)
			}
			if r != tt.wantReport {
				t.Errorf("report = %d, want %d", r, tt.wantReport)
			}
		})
	}
}

func TestSaveIntervals_Clamps(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveCaptureInterval(999); err != nil {
		t.Fatalf("SaveCaptureInterval: %v", err)
	}
	if err := s.SaveReportInterval(-1); err != nil {
		t.Fatalf("SaveReportInterval: %v", err)
	}
	if c, _ := s.CaptureInterval(); c != MaxCaptureInterval {
		t.Errorf("capture = %d, want %d", c, MaxCaptureInterval)
	}
	if r, _ := s.ReportInterval(); r != 0 {
		t.Errorf("report = %d, want 0", r)
	}
}

func TestTheme(t *testing.T) {
	s := openTestStore(t)
	if th, _ := s.Theme(); th != ThemeDark {
		t.Errorf("default theme = %q, want dark", th)
	}
	setRaw(t, s, KeyTheme, `"purple"`)
	if th, _ := s.Theme(); th != ThemeDark {
		t.Errorf("invalid theme = %q, want dark", th)
	}
	if err := s.SaveTheme(ThemeLight); err != nil {
		t.Fatalf("SaveTheme: %v", err)
	}
	if th, _ := s.Theme(); th != ThemeLight {
		t.Errorf("theme = %q, want light", th)
	}
	if _, err := ParseTheme("blue"); err == nil {
		t.Error("ParseTheme(blue) should fail")
	}
}

func TestObservations_RoundTripDropsPending(t *testing.T) {
	s := openTestStore(t)
	base := time.UnixMilli(1_700_000_000_000)

	in := []journal.Observation{
		{ID: "c", Timestamp: base.Add(10 * time.Second), RequestedAt: base.Add(10 * time.Second), Status: journal.StatusPending},
		{ID: "b", Timestamp: base.Add(5 * time.Second), RequestedAt: base.Add(5 * time.Second), Status: journal.StatusError, ErrorMessage: "boom", Duration: time.Second},
		{ID: "a", Timestamp: base, RequestedAt: base, Status: journal.StatusSuccess, Text: "A", Duration: 2 * time.Second},
	}
	if err := s.SaveObservations(in); err != nil {
		t.Fatalf("SaveObservations: %v", err)
	}

	got, err := s.Observations()
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (pending dropped)", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("order = [%s %s], want [b a]", got[0].ID, got[1].ID)
	}
	if got[0].ErrorMessage != "boom" || got[0].Status != journal.StatusError {
		t.Errorf("error record = %+v", got[0])
	}
	if got[1].Text != "A" || got[1].Duration != 2*time.Second || !got[1].Timestamp.Equal(base) {
		t.Errorf("success record = %+v", got[1])
	}
}

func TestObservations_LoadNormalizesAndFilters(t *testing.T) {
	s := openTestStore(t)
	setRaw(t, s, KeyObservations, `[
		{"timestamp": 1700000000000, "summary": "legacy"},
		{"id": "p", "timestamp": 1700000001000, "status": "pending"}
	]`)

	got, err := s.Observations()
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	o := got[0]
	if o.ID == "" || o.Status != journal.StatusSuccess || o.Text != "legacy" {
		t.Errorf("normalized = %+v", o)
	}
	if !o.RequestedAt.Equal(o.Timestamp) {
		t.Errorf("RequestedAt = %v, want %v", o.RequestedAt, o.Timestamp)
	}
}

func TestObservations_MalformedLoadsEmpty(t *testing.T) {
	s := openTestStore(t)
	setRaw(t, s, KeyObservations, `not json`)
	setRaw(t, s, KeyReports, `{"an":"object"}`)

	obs, err := s.Observations()
	if err != nil || len(obs) != 0 {
		t.Errorf("Observations = %v, %v; want empty, nil", obs, err)
	}
	reps, err := s.Reports()
	if err != nil || len(reps) != 0 {
		t.Errorf("Reports = %v, %v; want empty, nil", reps, err)
	}
}

func TestReports_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	now := time.UnixMilli(1_700_000_000_000)
	in := []journal.Report{
		{ID: "r2", Timestamp: now.Add(time.Minute), Status: journal.StatusPending},
		{ID: "r1", Timestamp: now, RequestedAt: now, Status: journal.StatusSuccess, Markdown: "# Report", Title: "t"},
	}
	if err := s.SaveReports(in); err != nil {
		t.Fatalf("SaveReports: %v", err)
	}
	got, err := s.Reports()
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r1" || got[0].Markdown != "# Report" || got[0].Title != "t" {
		t.Errorf("Reports = %+v", got)
	}
}

func TestClearAll_KeepsTheme(t *testing.T) {
	s := openTestStore(t)
	s.SaveCaptureInterval(10)
	s.SaveReportInterval(10)
	s.SaveObservations([]journal.Observation{{ID: "a", Timestamp: time.Now(), Status: journal.StatusSuccess}})
	s.SaveReports([]journal.Report{{ID: "r", Timestamp: time.Now(), Status: journal.StatusSuccess}})
	s.SaveTheme(ThemeLight)

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != KeyTheme {
		t.Errorf("keys after ClearAll = %v, want [%s]", keys, KeyTheme)
	}
}

func TestClampHelpers(t *testing.T) {
	if got := ClampCaptureInterval(0); got != 1 {
		t.Errorf("ClampCaptureInterval(0) = %d, want 1", got)
	}
	if got := ClampCaptureInterval(121); got != 120 {
		t.Errorf("ClampCaptureInterval(121) = %d, want 120", got)
	}
	if got := ClampReportInterval(61); got != 60 {
		t.Errorf("ClampReportInterval(61) = %d, want 60", got)
	}
	if got := ClampReportInterval(-5); got != 0 {
		t.Errorf("ClampReportInterval(-5) = %d, want 0", got)
	}
}
