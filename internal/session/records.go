package session

import (
	"fmt"
	"time"

	"github.com/kalambet/screenlog/internal/journal"
	"github.com/kalambet/screenlog/internal/storage"
)

// Observations returns one page of observations, newest first, and the total.
func (o *Orchestrator) Observations(page, size int) ([]journal.Observation, int) {
	return journal.Page(o.journal.Observations.Snapshot(), page, size)
}

// Reports returns every report, newest first.
func (o *Orchestrator) Reports() []journal.Report {
	return o.journal.Reports.Snapshot()
}

// Report returns the report with the given id or storage.ErrNotFound.
func (o *Orchestrator) Report(id string) (journal.Report, error) {
	r, ok := o.journal.Reports.Get(id)
	if !ok {
		return journal.Report{}, storage.ErrNotFound
	}
	return r, nil
}

// LatestReport returns the newest successful report.
func (o *Orchestrator) LatestReport() (journal.Report, error) {
	for _, r := range o.journal.Reports.Snapshot() {
		if r.Status == journal.StatusSuccess {
			return r, nil
		}
	}
	return journal.Report{}, storage.ErrNotFound
}

// DeleteObservation removes an observation from memory and storage.
func (o *Orchestrator) DeleteObservation(id string) error {
	if !o.journal.Observations.Remove(id) {
		return storage.ErrNotFound
	}
	if err := o.journal.Observations.Sync(o.cfg.Store.SaveObservations); err != nil {
		return fmt.Errorf("saving observations: %w", err)
	}
	o.logger.Info("observation deleted", "id", id)
	return nil
}

// DeleteReport removes a report from memory and storage.
func (o *Orchestrator) DeleteReport(id string) error {
	if !o.journal.Reports.Remove(id) {
		return storage.ErrNotFound
	}
	if err := o.journal.Reports.Sync(o.cfg.Store.SaveReports); err != nil {
		return fmt.Errorf("saving reports: %w", err)
	}
	o.logger.Info("report deleted", "id", id)
	return nil
}

// ClearAll deletes every observation and report and resets the intervals.
// The theme survives. Requests still in flight resolve into nothing.
func (o *Orchestrator) ClearAll() error {
	err := o.journal.Observations.Reset(func() error {
		return o.journal.Reports.Reset(o.cfg.Store.ClearAll)
	})
	if err != nil {
		return fmt.Errorf("clearing storage: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.captureInterval = storage.DefaultCaptureInterval
	o.reportInterval = storage.DefaultReportInterval
	if o.sharing {
		o.armCaptureLocked()
		o.armReportsLocked()
	}
	o.logger.Info("all data cleared")
	return nil
}

// TimelineEntry is one item of the merged observation and report view.
type TimelineEntry struct {
	Kind        string               `json:"kind"`
	Timestamp   int64                `json:"timestamp"`
	Observation *journal.Observation `json:"observation,omitempty"`
	Report      *journal.Report      `json:"report,omitempty"`
}

const (
	KindObservation = "observation"
	KindReport      = "report"
)

// Timeline merges observations and reports, newest first.
func (o *Orchestrator) Timeline(reportsOnly bool) []TimelineEntry {
	reps := o.journal.Reports.Snapshot()
	var obs []journal.Observation
	if !reportsOnly {
		obs = o.journal.Observations.Snapshot()
	}

	out := make([]TimelineEntry, 0, len(obs)+len(reps))
	i, k := 0, 0
	for i < len(obs) || k < len(reps) {
		if k >= len(reps) || (i < len(obs) && !obs[i].Timestamp.Before(reps[k].Timestamp)) {
			ob := obs[i]
			out = append(out, TimelineEntry{Kind: KindObservation, Timestamp: ob.Timestamp.UnixMilli(), Observation: &ob})
			i++
			continue
		}
		r := reps[k]
		out = append(out, TimelineEntry{Kind: KindReport, Timestamp: r.Timestamp.UnixMilli(), Report: &r})
		k++
	}
	return out
}

// Status is a point-in-time view of the session.
type Status struct {
	Sharing                bool          `json:"sharing"`
	CaptureIntervalSeconds int           `json:"captureIntervalSeconds"`
	ReportIntervalMinutes  int           `json:"reportIntervalMinutes"`
	Theme                  storage.Theme `json:"theme"`
	NextCaptureAt          *int64        `json:"nextCaptureAt,omitempty"`
	NextReportAt           *int64        `json:"nextReportAt,omitempty"`
	Observations           int           `json:"observations"`
	PendingObservations    int           `json:"pendingObservations"`
	Reports                int           `json:"reports"`
	GeneratingReport       bool          `json:"generatingReport"`
}

// Status reports the session state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	st := Status{
		Sharing:                o.sharing,
		CaptureIntervalSeconds: o.captureInterval,
		ReportIntervalMinutes:  o.reportInterval,
		Theme:                  o.theme,
	}
	o.mu.Unlock()

	st.NextCaptureAt = millisOrNil(o.captures.NextTick())
	st.NextReportAt = millisOrNil(o.reports.NextTick())
	st.Observations = o.journal.Observations.Len()
	st.PendingObservations = o.journal.Observations.Pending()
	st.Reports = o.journal.Reports.Len()
	st.GeneratingReport = o.reports.Generating()
	return st
}

func millisOrNil(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
