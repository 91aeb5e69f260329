// Package journal holds the observation and report records and the
// in-memory collections the schedulers mutate.
package journal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a request record.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether s is success or error.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Observation is one model-generated description of a captured frame.
type Observation struct {
	ID           string
	Timestamp    time.Time
	RequestedAt  time.Time
	Status       Status
	Text         string
	Duration     time.Duration
	ErrorMessage string
}

// Report is a Markdown synthesis over a set of observations.
type Report struct {
	ID           string
	Timestamp    time.Time
	RequestedAt  time.Time
	Status       Status
	Markdown     string
	Title        string
	Duration     time.Duration
	ErrorMessage string
}

// NewObservation returns a pending observation stamped at now.
func NewObservation(now time.Time) Observation {
	return Observation{ID: uuid.New().String(), Timestamp: now, RequestedAt: now, Status: StatusPending}
}

// NewReport returns a pending report stamped at now.
func NewReport(now time.Time) Report {
	return Report{
		ID:          uuid.New().String(),
		Timestamp:   now,
		RequestedAt: now,
		Status:      StatusPending,
		Title:       now.Format("2006-01-02 15:04:05"),
	}
}

func (o Observation) recordID() string { return o.ID }
func (r Report) recordID() string      { return r.ID }

func (o Observation) recordTime() time.Time { return o.Timestamp }
func (r Report) recordTime() time.Time      { return r.Timestamp }

func (o Observation) recordStatus() Status { return o.Status }
func (r Report) recordStatus() Status      { return r.Status }

// Stored records carry times as Unix milliseconds. Missing fields decode
// to zero values and are filled in by Normalize.
type observationJSON struct {
	ID           string `json:"id,omitempty"`
	Timestamp    *int64 `json:"timestamp,omitempty"`
	RequestedAt  *int64 `json:"requestedAt,omitempty"`
	Status       Status `json:"status,omitempty"`
	Summary      string `json:"summary,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type reportJSON struct {
	ID           string `json:"id,omitempty"`
	Timestamp    *int64 `json:"timestamp,omitempty"`
	RequestedAt  *int64 `json:"requestedAt,omitempty"`
	Status       Status `json:"status,omitempty"`
	Markdown     string `json:"markdown,omitempty"`
	Title        string `json:"title,omitempty"`
	DurationMs   int64  `json:"durationMs"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func toMillis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms)
}

func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal(observationJSON{
		ID:           o.ID,
		Timestamp:    toMillis(o.Timestamp),
		RequestedAt:  toMillis(o.RequestedAt),
		Status:       o.Status,
		Summary:      o.Text,
		DurationMs:   o.Duration.Milliseconds(),
		ErrorMessage: o.ErrorMessage,
	})
}

func (o *Observation) UnmarshalJSON(data []byte) error {
	var w observationJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Observation{
		ID:           w.ID,
		Timestamp:    fromMillis(w.Timestamp),
		RequestedAt:  fromMillis(w.RequestedAt),
		Status:       w.Status,
		Text:         w.Summary,
		Duration:     time.Duration(w.DurationMs) * time.Millisecond,
		ErrorMessage: w.ErrorMessage,
	}
	return nil
}

func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		ID:           r.ID,
		Timestamp:    toMillis(r.Timestamp),
		RequestedAt:  toMillis(r.RequestedAt),
		Status:       r.Status,
		Markdown:     r.Markdown,
		Title:        r.Title,
		DurationMs:   r.Duration.Milliseconds(),
		ErrorMessage: r.ErrorMessage,
	})
}

func (r *Report) UnmarshalJSON(data []byte) error {
	var w reportJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Report{
		ID:           w.ID,
		Timestamp:    fromMillis(w.Timestamp),
		RequestedAt:  fromMillis(w.RequestedAt),
		Status:       w.Status,
		Markdown:     w.Markdown,
		Title:        w.Title,
		Duration:     time.Duration(w.DurationMs) * time.Millisecond,
		ErrorMessage: w.ErrorMessage,
	}
	return nil
}

// Normalize fills fields missing from older stored records.
func (o *Observation) Normalize(now time.Time) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = now
	}
	if o.RequestedAt.IsZero() {
		o.RequestedAt = o.Timestamp
	}
	if o.Status == "" {
		o.Status = StatusSuccess
	}
}

// Normalize fills fields missing from older stored records.
func (r *Report) Normalize(now time.Time) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = r.Timestamp
	}
	if r.Status == "" {
		r.Status = StatusSuccess
	}
	if r.Title == "" {
		r.Title = r.Timestamp.Format("2006-01-02 15:04:05")
	}
}
