// Package session ties the stream, the schedulers and persistence into one
// sharing session that the API and MCP surfaces control.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/screenlog/internal/capture"
	"github.com/kalambet/screenlog/internal/journal"
	"github.com/kalambet/screenlog/internal/llm"
	"github.com/kalambet/screenlog/internal/notify"
	"github.com/kalambet/screenlog/internal/scheduler"
	"github.com/kalambet/screenlog/internal/storage"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	CaptureInterval() (int, error)
	ReportInterval() (int, error)
	SaveCaptureInterval(sec int) error
	SaveReportInterval(minutes int) error
	Observations() ([]journal.Observation, error)
	SaveObservations(items []journal.Observation) error
	Reports() ([]journal.Report, error)
	SaveReports(items []journal.Report) error
	Theme() (storage.Theme, error)
	SaveTheme(t storage.Theme) error
	ClearAll() error
}

// Config holds the orchestrator's collaborators.
type Config struct {
	Source    capture.Source
	Extractor capture.Extractor
	// Provider describes frames; ReportProvider writes reports and defaults
	// to Provider.
	Provider       llm.Provider
	ReportProvider llm.Provider
	Store          Store
	Notifier       notify.Notifier
	Language       string
	// BaseContext bounds in-flight model calls; cancel it at shutdown.
	BaseContext context.Context
	Logger      *slog.Logger
}

// Settings are the user-adjustable values.
type Settings struct {
	CaptureIntervalSeconds int           `json:"captureIntervalSeconds"`
	ReportIntervalMinutes  int           `json:"reportIntervalMinutes"`
	Theme                  storage.Theme `json:"theme"`
}

// Orchestrator owns the sharing lifecycle.
type Orchestrator struct {
	cfg      Config
	logger   *slog.Logger
	journal  *journal.Journal
	captures *scheduler.CaptureScheduler
	reports  *scheduler.ReportScheduler

	mu              sync.Mutex
	sharing         bool
	stream          capture.Stream
	captureInterval int
	reportInterval  int
	theme           storage.Theme
}

// New wires an orchestrator. Call Init before anything else.
func New(cfg Config) *Orchestrator {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.ReportProvider == nil {
		cfg.ReportProvider = cfg.Provider
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	j := journal.New()
	o := &Orchestrator{
		cfg:             cfg,
		logger:          logger,
		journal:         j,
		captureInterval: storage.DefaultCaptureInterval,
		reportInterval:  storage.DefaultReportInterval,
		theme:           storage.ThemeDark,
	}
	o.captures = scheduler.NewCaptureScheduler(scheduler.CaptureConfig{
		Extractor:   cfg.Extractor,
		Provider:    cfg.Provider,
		Journal:     j,
		Store:       cfg.Store,
		Notifier:    cfg.Notifier,
		Language:    cfg.Language,
		BaseContext: cfg.BaseContext,
		Logger:      logger,
	})
	o.reports = scheduler.NewReportScheduler(scheduler.ReportConfig{
		Provider:    cfg.ReportProvider,
		Journal:     j,
		Store:       cfg.Store,
		Notifier:    cfg.Notifier,
		Language:    cfg.Language,
		BaseContext: cfg.BaseContext,
		Logger:      logger,
	})
	return o
}

// Init loads settings and the persisted collections.
func (o *Orchestrator) Init(_ context.Context) error {
	s := o.cfg.Store
	if s == nil {
		return errors.New("session: no store configured")
	}

	captureSec, err := s.CaptureInterval()
	if err != nil {
		return fmt.Errorf("loading capture interval: %w", err)
	}
	reportMin, err := s.ReportInterval()
	if err != nil {
		return fmt.Errorf("loading report interval: %w", err)
	}
	theme, err := s.Theme()
	if err != nil {
		return fmt.Errorf("loading theme: %w", err)
	}
	obs, err := s.Observations()
	if err != nil {
		return fmt.Errorf("loading observations: %w", err)
	}
	reps, err := s.Reports()
	if err != nil {
		return fmt.Errorf("loading reports: %w", err)
	}

	o.journal.Observations.Load(obs)
	o.journal.Reports.Load(reps)

	o.mu.Lock()
	o.captureInterval = captureSec
	o.reportInterval = reportMin
	o.theme = theme
	o.mu.Unlock()

	o.logger.Info("session loaded",
		"observations", len(obs),
		"reports", len(reps),
		"capture_interval_sec", captureSec,
		"report_interval_min", reportMin,
	)
	return nil
}

// StartSharing opens the stream and arms both schedulers. A declined
// permission returns capture.ErrCancelled without notifying; any other
// failure is reported to the user. Starting while sharing is a no-op.
// The stream lives until StopSharing or until the base context ends.
func (o *Orchestrator) StartSharing() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sharing {
		return nil
	}
	if o.cfg.Source == nil {
		return errors.New("no capture source configured")
	}

	stream, err := o.cfg.Source.Open(o.cfg.BaseContext)
	if err != nil {
		if stream != nil {
			stream.Stop()
		}
		if errors.Is(err, capture.ErrCancelled) {
			o.logger.Info("screen sharing declined")
			return err
		}
		o.logger.Error("starting screen sharing", "error", err)
		o.cfg.Notifier.Notify(notify.Error("Screen sharing failed", err.Error()))
		return fmt.Errorf("starting screen sharing: %w", err)
	}

	o.stream = stream
	o.sharing = true
	o.armCaptureLocked()
	o.armReportsLocked()

	o.logger.Info("screen sharing started", "capture_interval_sec", o.captureInterval, "report_interval_min", o.reportInterval)
	o.cfg.Notifier.Notify(notify.Success("Screen sharing started", ""))
	return nil
}

// StopSharing releases the stream and disarms both schedulers. Idempotent.
func (o *Orchestrator) StopSharing() {
	o.mu.Lock()
	wasSharing := o.teardownLocked()
	o.mu.Unlock()

	if wasSharing {
		o.logger.Info("screen sharing stopped")
		o.cfg.Notifier.Notify(notify.Info("Screen sharing stopped", ""))
	}
}

func (o *Orchestrator) teardownLocked() bool {
	o.captures.Stop()
	o.reports.Stop()
	if o.stream != nil {
		o.stream.Stop()
		o.stream = nil
	}
	was := o.sharing
	o.sharing = false
	return was
}

// streamLost handles the capture scheduler reporting that stream ended.
func (o *Orchestrator) streamLost(stream capture.Stream) {
	o.mu.Lock()
	if o.stream != stream {
		o.mu.Unlock()
		return
	}
	o.teardownLocked()
	o.mu.Unlock()

	o.logger.Warn("screen sharing ended by the source")
	o.cfg.Notifier.Notify(notify.Error("Screen sharing ended", "The captured screen is no longer available."))
}

func (o *Orchestrator) armCaptureLocked() {
	stream := o.stream
	o.captures.Start(
		time.Duration(o.captureInterval)*time.Second,
		stream,
		nil,
		func() { o.streamLost(stream) },
	)
}

func (o *Orchestrator) armReportsLocked() {
	o.reports.Start(
		time.Duration(o.reportInterval)*time.Minute,
		o.journal.Observations.Snapshot,
		nil,
	)
}

// Sharing reports whether a stream is active.
func (o *Orchestrator) Sharing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sharing
}

// SetCaptureInterval clamps, persists and, while sharing, re-arms the
// capture timer so the next tick is a full new interval away.
func (o *Orchestrator) SetCaptureInterval(sec int) (int, error) {
	sec = storage.ClampCaptureInterval(sec)
	if err := o.cfg.Store.SaveCaptureInterval(sec); err != nil {
		return 0, fmt.Errorf("saving capture interval: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.captureInterval = sec
	if o.sharing {
		o.armCaptureLocked()
	}
	return sec, nil
}

// SetReportInterval clamps, persists and, while sharing, re-arms the
// auto-report timer. Zero disables auto-reports.
func (o *Orchestrator) SetReportInterval(minutes int) (int, error) {
	minutes = storage.ClampReportInterval(minutes)
	if err := o.cfg.Store.SaveReportInterval(minutes); err != nil {
		return 0, fmt.Errorf("saving report interval: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.reportInterval = minutes
	if o.sharing {
		o.armReportsLocked()
	}
	return minutes, nil
}

// SetTheme persists the theme preference.
func (o *Orchestrator) SetTheme(t storage.Theme) error {
	if _, err := storage.ParseTheme(string(t)); err != nil {
		return err
	}
	if err := o.cfg.Store.SaveTheme(t); err != nil {
		return fmt.Errorf("saving theme: %w", err)
	}
	o.mu.Lock()
	o.theme = t
	o.mu.Unlock()
	return nil
}

// Theme returns the current theme.
func (o *Orchestrator) Theme() storage.Theme {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.theme
}

// Settings returns the current settings.
func (o *Orchestrator) Settings() Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Settings{
		CaptureIntervalSeconds: o.captureInterval,
		ReportIntervalMinutes:  o.reportInterval,
		Theme:                  o.theme,
	}
}

// GenerateReport synthesizes a report from the current observations now.
func (o *Orchestrator) GenerateReport() (journal.Report, error) {
	return o.reports.Generate(o.journal.Observations.Snapshot())
}

// Shutdown ends sharing without notifying and waits for timer-started
// captures and reports to finish. Cancel BaseContext first so model calls
// return promptly.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.teardownLocked()
	o.mu.Unlock()

	o.captures.Wait()
	o.reports.Wait()
}
