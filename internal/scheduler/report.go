package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/screenlog/internal/journal"
	"github.com/kalambet/screenlog/internal/llm"
	"github.com/kalambet/screenlog/internal/notify"
)

// ErrNoObservations is returned by Generate when there is nothing to report on.
var ErrNoObservations = errors.New("no observations to report on")

// ReportStore persists terminal reports.
type ReportStore interface {
	SaveReports(items []journal.Report) error
}

// ReportConfig holds the collaborators of a ReportScheduler.
type ReportConfig struct {
	Provider    llm.Provider
	Journal     *journal.Journal
	Store       ReportStore
	Notifier    notify.Notifier
	Language    string
	BaseContext context.Context
	Logger      *slog.Logger
}

// ReportScheduler synthesizes reports from observations, on a timer and
// on demand.
type ReportScheduler struct {
	cfg    ReportConfig
	logger *slog.Logger

	mu    sync.Mutex
	loop  *loop
	ticks sync.WaitGroup

	inFlight atomic.Int32
}

// NewReportScheduler returns a stopped scheduler.
func NewReportScheduler(cfg ReportConfig) *ReportScheduler {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportScheduler{cfg: cfg, logger: logger}
}

// Start arms the auto-report timer. An interval <= 0 disables it. A
// running timer is replaced with no carryover.
func (s *ReportScheduler) Start(interval time.Duration, getObservations func() []journal.Observation, onReport func(journal.Report)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		s.loop.Stop()
		s.loop = nil
	}
	if interval <= 0 || getObservations == nil {
		return
	}

	l := newLoop(interval, &s.ticks)
	l.start(func() {
		obs := getObservations()
		if len(obs) == 0 {
			s.logger.Debug("auto report skipped, no observations")
			return
		}
		r := s.run(obs, true)
		if onReport != nil {
			onReport(r)
		}
	})
	s.loop = l
	s.logger.Debug("report scheduler started", "interval", interval)
}

// Stop disarms the auto-report timer. Idempotent.
func (s *ReportScheduler) Stop() {
	s.mu.Lock()
	l := s.loop
	s.loop = nil
	s.mu.Unlock()
	if l != nil {
		l.Stop()
		s.logger.Debug("report scheduler stopped")
	}
}

// Wait blocks until timer-started reports have finished. Call it after Stop.
func (s *ReportScheduler) Wait() {
	s.ticks.Wait()
}

// Running reports whether the auto-report timer is armed.
func (s *ReportScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}

// NextTick returns when the next auto report is due, or zero when disarmed.
func (s *ReportScheduler) NextTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop == nil {
		return time.Time{}
	}
	return s.loop.Next()
}

// Generating reports whether any report request is in flight.
func (s *ReportScheduler) Generating() bool {
	return s.inFlight.Load() > 0
}

// Generate produces a report from obs immediately. It refuses with
// ErrNoObservations, and tells the user, when obs is empty.
func (s *ReportScheduler) Generate(obs []journal.Observation) (journal.Report, error) {
	if len(obs) == 0 {
		s.cfg.Notifier.Notify(notify.Error("No observations yet", "Start sharing and let some captures accumulate first."))
		return journal.Report{}, ErrNoObservations
	}
	return s.run(obs, false), nil
}

func (s *ReportScheduler) run(obs []journal.Observation, auto bool) journal.Report {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	j := s.cfg.Journal
	pending := journal.NewReport(time.Now())
	j.Reports.Prepend(pending)
	start := time.Now()

	markdown, err := s.synthesize(s.cfg.BaseContext, obs)
	if errors.Is(err, context.Canceled) && s.cfg.BaseContext.Err() != nil {
		j.Reports.Remove(pending.ID)
		s.logger.Debug("report abandoned at shutdown", "id", pending.ID)
		pending.Status = journal.StatusError
		pending.ErrorMessage = err.Error()
		return pending
	}
	elapsed := time.Since(start)
	unavailable := errors.Is(err, llm.ErrUnavailable) || (err == nil && markdown == "")

	resolved := pending
	found := j.Reports.Resolve(pending.ID, func(r *journal.Report) {
		r.Duration = elapsed
		switch {
		case unavailable:
			r.Status = journal.StatusError
			r.ErrorMessage = UnavailableReportMessage
		case err != nil:
			r.Status = journal.StatusError
			r.ErrorMessage = err.Error()
		default:
			r.Status = journal.StatusSuccess
			r.Markdown = markdown
		}
		resolved = *r
	})
	if !found {
		s.logger.Debug("report removed before resolution", "id", pending.ID)
		return resolved
	}

	if s.cfg.Store != nil {
		if perr := j.Reports.Sync(s.cfg.Store.SaveReports); perr != nil {
			s.logger.Error("persisting reports", "error", perr)
		}
	}

	what := "Report generated"
	if auto {
		what = "Report generated automatically"
	}
	if resolved.Status == journal.StatusSuccess {
		s.logger.Info("report generated", "id", resolved.ID, "auto", auto, "observations", len(obs), "duration", elapsed)
		s.cfg.Notifier.Notify(notify.Success(what, ""))
	} else {
		s.logger.Warn("report failed", "id", resolved.ID, "auto", auto, "error", resolved.ErrorMessage)
		title := "Report generation failed"
		if auto {
			title = "Automatic report generation failed"
		}
		s.cfg.Notifier.Notify(notify.Error(title, resolved.ErrorMessage))
	}
	return resolved
}

func (s *ReportScheduler) synthesize(ctx context.Context, obs []journal.Observation) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("report generation panicked: %v", r)
		}
	}()

	if s.cfg.Provider == nil {
		return "", llm.ErrUnavailable
	}
	sess, err := s.cfg.Provider.NewSession(ctx, reportInstruction(s.cfg.Language), llm.Text)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	out, err := sess.Prompt(ctx, llm.TextPart(reportPrompt(obs)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
