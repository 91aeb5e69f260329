// Package scheduler runs the repeating capture and report timers and the
// pending-to-terminal lifecycle of each request they create.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/screenlog/internal/capture"
	"github.com/kalambet/screenlog/internal/journal"
	"github.com/kalambet/screenlog/internal/llm"
	"github.com/kalambet/screenlog/internal/notify"
)

// ObservationStore persists terminal observations.
type ObservationStore interface {
	SaveObservations(items []journal.Observation) error
}

// CaptureConfig holds the collaborators of a CaptureScheduler.
type CaptureConfig struct {
	Extractor capture.Extractor
	Provider  llm.Provider
	Journal   *journal.Journal
	Store     ObservationStore
	Notifier  notify.Notifier
	Language  string
	// BaseContext bounds model calls. In-flight ticks outlive Stop but not
	// the cancellation of this context.
	BaseContext context.Context
	Logger      *slog.Logger
}

// CaptureScheduler turns a live stream into observations on a timer.
type CaptureScheduler struct {
	cfg    CaptureConfig
	logger *slog.Logger

	mu    sync.Mutex
	loop  *loop
	ticks sync.WaitGroup

	// unavailableNotified suppresses repeat "model unavailable" notices
	// until the next success.
	noticeMu            sync.Mutex
	unavailableNotified bool
}

// NewCaptureScheduler returns a stopped scheduler.
func NewCaptureScheduler(cfg CaptureConfig) *CaptureScheduler {
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
	return &CaptureScheduler{cfg: cfg, logger: logger}
}

// Start arms the timer. The first tick fires after interval, then every
// interval. A running timer is replaced with no carryover.
// onObservation receives each resolved observation; onStreamLost is called
// at most once, after the scheduler has stopped itself because the stream
// ended.
func (s *CaptureScheduler) Start(interval time.Duration, stream capture.Stream, onObservation func(journal.Observation), onStreamLost func()) {
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		s.loop.Stop()
	}

	var lostOnce sync.Once
	l := newLoop(interval, &s.ticks)
	l.start(func() {
		s.Tick(stream, onObservation, func() {
			lostOnce.Do(func() {
				s.stopLoop(l)
				if onStreamLost != nil {
					onStreamLost()
				}
			})
		})
	})
	s.loop = l
	s.logger.Debug("capture scheduler started", "interval", interval)
}

// Stop disarms the timer. In-flight ticks keep running; see Wait. Idempotent.
func (s *CaptureScheduler) Stop() {
	s.mu.Lock()
	l := s.loop
	s.loop = nil
	s.mu.Unlock()
	if l != nil {
		l.Stop()
		s.logger.Debug("capture scheduler stopped")
	}
}

// Wait blocks until timer-started ticks have finished. Call it after Stop,
// never from a tick.
func (s *CaptureScheduler) Wait() {
	s.ticks.Wait()
}

// stopLoop stops l only if it is still the armed loop.
func (s *CaptureScheduler) stopLoop(l *loop) {
	s.mu.Lock()
	if s.loop == l {
		s.loop = nil
	}
	s.mu.Unlock()
	l.Stop()
}

// Running reports whether the timer is armed.
func (s *CaptureScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}

// NextTick returns when the next capture is due, or zero when stopped.
func (s *CaptureScheduler) NextTick() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop == nil {
		return time.Time{}
	}
	return s.loop.Next()
}

// Tick performs one capture synchronously.
func (s *CaptureScheduler) Tick(stream capture.Stream, onObservation func(journal.Observation), onStreamLost func()) {
	if stream == nil || !stream.Live() {
		if onStreamLost != nil {
			onStreamLost()
		}
		return
	}

	ctx := s.cfg.BaseContext
	j := s.cfg.Journal
	pending := journal.NewObservation(time.Now())
	j.Observations.Prepend(pending)
	prior := j.Recent(contextSize, pending.ID)
	start := time.Now()

	text, err := s.describe(ctx, stream, prior)
	if errors.Is(err, capture.ErrStreamInvalid) {
		j.Observations.Remove(pending.ID)
		s.logger.Info("capture stream ended")
		if onStreamLost != nil {
			onStreamLost()
		}
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		j.Observations.Remove(pending.ID)
		s.logger.Debug("capture abandoned at shutdown", "id", pending.ID)
		return
	}

	elapsed := time.Since(start)
	unavailable := errors.Is(err, llm.ErrUnavailable) || (err == nil && text == "")

	var resolved journal.Observation
	found := j.Observations.Resolve(pending.ID, func(o *journal.Observation) {
		o.Duration = elapsed
		switch {
		case unavailable:
			o.Status = journal.StatusError
			o.ErrorMessage = UnavailableObservationMessage
		case err != nil:
			o.Status = journal.StatusError
			o.ErrorMessage = err.Error()
		default:
			o.Status = journal.StatusSuccess
			o.Text = text
		}
		resolved = *o
	})
	if !found {
		// Deleted or cleared while in flight; nothing to record.
		s.logger.Debug("observation removed before resolution", "id", pending.ID)
		return
	}

	if s.cfg.Store != nil {
		if perr := j.Observations.Sync(s.cfg.Store.SaveObservations); perr != nil {
			s.logger.Error("persisting observations", "error", perr)
		}
	}

	switch {
	case unavailable:
		s.logger.Warn("observation failed", "id", resolved.ID, "reason", "model unavailable", "error", err)
		s.noticeMu.Lock()
		first := !s.unavailableNotified
		s.unavailableNotified = true
		s.noticeMu.Unlock()
		if first {
			s.cfg.Notifier.Notify(notify.Error("Capture failed", UnavailableObservationMessage))
		}
	case err != nil:
		s.logger.Warn("observation failed", "id", resolved.ID, "error", err)
		s.cfg.Notifier.Notify(notify.Error("Capture failed", err.Error()))
	default:
		s.noticeMu.Lock()
		s.unavailableNotified = false
		s.noticeMu.Unlock()
		s.logger.Debug("observation recorded", "id", resolved.ID, "duration", elapsed)
	}

	if onObservation != nil {
		onObservation(resolved)
	}
}

// describe extracts a frame and asks the model about it. Panics are
// returned as errors so that nothing escapes a tick.
func (s *CaptureScheduler) describe(ctx context.Context, stream capture.Stream, prior []journal.Observation) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture tick panicked: %v", r)
		}
	}()

	if s.cfg.Extractor == nil || s.cfg.Provider == nil {
		return "", llm.ErrUnavailable
	}

	frame, err := s.cfg.Extractor.Extract(ctx, stream)
	if err != nil {
		if errors.Is(err, capture.ErrStreamInvalid) {
			return "", err
		}
		return "", fmt.Errorf("extracting frame: %w", err)
	}

	sess, err := s.cfg.Provider.NewSession(ctx, captureInstruction(s.cfg.Language), llm.Text, llm.Image)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	out, err := sess.Prompt(ctx, llm.TextPart(capturePrompt(prior)), llm.ImagePart(frame.Data))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
