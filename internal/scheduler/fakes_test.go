package scheduler

import (
	"context"
	"encoding/json"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/screenlog/internal/capture"
	"github.com/kalambet/screenlog/internal/journal"
	"github.com/kalambet/screenlog/internal/llm"
	"github.com/kalambet/screenlog/internal/notify"
)

type fakeStream struct {
	dead atomic.Bool
}

func (s *fakeStream) Live() bool { return !s.dead.Load() }
func (s *fakeStream) Stop()      { s.dead.Store(true) }
func (s *fakeStream) Grab(context.Context) (image.Image, error) {
	if s.dead.Load() {
		return nil, capture.ErrStreamInvalid
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

type fakeExtractor struct {
	err   error
	panic bool
	calls atomic.Int32
}

func (e *fakeExtractor) Extract(ctx context.Context, s capture.Stream) (capture.Frame, error) {
	e.calls.Add(1)
	if e.panic {
		panic("decoder exploded")
	}
	if e.err != nil {
		return capture.Frame{}, e.err
	}
	if _, err := s.Grab(ctx); err != nil {
		return capture.Frame{}, err
	}
	return capture.Frame{Data: []byte("jpeg"), MIMEType: "image/jpeg", CapturedAt: time.Now()}, nil
}

// fakeProvider answers prompts from a script. When the script runs out the
// last entry repeats.
type fakeProvider struct {
	mu          sync.Mutex
	unavailable bool
	replies     []string
	err         error
	delay       time.Duration
	gate        chan struct{}
	prompts     [][]llm.Part
	sessions    int
}

func (p *fakeProvider) setUnavailable(v bool) {
	p.mu.Lock()
	p.unavailable = v
	p.mu.Unlock()
}

func (p *fakeProvider) setReplies(r ...string) {
	p.mu.Lock()
	p.replies = r
	p.mu.Unlock()
}

func (p *fakeProvider) promptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func (p *fakeProvider) sessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions
}

func (p *fakeProvider) NewSession(_ context.Context, _ string, _ ...llm.Modality) (llm.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions++
	if p.unavailable {
		return nil, llm.ErrUnavailable
	}
	return &fakeSession{p: p}, nil
}

type fakeSession struct {
	p *fakeProvider
}

func (s *fakeSession) Prompt(ctx context.Context, parts ...llm.Part) (string, error) {
	p := s.p
	p.mu.Lock()
	p.prompts = append(p.prompts, parts)
	delay, gate, err := p.delay, p.gate, p.err
	reply := ""
	if len(p.replies) > 0 {
		reply = p.replies[0]
		if len(p.replies) > 1 {
			p.replies = p.replies[1:]
		}
	}
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return reply, err
}

func (s *fakeSession) Close() error { return nil }

// memStore keeps every saved collection as JSON, the way the real store does.
type memStore struct {
	mu           sync.Mutex
	observations [][]byte
	reports      [][]byte
}

func (m *memStore) SaveObservations(items []journal.Observation) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.observations = append(m.observations, data)
	m.mu.Unlock()
	return nil
}

func (m *memStore) SaveReports(items []journal.Report) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.reports = append(m.reports, data)
	m.mu.Unlock()
	return nil
}

func (m *memStore) observationWrites() [][]journal.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]journal.Observation
	for _, data := range m.observations {
		var items []journal.Observation
		json.Unmarshal(data, &items)
		out = append(out, items)
	}
	return out
}

func (m *memStore) lastObservations() []journal.Observation {
	w := m.observationWrites()
	if len(w) == 0 {
		return nil
	}
	return w[len(w)-1]
}

func (m *memStore) reportWriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) count(level notify.Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notes {
		if x.Level == level {
			n++
		}
	}
	return n
}

type captureFixture struct {
	journal   *journal.Journal
	extractor *fakeExtractor
	provider  *fakeProvider
	store     *memStore
	notifier  *recordingNotifier
	sched     *CaptureScheduler
}

func newCaptureFixture() *captureFixture {
	f := &captureFixture{
		journal:   journal.New(),
		extractor: &fakeExtractor{},
		provider:  &fakeProvider{replies: []string{"An editor window is open."}},
		store:     &memStore{},
		notifier:  &recordingNotifier{},
	}
	f.sched = NewCaptureScheduler(CaptureConfig{
		Extractor: f.extractor,
		Provider:  f.provider,
		Journal:   f.journal,
		Store:     f.store,
		Notifier:  f.notifier,
	})
	return f
}
