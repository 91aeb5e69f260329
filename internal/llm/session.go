// Package llm exposes the local language model as short-lived sessions: a
// session is opened with a fixed system instruction, prompted with text and
// image parts, and closed. An engine that is down or lacks the model yields
// ErrUnavailable, which callers treat as an expected outcome.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kalambet/screenlog/internal/engine"
)

// ErrUnavailable reports that no session can be created right now.
var ErrUnavailable = errors.New("language model unavailable")

// Modality is an input type a session declares it will receive.
type Modality string

const (
	Text  Modality = "text"
	Image Modality = "image"
)

// Part is one content block of a prompt. Exactly one of Text or Image is set.
type Part struct {
	Text  string
	Image []byte
}

// TextPart returns a text content block.
func TextPart(s string) Part { return Part{Text: s} }

// ImagePart returns an image content block holding encoded image bytes.
func ImagePart(b []byte) Part { return Part{Image: b} }

// Session is an open conversation with a fixed system instruction.
type Session interface {
	Prompt(ctx context.Context, parts ...Part) (string, error)
	Close() error
}

// Provider creates sessions.
type Provider interface {
	NewSession(ctx context.Context, instruction string, inputs ...Modality) (Session, error)
}

// EngineProvider opens sessions against a local inference engine.
type EngineProvider struct {
	eng   engine.Engine
	model string
	opts  *engine.Options
}

// NewEngineProvider returns a Provider for model on eng. opts may be nil.
func NewEngineProvider(eng engine.Engine, model string, opts *engine.Options) *EngineProvider {
	return &EngineProvider{eng: eng, model: model, opts: opts}
}

// NewSession verifies that the engine is reachable and has the model.
func (p *EngineProvider) NewSession(ctx context.Context, instruction string, inputs ...Modality) (Session, error) {
	if p.eng == nil || p.model == "" {
		return nil, fmt.Errorf("%w: no model configured", ErrUnavailable)
	}
	if !p.eng.IsRunning(ctx) {
		return nil, fmt.Errorf("%w: inference engine is not running", ErrUnavailable)
	}
	if !p.eng.HasModel(ctx, p.model) {
		return nil, fmt.Errorf("%w: model %s is not installed", ErrUnavailable, p.model)
	}

	acceptImages := false
	for _, m := range inputs {
		if m == Image {
			acceptImages = true
		}
	}

	return &engineSession{
		provider:     p,
		instruction:  instruction,
		acceptImages: acceptImages,
	}, nil
}

type engineSession struct {
	provider     *EngineProvider
	instruction  string
	acceptImages bool

	mu     sync.Mutex
	closed bool
}

func (s *engineSession) Prompt(ctx context.Context, parts ...Part) (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", errors.New("llm: prompt on closed session")
	}

	user := engine.Message{Role: "user"}
	var texts []string
	for _, p := range parts {
		switch {
		case p.Image != nil:
			if !s.acceptImages {
				return "", errors.New("llm: session was not opened for image input")
			}
			user.Images = append(user.Images, p.Image)
		case p.Text != "":
			texts = append(texts, p.Text)
		}
	}
	user.Content = strings.Join(texts, "\n\n")

	messages := []engine.Message{
		{Role: "system", Content: s.instruction},
		user,
	}

	out, err := s.provider.eng.Chat(ctx, s.provider.model, messages, s.provider.opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s *engineSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
