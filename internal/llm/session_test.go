package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/screenlog/internal/engine"
)

type mockEngine struct {
	running  bool
	models   map[string]bool
	response string
	err      error

	gotModel    string
	gotMessages []engine.Message
	gotOpts     *engine.Options
}

func (m *mockEngine) Chat(_ context.Context, model string, messages []engine.Message, opts *engine.Options) (string, error) {
	m.gotModel = model
	m.gotMessages = messages
	m.gotOpts = opts
	return m.response, m.err
}
func (m *mockEngine) IsRunning(_ context.Context) bool               { return m.running }
func (m *mockEngine) ListModels(_ context.Context) ([]string, error) { return nil, nil }
func (m *mockEngine) HasModel(_ context.Context, name string) bool   { return m.models[name] }
func (m *mockEngine) PullModel(_ context.Context, _ string, _ func(engine.PullProgress)) error {
	return nil
}

func TestNewSession_EngineDown(t *testing.T) {
	p := NewEngineProvider(&mockEngine{running: false}, "qwen2.5vl", nil)
	_, err := p.NewSession(context.Background(), "describe", Text, Image)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestNewSession_ModelMissing(t *testing.T) {
	p := NewEngineProvider(&mockEngine{running: true, models: map[string]bool{}}, "qwen2.5vl", nil)
	_, err := p.NewSession(context.Background(), "describe", Text)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestNewSession_NoModelConfigured(t *testing.T) {
	p := NewEngineProvider(&mockEngine{running: true}, "", nil)
	if _, err := p.NewSession(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSession_PromptBuildsMessages(t *testing.T) {
	eng := &mockEngine{
		running:  true,
		models:   map[string]bool{"qwen2.5vl": true},
		response: "  An editor shows main.go.\n",
	}
	opts := &engine.Options{Temperature: 0.2, MaxTokens: 200}
	p := NewEngineProvider(eng, "qwen2.5vl", opts)

	s, err := p.NewSession(context.Background(), "be literal", Text, Image)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	out, err := s.Prompt(context.Background(), TextPart("context"), ImagePart([]byte{0xff, 0xd8}), TextPart("describe"))
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if out != "An editor shows main.go." {
		t.Errorf("out = %q, want trimmed response", out)
	}
	if eng.gotModel != "qwen2.5vl" {
		t.Errorf("model = %q", eng.gotModel)
	}
	if len(eng.gotMessages) != 2 {
		t.Fatalf("got %d messages, want 2", len(eng.gotMessages))
	}
	if eng.gotMessages[0].Role != "system" || eng.gotMessages[0].Content != "be literal" {
		t.Errorf("system message = %+v", eng.gotMessages[0])
	}
	user := eng.gotMessages[1]
	if user.Content != "context\n\ndescribe" {
		t.Errorf("user content = %q", user.Content)
	}
	if len(user.Images) != 1 {
		t.Errorf("user images = %d, want 1", len(user.Images))
	}
	if eng.gotOpts != opts {
		t.Error("options were not forwarded")
	}
}

func TestSession_RejectsImageWithoutModality(t *testing.T) {
	eng := &mockEngine{running: true, models: map[string]bool{"m": true}}
	s, err := NewEngineProvider(eng, "m", nil).NewSession(context.Background(), "x", Text)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := s.Prompt(context.Background(), ImagePart([]byte{1})); err == nil {
		t.Fatal("expected error for image on a text-only session")
	}
}

func TestSession_PromptAfterClose(t *testing.T) {
	eng := &mockEngine{running: true, models: map[string]bool{"m": true}}
	s, err := NewEngineProvider(eng, "m", nil).NewSession(context.Background(), "x", Text)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Close()
	if _, err := s.Prompt(context.Background(), TextPart("hi")); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestSession_ChatErrorPropagates(t *testing.T) {
	eng := &mockEngine{running: true, models: map[string]bool{"m": true}, err: errors.New("boom")}
	s, err := NewEngineProvider(eng, "m", nil).NewSession(context.Background(), "x", Text)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if _, err := s.Prompt(context.Background(), TextPart("hi")); err == nil || err.Error() != "boom" {
		t.Fatalf("err = %v, want boom", err)
	}
}
