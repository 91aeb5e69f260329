package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

const outPlaceholder = "{out}"

// CommandSource captures the screen by running an external screenshot tool
// (screencapture, import, grim, ...). An argument equal to or containing
// "{out}" is replaced by a temporary file path the tool writes to; without
// one the image is read from the tool's stdout.
type CommandSource struct {
	args []string
}

// NewCommandSource returns a source running the given argv.
func NewCommandSource(args ...string) *CommandSource {
	return &CommandSource{args: args}
}

// ParseCommandSource splits a configured command line on whitespace.
func ParseCommandSource(cmdline string) (*CommandSource, error) {
	args := strings.Fields(cmdline)
	if len(args) == 0 {
		return nil, errors.New("capture command is empty")
	}
	return NewCommandSource(args...), nil
}

// Open checks the tool exists and takes a probe shot so that a denied
// screen-recording permission surfaces here as ErrCancelled rather than on
// the first tick.
func (c *CommandSource) Open(ctx context.Context) (Stream, error) {
	if len(c.args) == 0 {
		return nil, errors.New("capture command is empty")
	}
	if _, err := exec.LookPath(c.args[0]); err != nil {
		return nil, fmt.Errorf("capture tool %q not found: %w", c.args[0], err)
	}

	dir, err := os.MkdirTemp("", "screenlog-capture-*")
	if err != nil {
		return nil, fmt.Errorf("creating capture dir: %w", err)
	}

	s := &commandStream{args: c.args, dir: dir}
	s.stopWatch = context.AfterFunc(ctx, s.end)

	if _, err := s.Grab(ctx); err != nil {
		s.Stop()
		return nil, err
	}
	return s, nil
}

type commandStream struct {
	args      []string
	dir       string
	stopWatch func() bool

	mu      sync.Mutex
	ended   bool
	seq     int
	stopped sync.Once
}

func (s *commandStream) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

func (s *commandStream) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

func (s *commandStream) Stop() {
	s.stopped.Do(func() {
		s.end()
		if s.stopWatch != nil {
			s.stopWatch()
		}
		os.RemoveAll(s.dir)
	})
}

func (s *commandStream) Grab(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, ErrStreamInvalid
	}
	s.seq++
	out := filepath.Join(s.dir, fmt.Sprintf("frame-%d.img", s.seq))
	s.mu.Unlock()

	args := make([]string, len(s.args))
	usesFile := false
	for i, a := range s.args {
		if strings.Contains(a, outPlaceholder) {
			a = strings.ReplaceAll(a, outPlaceholder, out)
			usesFile = true
		}
		args[i] = a
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			s.end()
			return nil, ErrStreamInvalid
		}
		if isPermissionDenied(stderr.String()) {
			return nil, fmt.Errorf("%w: %s", ErrCancelled, strings.TrimSpace(stderr.String()))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("running %s: %w", args[0], err)
		}
		return nil, fmt.Errorf("running %s: %w: %s", args[0], err, msg)
	}

	data := stdout.Bytes()
	if usesFile {
		b, err := os.ReadFile(out)
		if err != nil {
			return nil, fmt.Errorf("reading capture output: %w", err)
		}
		os.Remove(out)
		data = b
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding capture output: %w", err)
	}
	return img, nil
}

func isPermissionDenied(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{"not permitted", "permission denied", "denied", "not authorized", "cancel"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
