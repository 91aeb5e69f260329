package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SCREENLOG_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "SCREENLOG_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "SCREENLOG_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "ollama.report_model", typ: kString, env: "SCREENLOG_OLLAMA_REPORT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ReportModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ReportModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SCREENLOG_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "capture.command", typ: kString, env: "SCREENLOG_CAPTURE_COMMAND",
		apply:   func(cfg *Config, v any) { cfg.Capture.Command = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.Command },
	},
	{
		key: "capture.max_width", typ: kInt, env: "SCREENLOG_CAPTURE_MAX_WIDTH",
		apply:   func(cfg *Config, v any) { cfg.Capture.MaxWidth = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.MaxWidth },
	},
	{
		key: "capture.jpeg_quality", typ: kInt, env: "SCREENLOG_CAPTURE_JPEG_QUALITY",
		apply:   func(cfg *Config, v any) { cfg.Capture.JPEGQuality = v.(int) },
		extract: func(cfg Config) any { return cfg.Capture.JPEGQuality },
	},
	{
		key: "capture.language", typ: kString, env: "SCREENLOG_CAPTURE_LANGUAGE",
		apply:   func(cfg *Config, v any) { cfg.Capture.Language = v.(string) },
		extract: func(cfg Config) any { return cfg.Capture.Language },
	},
	{
		key: "log.level", typ: kString, env: "SCREENLOG_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
