package config

type Config struct {
	Server  ServerConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	Capture CaptureConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL string
	// Model must accept image input; it describes frames and writes reports
	// unless ReportModel is set.
	Model       string
	ReportModel string
}

type StorageConfig struct {
	DataDir string
}

type CaptureConfig struct {
	// Command grabs one screenshot. A "{out}" argument is replaced with a
	// temporary file path; without it the image is read from stdout.
	Command     string
	MaxWidth    int
	JPEGQuality int
	Language    string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "qwen2.5vl",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Capture: CaptureConfig{
			Command:     defaultCaptureCommand(),
			MaxWidth:    720,
			JPEGQuality: 60,
			Language:    "English",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ReportModelName returns the model used for report synthesis, falling back to
// the observation model.
func (c OllamaConfig) ReportModelName() string {
	if c.ReportModel != "" {
		return c.ReportModel
	}
	return c.Model
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.screenlog.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/screenlog/config.json.
//
// Environment variables (SCREENLOG_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	clampCapture(&cfg.Capture)

	return cfg, nil
}

func clampCapture(c *CaptureConfig) {
	if c.MaxWidth <= 0 {
		c.MaxWidth = 720
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		c.JPEGQuality = 60
	}
	if c.Language == "" {
		c.Language = "English"
	}
}
