package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/screenlog/internal/api"
	"github.com/kalambet/screenlog/internal/capture"
	"github.com/kalambet/screenlog/internal/config"
	"github.com/kalambet/screenlog/internal/engine"
	"github.com/kalambet/screenlog/internal/llm"
	"github.com/kalambet/screenlog/internal/notify"
	"github.com/kalambet/screenlog/internal/session"
	"github.com/kalambet/screenlog/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the screenlog daemon (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		share, _ := cmd.Flags().GetBool("share")
		return runServer(withMCP, share)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running screenlog daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show screenlog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
	startCmd.Flags().Bool("share", false, "start screen sharing immediately")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "screenlog.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func runServer(withMCP, share bool) error {
	// stdout belongs to the MCP transport when it is enabled.
	fmt.Fprintf(os.Stderr, "screenlog version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("screenlog is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("screenlog is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	eng, err := engine.Detect(engine.DetectConfig{OllamaBaseURL: cfg.Ollama.BaseURL})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}

	source, err := capture.ParseCommandSource(cfg.Capture.Command)
	if err != nil {
		return fmt.Errorf("capture command: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	feed := notify.NewFeed(0)
	orch := session.New(session.Config{
		Source:         source,
		Extractor:      capture.NewImageExtractor(cfg.Capture.MaxWidth, cfg.Capture.JPEGQuality),
		Provider:       llm.NewEngineProvider(eng, cfg.Ollama.Model, nil),
		ReportProvider: llm.NewEngineProvider(eng, cfg.Ollama.ReportModelName(), nil),
		Store:          store,
		Notifier:       notify.Multi{feed, notify.NewLog(logger)},
		Language:       cfg.Capture.Language,
		BaseContext:    gctx,
		Logger:         logger,
	})
	if err := orch.Init(ctx); err != nil {
		return fmt.Errorf("loading journal: %w", err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Session: orch,
			Feed:    feed,
			Token:   apiToken,
			Logger:  logger,
		}),
		BaseContext: func(_ net.Listener) context.Context {
			return gctx
		},
	}

	g.Go(func() error {
		checkModels(gctx, eng, cfg.Ollama.Model, cfg.Ollama.ReportModelName())
		return nil
	})

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "screenlog listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Session: orch, Version: version})
		stdio := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdio.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	if share {
		if err := orch.StartSharing(); err != nil {
			slog.Warn("screen sharing did not start", "error", err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		orch.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// checkModels verifies the engine and pulls missing models in parallel. The
// daemon keeps running on failure; ticks record the model as unavailable.
func checkModels(ctx context.Context, eng engine.Engine, models ...string) {
	var g errgroup.Group
	seen := make(map[string]bool, len(models))
	for _, m := range models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		g.Go(func() error {
			return engine.EnsureReady(ctx, eng, os.Stderr, m)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("model not ready", "error", err)
	}
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("screenlog is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop screenlog (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to screenlog (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	probe := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := probe.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ollamaResp, err := probe.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Model", "%s", cfg.Ollama.Model)
	printStatus("Report model", "%s", cfg.Ollama.ReportModelName())
	printStatus("Capture command", "%s", cfg.Capture.Command)

	if running {
		client, err := newAPIClient()
		if err == nil {
			if st, err := fetchStatus(ctx, client); err == nil {
				printSessionStatus(st)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func fetchStatus(ctx context.Context, client *apiClient) (session.Status, error) {
	var st session.Status
	resp, err := client.get(ctx, "/status")
	if err != nil {
		return st, err
	}
	err = decodeJSON(resp, &st)
	return st, err
}

func printSessionStatus(st session.Status) {
	sharing := "inactive"
	if st.Sharing {
		sharing = "active"
	}
	printStatus("Sharing", "%s", sharing)
	printStatus("Capture interval", "%ds", st.CaptureIntervalSeconds)
	if st.ReportIntervalMinutes == 0 {
		printStatus("Report interval", "off")
	} else {
		printStatus("Report interval", "%dm", st.ReportIntervalMinutes)
	}
	if st.NextCaptureAt != nil {
		printStatus("Next capture", "%s", formatMillis(*st.NextCaptureAt))
	}
	if st.NextReportAt != nil {
		printStatus("Next report", "%s", formatMillis(*st.NextReportAt))
	}
	printStatus("Observations", "%d (%d pending)", st.Observations, st.PendingObservations)
	printStatus("Reports", "%s", reportCountLabel(st.Reports, st.GeneratingReport))
}

func reportCountLabel(count int, generating bool) string {
	if generating {
		return fmt.Sprintf("%d (generating)", count)
	}
	return strconv.Itoa(count)
}
