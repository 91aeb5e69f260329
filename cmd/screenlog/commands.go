package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kalambet/screenlog/internal/api"
	"github.com/kalambet/screenlog/internal/config"
	"github.com/kalambet/screenlog/internal/journal"
	"github.com/kalambet/screenlog/internal/session"
)

// --- share ---

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Start or stop screen sharing",
}

var shareStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start capturing the screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := shareStart(cmd.Context(), client)
		if err != nil {
			return err
		}
		printSuccess("Screen sharing started (every %ds)", st.CaptureIntervalSeconds)
		return nil
	},
}

var shareStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop capturing the screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/sharing/stop", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Screen sharing stopped")
		return nil
	},
}

func shareStart(ctx context.Context, client *apiClient) (session.Status, error) {
	var st session.Status
	resp, err := client.post(ctx, "/sharing/start", nil)
	if err != nil {
		return st, err
	}
	if err := decodeJSON(resp, &st); err != nil {
		return st, err
	}
	return st, nil
}

func init() {
	shareCmd.AddCommand(shareStartCmd)
	shareCmd.AddCommand(shareStopCmd)
}

// --- observations ---

var observationsCmd = &cobra.Command{
	Use:     "observations",
	Aliases: []string{"obs"},
	Short:   "List or delete screen observations",
}

var observationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent observations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("size")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		result, err := listObservations(cmd.Context(), client, page, size)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(result)
		}
		writeObservationsTable(cmd.OutOrStdout(), result.Observations)
		if pages := pageCount(result.Total, result.Size); pages > 1 {
			fmt.Fprintf(cmd.ErrOrStderr(), "page %d of %d (%d observations)\n", result.Page, pages, result.Total)
		}
		return nil
	},
}

var observationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an observation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/observations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted observation %s", args[0])
		return nil
	},
}

func listObservations(ctx context.Context, client *apiClient, page, size int) (api.ObservationPage, error) {
	var result api.ObservationPage
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	resp, err := client.get(ctx, "/observations?"+q.Encode())
	if err != nil {
		return result, err
	}
	err = decodeJSON(resp, &result)
	return result, err
}

func pageCount(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

func writeObservationsTable(out io.Writer, items []journal.Observation) {
	tw := newTable(out, 56, 5)
	tw.AppendHeader(table.Row{"Time", "ID", "Status", "Took", "Summary"})
	for _, o := range items {
		body := o.Text
		switch o.Status {
		case journal.StatusError:
			body = colorize(colorRed, o.ErrorMessage)
		case journal.StatusPending:
			body = colorize(colorCyan, "describing...")
		}
		tw.AppendRow(table.Row{
			formatMillis(o.Timestamp.UnixMilli()),
			shortID(o.ID),
			string(o.Status),
			formatDuration(o.Duration.Milliseconds()),
			oneLine(body),
		})
	}
	if len(items) == 0 {
		tw.AppendRow(table.Row{"-", "-", "-", "-", "(no observations)"})
	}
	tw.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	observationsListCmd.Flags().Int("page", 1, "page number, starting at 1")
	observationsListCmd.Flags().Int("size", 20, "observations per page")
	observationsListCmd.Flags().Bool("json", false, "print the raw JSON page")
	observationsCmd.AddCommand(observationsListCmd)
	observationsCmd.AddCommand(observationsDeleteCmd)
}

// --- reports ---

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List, show, generate or delete work reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var reports []journal.Report
		resp, err := client.get(cmd.Context(), "/reports")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &reports); err != nil {
			return err
		}

		if asJSON {
			return printJSON(reports)
		}
		writeReportsTable(cmd.OutOrStdout(), reports)
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show [id|latest]",
	Short: "Print a report's Markdown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := "latest"
		if len(args) == 1 {
			id = args[0]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var report journal.Report
		resp, err := client.get(cmd.Context(), "/reports/"+url.PathEscape(id))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), report)
	},
}

var reportsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a report from the current observations now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Generating report...")
		var report journal.Report
		resp, err := client.post(cmd.Context(), "/reports", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}
		if report.Status == journal.StatusError {
			return fmt.Errorf("report failed: %s", report.ErrorMessage)
		}
		printSuccess("Report %s generated in %s", shortID(report.ID), formatDuration(report.Duration.Milliseconds()))
		return writeReport(cmd.OutOrStdout(), report)
	},
}

var reportsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/reports/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted report %s", args[0])
		return nil
	},
}

func writeReport(out io.Writer, r journal.Report) error {
	switch r.Status {
	case journal.StatusError:
		_, err := fmt.Fprintf(out, "%s\n\n%s\n", colorize(colorBold, r.Title), colorize(colorRed, r.ErrorMessage))
		return err
	case journal.StatusPending:
		_, err := fmt.Fprintf(out, "%s\n\nstill generating\n", colorize(colorBold, r.Title))
		return err
	}
	md := strings.TrimRight(r.Markdown, "\n")
	_, err := fmt.Fprintln(out, md)
	return err
}

func writeReportsTable(out io.Writer, items []journal.Report) {
	tw := newTable(out, 50, 4)
	tw.AppendHeader(table.Row{"Time", "ID", "Status", "Title"})
	for _, r := range items {
		title := r.Title
		if r.Status == journal.StatusError {
			title = colorize(colorRed, oneLine(r.ErrorMessage))
		}
		tw.AppendRow(table.Row{
			formatMillis(r.Timestamp.UnixMilli()),
			shortID(r.ID),
			string(r.Status),
			title,
		})
	}
	if len(items) == 0 {
		tw.AppendRow(table.Row{"-", "-", "-", "(no reports)"})
	}
	tw.Render()
}

func init() {
	reportsListCmd.Flags().Bool("json", false, "print the raw JSON list")
	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsGenerateCmd)
	reportsCmd.AddCommand(reportsDeleteCmd)
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change capture and report settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var s session.Settings
		resp, err := client.get(cmd.Context(), "/settings")
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printSettings(cmd.OutOrStdout(), s)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting (capture-interval, report-interval, theme)",
	Long: `Change a setting.

Keys:
  capture-interval  seconds between captures, 1-120
  report-interval   minutes between automatic reports, 0-60 (0 disables)
  theme             light or dark`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := settingsPatch(args[0], args[1])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var s session.Settings
		resp, err := client.patch(cmd.Context(), "/settings", patch)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printSuccess("Settings updated")
		printSettings(cmd.OutOrStdout(), s)
		return nil
	},
}

func settingsPatch(key, value string) (api.SettingsPatch, error) {
	var patch api.SettingsPatch
	switch key {
	case "capture-interval", "captureIntervalSeconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return patch, fmt.Errorf("invalid capture interval %q: %w", value, err)
		}
		patch.CaptureIntervalSeconds = &n
	case "report-interval", "reportIntervalMinutes":
		n, err := strconv.Atoi(value)
		if err != nil {
			return patch, fmt.Errorf("invalid report interval %q: %w", value, err)
		}
		patch.ReportIntervalMinutes = &n
	case "theme":
		patch.Theme = &value
	default:
		return patch, fmt.Errorf("unknown setting %q (want capture-interval, report-interval or theme)", key)
	}
	return patch, nil
}

func printSettings(out io.Writer, s session.Settings) {
	report := "off"
	if s.ReportIntervalMinutes > 0 {
		report = fmt.Sprintf("every %dm", s.ReportIntervalMinutes)
	}
	fmt.Fprintf(out, "  %s = every %ds\n", colorize(colorBold, "capture-interval"), s.CaptureIntervalSeconds)
	fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, "report-interval"), report)
	fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, "theme"), s.Theme)
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all observations and reports and reset intervals",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL observations and reports. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/clear", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("All data cleared")
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deletion")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		if running() {
			printWarning("Restart screenlog for the change to take effect")
		}
		return nil
	},
}

// running reports whether a daemon PID file exists.
func running() bool {
	cfg, err := config.Load()
	if err != nil {
		return false
	}
	_, err = os.Stat(pidFilePath(cfg.Storage.DataDir))
	return err == nil
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
