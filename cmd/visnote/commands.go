package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/visnote/internal/archive"
	"github.com/kalambet/visnote/internal/config"
)

// --- capture ---

var captureCmd = &cobra.Command{
	Use:   "capture <image-file>",
	Short: "Queue an image to be described and saved as a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataURL, err := readImageDataURL(args[0])
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/captures", map[string]string{"image": dataURL})
		if err != nil {
			return err
		}

		var result struct {
			JobID       string `json:"job_id"`
			QueueLength int    `json:"queue_length"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Image captured! Job %s queued (%d waiting)", result.JobID, result.QueueLength)
		return nil
	},
}

// readImageDataURL loads an image file as a base64 data URL.
func readImageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image %s is empty", path)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s does not look like an image (%s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// --- notes ---

type noteView struct {
	ID        string `json:"id"`
	Image     string `json:"image,omitempty"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List, show, delete, export or import notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		day, _ := cmd.Flags().GetString("day")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("images", "false")
		q.Set("limit", fmt.Sprint(limit))
		if day != "" {
			q.Set("day", day)
		}
		resp, err := client.get(cmd.Context(), "/notes?"+q.Encode())
		if err != nil {
			return err
		}

		var notes []noteView
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}
		printNotes(cmd.OutOrStdout(), notes)
		return nil
	},
}

func printNotes(w io.Writer, notes []noteView) {
	if len(notes) == 0 {
		fmt.Fprintln(w, "No notes found.")
		return
	}
	for _, n := range notes {
		created := n.CreatedAt
		if t, err := time.Parse(time.RFC3339, n.CreatedAt); err == nil {
			created = t.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s  %s  %s\n",
			colorize(colorCyan, n.ID),
			colorize(colorDim, created),
			truncate(strings.ReplaceAll(n.Text, "\n", " "), 80),
		)
	}
}

var notesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withImage, _ := cmd.Flags().GetBool("image")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/notes/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var n noteView
		if err := decodeJSON(resp, &n); err != nil {
			return err
		}
		if !withImage {
			n.Image = ""
		}
		return writeIndented(cmd.OutOrStdout(), n)
	},
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/notes/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Note deleted")
		return nil
	},
}

var notesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all notes as a JSON document",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		n, err := exportNotes(cmd.Context(), client, w)
		if err != nil {
			return err
		}
		if output != "" {
			printSuccess("Exported %d notes to %s", n, output)
		}
		return nil
	},
}

func exportNotes(ctx context.Context, client *apiClient, w io.Writer) (int, error) {
	resp, err := client.get(ctx, "/notes")
	if err != nil {
		return 0, err
	}
	var notes []noteView
	if err := decodeJSON(resp, &notes); err != nil {
		return 0, err
	}
	if notes == nil {
		notes = []noteView{}
	}
	return len(notes), writeIndented(w, notes)
}

var notesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace all notes with the contents of an exported document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This replaces ALL notes in the archive. Use --confirm to proceed.")
			return nil
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/notes", data)
		if err != nil {
			return err
		}
		var result struct {
			Count int `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Imported %d notes", result.Count)
		return nil
	},
}

func init() {
	notesListCmd.Flags().Int("limit", 20, "maximum number of notes to list")
	notesListCmd.Flags().String("day", "", "only notes from this day (YYYY-MM-DD)")
	notesShowCmd.Flags().Bool("image", false, "include the image data URL")
	notesExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	notesImportCmd.Flags().Bool("confirm", false, "confirm replacing all notes")

	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesShowCmd)
	notesCmd.AddCommand(notesDeleteCmd)
	notesCmd.AddCommand(notesExportCmd)
	notesCmd.AddCommand(notesImportCmd)
}

// --- day ---

type dayView struct {
	Day        string `json:"day"`
	Status     string `json:"status"`
	NoteCount  int    `json:"note_count"`
	Summary    string `json:"summary"`
	Error      string `json:"error"`
	Generation uint64 `json:"generation"`
}

var dayCmd = &cobra.Command{
	Use:   "day [YYYY-MM-DD]",
	Short: "Summarize the notes of one day (default: today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date := time.Now().Format("2006-01-02")
		if len(args) == 1 {
			date = args[0]
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		view, err := summarizeDay(cmd.Context(), client, date, 500*time.Millisecond, timeout)
		if err != nil {
			return err
		}
		return printDay(cmd.OutOrStdout(), view)
	},
}

// summarizeDay selects date and polls until its summary settles.
func summarizeDay(ctx context.Context, client *apiClient, date string, poll, timeout time.Duration) (dayView, error) {
	resp, err := client.post(ctx, "/days/select", map[string]string{"date": date})
	if err != nil {
		return dayView{}, err
	}
	var view dayView
	if err := decodeJSON(resp, &view); err != nil {
		return dayView{}, err
	}
	gen := view.Generation

	deadline := time.Now().Add(timeout)
	for view.Status == "loading" {
		if time.Now().After(deadline) {
			return view, fmt.Errorf("summary for %s not ready after %s", date, timeout)
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-time.After(poll):
		}

		resp, err := client.get(ctx, "/days/summary")
		if err != nil {
			return view, err
		}
		if err := decodeJSON(resp, &view); err != nil {
			return view, err
		}
		if view.Generation != gen {
			return view, fmt.Errorf("another day was selected while waiting for %s", date)
		}
	}
	return view, nil
}

func printDay(w io.Writer, v dayView) error {
	switch v.Status {
	case "empty":
		fmt.Fprintf(w, "No notes on %s.\n", v.Day)
	case "failed":
		printError("Could not summarize %s: %s", v.Day, v.Error)
		return fmt.Errorf("summary failed")
	default:
		fmt.Fprintf(w, "%s (%d notes)\n\n%s\n", colorize(colorBold, v.Day), v.NoteCount, v.Summary)
	}
	return nil
}

func init() {
	dayCmd.Flags().Duration("timeout", 2*time.Minute, "how long to wait for the summary")
}

// --- notifications ---

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show recent notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/notifications?limit=%d", limit))
		if err != nil {
			return err
		}

		var items []struct {
			Level  string    `json:"level"`
			Title  string    `json:"title"`
			Detail string    `json:"detail"`
			At     time.Time `json:"at"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "No notifications.")
			return nil
		}
		for _, it := range items {
			fmt.Fprintf(out, "%s  %s  %s\n",
				colorize(colorDim, it.At.Local().Format("15:04:05")),
				colorize(levelColor(it.Level), it.Title),
				it.Detail,
			)
		}
		return nil
	},
}

func init() {
	notificationsCmd.Flags().Int("limit", 20, "maximum number of notifications")
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
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key>",
	Short: "Store a secret read from stdin in the platform secret store",
	Long: "Reads the value from stdin so it stays out of shell history.\n" +
		"Keys: " + strings.Join(config.SecretKeys(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), 64<<10))
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		if err := config.SetSecret(args[0], string(data)); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

var configHashTokenCmd = &cobra.Command{
	Use:   "hash-token <token>",
	Short: "Print a bcrypt hash for archive.token_hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := archive.HashToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSetSecretCmd)
	configCmd.AddCommand(configHashTokenCmd)
}
