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
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/visnote/internal/api"
	"github.com/kalambet/visnote/internal/capture"
	"github.com/kalambet/visnote/internal/config"
	"github.com/kalambet/visnote/internal/credential"
	"github.com/kalambet/visnote/internal/daysummary"
	"github.com/kalambet/visnote/internal/notify"
	"github.com/kalambet/visnote/internal/pipeline"
	"github.com/kalambet/visnote/internal/records"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the visnote server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running visnote server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show visnote status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "visnote.pid")
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

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "visnote version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)})))

	apiToken, err := config.GetAPIToken()
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
			printWarning("visnote is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("visnote is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, ready, err := newInference(cfg)
	if err != nil {
		return err
	}
	if err := ready(ctx, os.Stderr); err != nil {
		return err
	}

	arc, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := arc.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing archive: %v\n", err)
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	feed := notify.NewFeed(0)
	notifier := notify.Multi{feed, notify.Log{Logger: slog.Default()}}
	creds := credential.Static(cfg.Archive.Token)
	store := records.NewStore(nil)

	ledger := records.NewLedger(store, arc, creds, notifier)
	if err := ledger.Load(ctx); err != nil {
		printWarning("starting with an empty note list: %v", err)
	} else {
		slog.Info("notes loaded", "count", store.Len(), "archive", cfg.Archive.Backend)
	}

	proc := pipeline.NewProcessor(pipeline.Deps{
		Queue:       capture.NewQueue(),
		Store:       store,
		Inference:   svc,
		Archive:     arc,
		Credentials: creds,
		Notifier:    notifier,
		Observer: func(from, to pipeline.State) {
			slog.Debug("pipeline state", "from", from.String(), "to", to.String())
		},
	})

	deps := api.Deps{
		Processor: proc,
		Ledger:    ledger,
		Days:      daysummary.New(store, svc, loc),
		Feed:      feed,
		Token:     apiToken,
		Logger:    slog.Default(),
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConns)
	}

	srv := &http.Server{
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		proc.Run(gctx)
		return nil
	})

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "visnote listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
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
		printError("visnote is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop visnote (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to visnote (PID %d)", pid)
	return nil
}

// serverStatus mirrors the /status response.
type serverStatus struct {
	Pipeline struct {
		State               string `json:"state"`
		QueueLength         int    `json:"queue_length"`
		Processed           uint64 `json:"processed"`
		Committed           uint64 `json:"committed"`
		GenerationFailures  uint64 `json:"generation_failures"`
		PersistenceFailures uint64 `json:"persistence_failures"`
		PreconditionDrops   uint64 `json:"precondition_drops"`
	} `json:"pipeline"`
	Notes int `json:"notes"`
	Day   struct {
		Day    string `json:"day"`
		Status string `json:"status"`
	} `json:"day"`
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
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

	switch cfg.Inference.Backend {
	case "ollama":
		if r, err := client.Get(cfg.Ollama.BaseURL + "/api/version"); err != nil {
			printStatus("Ollama", "not running")
		} else {
			r.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
		printStatus("Vision model", "%s", cfg.Ollama.VisionModel)
		printStatus("Text model", "%s", cfg.Ollama.TextModel)
	case "openrouter":
		printStatus("Inference", "OpenRouter")
		printStatus("Vision model", "%s", cfg.Proxy.VisionModel)
		printStatus("Text model", "%s", cfg.Proxy.TextModel)
	}
	printStatus("Archive", "%s (%s)", cfg.Archive.Backend, cfg.Archive.Name)

	if running {
		if token, err := config.GetAPIToken(); err == nil {
			if r, err := apiGet(client, serverURL+"/status", token); err == nil {
				var st serverStatus
				if decodeJSON(r, &st) == nil {
					printPipelineStatus(st)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func printPipelineStatus(st serverStatus) {
	printStatus("Notes", "%d", st.Notes)
	printStatus("Pipeline", "%s, %d queued", st.Pipeline.State, st.Pipeline.QueueLength)
	printStatus("Processed", "%d (%d saved, %d failed, %d not saved, %d dropped)",
		st.Pipeline.Processed, st.Pipeline.Committed, st.Pipeline.GenerationFailures,
		st.Pipeline.PersistenceFailures, st.Pipeline.PreconditionDrops)
	if st.Day.Day != "" {
		printStatus("Selected day", "%s (%s)", st.Day.Day, st.Day.Status)
	}
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
