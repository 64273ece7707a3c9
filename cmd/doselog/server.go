package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

	"github.com/kalambet/doselog/internal/api"
	"github.com/kalambet/doselog/internal/clock"
	"github.com/kalambet/doselog/internal/config"
	"github.com/kalambet/doselog/internal/remote"
	"github.com/kalambet/doselog/internal/session"
	"github.com/kalambet/doselog/internal/status"
	"github.com/kalambet/doselog/internal/storage"
	"github.com/kalambet/doselog/internal/syncer"
	"github.com/kalambet/doselog/internal/track"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the doselog server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running doselog server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show doselog system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "doselog.pid")
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

func logLevelFrom(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "doselog version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevelFrom(cfg.Log.Level),
	})))

	// Write PID file. Check if the server is already running via the health
	// endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("doselog is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("doselog is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System()

	store, err := storage.Open(cfg.Storage.DataDir, clk)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	sess := session.New(config.Dir())
	pub := status.NewPublisher()
	unsubscribe := pub.Subscribe(func(s status.Status) {
		slog.Debug("sync status changed", "kind", s.Kind, "message", s.Message)
	})
	defer unsubscribe()

	// The replicator is always built; the lifecycle manager gates every sync
	// on the session, so a logged-out server never touches the remote.
	creds, credsErr := sess.Credentials()
	remoteClient := remote.NewClient(cfg.Remote.BaseURL, creds.Token, nil)
	replicator := syncer.NewReplicator(store, remoteClient, pub, clk, syncer.DefaultBatchSize)
	manager := syncer.NewManager(sess, replicator, cfg.Sync.IntervalDuration(), cfg.Sync.ShutdownTimeoutDuration())

	if credsErr != nil {
		slog.Info("not logged in; sync disabled", "hint", "run `doselog login`")
	}

	var trigger api.SyncTrigger
	if sess.IsLoggedIn() {
		trigger = replicator
	}

	deps := api.AppDeps{
		Track:  track.NewService(store, clk),
		Store:  store,
		Status: pub,
		Syncer: trigger,
		Clock:  clk,
		Token:  cfg.Server.APIToken,
		UserID: creds.UserID,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewAppHandler(deps),
	}

	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))

	// Startup sync, HTTP + MCP servers, background sync, and a final
	// shutdown sync all hang off the signal context.
	return manager.RunWithSync(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			slog.Info("doselog listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
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

		return g.Wait()
	})
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
		printError("doselog is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	// SIGTERM gives the server its shutdown sync before exit.
	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop doselog (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to doselog (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	sess := session.New(config.Dir())
	if sess.IsLoggedIn() {
		printStatus("Account", "logged in")
	} else {
		printStatus("Account", "logged out")
	}

	if running {
		apiC := &apiClient{baseURL: serverURL, token: cfg.Server.APIToken, httpClient: client}
		var st struct {
			Display string `json:"display"`
			Pending int    `json:"pending"`
		}
		if resp, err := apiC.get(ctx, "/sync/status"); err == nil {
			if decodeJSON(resp, &st) == nil {
				printStatus("Sync", "%s", st.Display)
				printStatus("Pending changes", "%d", st.Pending)
			}
		}
	}

	printStatus("Remote", "%s", cfg.Remote.BaseURL)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
