package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/collabhq/collabd/internal/api"
	"github.com/collabhq/collabd/internal/config"
	"github.com/collabhq/collabd/internal/db"
	"github.com/collabhq/collabd/internal/db/driver"
)

const (
	sessionSweepInterval = time.Minute
	sessionStaleAfter    = 5 * time.Minute
	tempSweepInterval    = time.Hour
	tempMaxAge           = 24 * time.Hour
)

// newServeCmd creates the serve command for the platform server
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the platform server",
		Long: `Start the collabd API and realtime server.

The server provides REST endpoints and a WebSocket relay for:
  • Project, task, and file management
  • Live presence, cursors, and document edits
  • AI agent executions

Example:
  collabd serve                 # Start on the configured address
  collabd serve --addr :3000    # Start on a custom address`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(loadConfigPath())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr, _ = cmd.Flags().GetString("addr")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			logger := newLogger()
			adb, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = adb.Close() }()

			if err := adb.Seed(); err != nil {
				return fmt.Errorf("seed database: %w", err)
			}

			server, err := api.New(cfg, adb, logger)
			if err != nil {
				return err
			}

			if !quiet {
				printBanner(cfg)
			}

			// Handle graceful shutdown
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.StartContext(ctx)
			})
			g.Go(func() error {
				return sweepSessions(ctx, adb, logger)
			})
			g.Go(func() error {
				return sweepTempUploads(ctx, server, logger)
			})
			return g.Wait()
		},
	}

	cmd.Flags().String("addr", ":4000", "address to listen on")

	return cmd
}

// newLogger builds the process logger. Terminals get human-readable
// output; everything else gets JSON for log shippers.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// openDatabase opens the configured store backend and applies migrations.
func openDatabase(cfg *config.Config) (*db.AppDB, error) {
	dialect, err := driver.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		return nil, err
	}

	if dialect == driver.DialectSQLite {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	return db.OpenAppWithDialect(cfg.Database.DSN, dialect)
}

// sweepSessions periodically removes presence rows for connections that
// went offline and never came back.
func sweepSessions(ctx context.Context, adb *db.AppDB, logger *slog.Logger) error {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := adb.SweepStaleSessions(sessionStaleAfter)
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("swept stale sessions", "count", n)
			}
		}
	}
}

// sweepTempUploads periodically deletes abandoned files from the
// temp upload directory.
func sweepTempUploads(ctx context.Context, server *api.Server, logger *slog.Logger) error {
	ticker := time.NewTicker(tempSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := server.Uploads().CleanupTemp(tempMaxAge); err != nil {
				logger.Warn("temp upload cleanup failed", "error", err)
			}
		}
	}
}

func printBanner(cfg *config.Config) {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))
	subtle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	fmt.Println(title.Render("collabd " + api.Version))
	fmt.Println(subtle.Render(fmt.Sprintf("listening on %s (%s store)", cfg.Addr, cfg.Database.Dialect)))
	fmt.Println(subtle.Render("Press Ctrl+C to stop"))
}
