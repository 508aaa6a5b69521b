package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/lingqdeck/internal/auth"
	"github.com/conorfennell/lingqdeck/internal/config"
	"github.com/conorfennell/lingqdeck/internal/lingq"
	"github.com/conorfennell/lingqdeck/internal/scheduler"
	"github.com/conorfennell/lingqdeck/internal/storage"
	"github.com/conorfennell/lingqdeck/internal/study"
	decksync "github.com/conorfennell/lingqdeck/internal/sync"
	"github.com/conorfennell/lingqdeck/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("lingqdeck failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Define and parse command-line flags
	fs := config.Flags("lingqdeck")
	user := fs.String("user", "", "name of the user that owns imported notes")
	addSource := fs.String("add-source", "", "add a deck source (directory or git URL) for --user")
	setLimit := fs.Int("set-limit", -1, "set the daily New-card limit of --user")
	setPassword := fs.Bool("set-password", false, "read a password for --user from the first line of stdin")
	doSync := fs.Bool("sync", false, "import all sources once")
	serve := fs.Bool("serve", false, "run the web server")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the database
	db, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	syncer := decksync.NewSyncer(db, cfg.ReposDir)

	// 3. Run the one-shot actions
	oneShot := *addSource != "" || *setLimit >= 0 || *setPassword
	if oneShot {
		if *user == "" {
			return errors.New("--add-source, --set-limit and --set-password need --user")
		}
		owner, err := db.UpsertUser(ctx, *user, cfg.NewCardLimit)
		if err != nil {
			return fmt.Errorf("resolve user %q: %w", *user, err)
		}
		if *addSource != "" {
			source, err := syncer.AddSource(ctx, owner.ID, *addSource)
			if err != nil {
				return err
			}
			slog.Info("source added", "id", source.ID, "type", source.Type, "path", source.Path)
		}
		if *setLimit >= 0 {
			if err := db.SetNewCardLimit(ctx, owner.ID, *setLimit); err != nil {
				return err
			}
			slog.Info("new card limit set", "user", owner.Name, "limit", *setLimit)
		}
		if *setPassword {
			password, err := readPassword(os.Stdin)
			if err != nil {
				return err
			}
			hash, salt, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			if err := db.SetPassword(ctx, owner.ID, hash, salt); err != nil {
				return err
			}
			slog.Info("password set", "user", owner.Name)
		}
	}

	if *doSync {
		if err := syncer.RunSync(ctx); err != nil {
			return err
		}
	}

	if *serve || (!oneShot && !*doSync) {
		return serveHTTP(ctx, cfg, db, syncer)
	}
	return nil
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if len(password) < auth.MinPasswordLen {
		return "", fmt.Errorf("password must be at least %d characters", auth.MinPasswordLen)
	}
	return password, nil
}

// serveHTTP runs the web server and the periodic import until ctx is done.
func serveHTTP(ctx context.Context, cfg *config.Config, db *storage.DB, syncer *decksync.Syncer) error {
	srv, err := web.NewServer(web.Deps{
		Vendor:       lingq.NewClient(cfg.LingqBaseURL, cfg.LingqTimeout),
		Notebooks:    study.NewService(db, cfg.Location()),
		Users:        db,
		Sources:      db,
		Syncer:       syncer,
		Reviews:      db,
		Sessions:     auth.NewSessions([]byte(cfg.SessionSecret), cfg.SessionTTL),
		NewCardLimit: cfg.NewCardLimit,
		SecureCookie: cfg.SecureCookie,
	})
	if err != nil {
		return err
	}

	if cfg.SyncInterval > 0 {
		sched := scheduler.New(cfg.Location(), syncer)
		if err := sched.Start(ctx, cfg.SyncInterval); err != nil {
			return err
		}
		defer sched.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
