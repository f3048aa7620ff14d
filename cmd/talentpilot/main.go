// Command talentpilot runs one job-application session: it discovers
// postings for the configured searches, filters them, drives the
// multi-step application form for each admitted posting, and records
// every attempt in the local history database.
//
// Exit codes: 0 the session ran to completion, 1 the session stopped
// early on a fatal session error (progress up to that point is saved),
// 2 the configuration is unusable.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/talentpilot/talentpilot/browser"
	"github.com/talentpilot/talentpilot/config"
	"github.com/talentpilot/talentpilot/discover"
	"github.com/talentpilot/talentpilot/filter"
	"github.com/talentpilot/talentpilot/history"
	"github.com/talentpilot/talentpilot/pipeline"
	"github.com/talentpilot/talentpilot/session"
	"github.com/talentpilot/talentpilot/submit"
)

const (
	exitOK      = 0
	exitPartial = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath    = flag.String("config", "config.yaml", "path to the settings file")
		answersPath   = flag.String("answers", "", "answer-set file (overrides answers_file from settings)")
		simulate      = flag.Bool("simulate", false, "force simulation mode regardless of settings")
		exportFormat  = flag.String("export", "", "write a history export (json or csv) and exit")
		exportOut     = flag.String("out", "", "export destination file (default stdout)")
		storePassword = flag.Bool("store-password", false, "read a password from stdin, store it in the OS keychain for the configured email, and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "talentpilot:", err)
		return exitConfig
	}
	if *simulate {
		cfg.SimulationMode = true
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if *storePassword {
		return storeCredential(cfg, logger)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		logger.Error("state dir not writable", "dir", cfg.StateDir, "error", err)
		return exitConfig
	}

	// One session at a time: concurrent runs would race on cookies,
	// the history database, and the submission limit.
	lock := flock.New(filepath.Join(cfg.StateDir, "talentpilot.lock"))
	held, err := lock.TryLock()
	if err != nil {
		logger.Error("state lock failed", "error", err)
		return exitConfig
	}
	if !held {
		logger.Error("another talentpilot session holds the state dir", "dir", cfg.StateDir)
		return exitConfig
	}
	defer lock.Unlock()

	store, err := history.Open(filepath.Join(cfg.StateDir, "history.db"), history.Config{
		RetryFailed: cfg.RetryFailedPolicy(),
		Logger:      logger,
	})
	if err != nil {
		logger.Error("history store open failed", "error", err)
		return exitConfig
	}
	defer store.Close()

	if *exportFormat != "" {
		return export(store, *exportFormat, *exportOut, logger)
	}

	answersFile := cfg.AnswersFile
	if *answersPath != "" {
		answersFile = *answersPath
	}
	answers, err := config.LoadAnswers(answersFile)
	if err != nil {
		logger.Error("answer set unusable", "file", answersFile, "error", err)
		return exitConfig
	}

	password, err := cfg.ResolvePassword()
	if err != nil {
		logger.Error("no usable credential", "account", cfg.Email, "error", err)
		return exitConfig
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bm := browser.NewManager(browser.Config{
		Headless: cfg.Headless,
		SlowMo:   cfg.SlowMo,
		Logger:   logger,
	})
	if err := bm.Start(ctx); err != nil {
		logger.Error("browser start failed", "error", err)
		return exitPartial
	}
	defer bm.Close()

	sess := session.NewManager(bm, session.Config{
		Email:      cfg.Email,
		Password:   password,
		StateDir:   cfg.StateDir,
		NavTimeout: cfg.NavTimeout,
		Logger:     logger,
	})
	if err := sess.EnsureAuthenticated(ctx); err != nil {
		logger.Error("login failed", "account", cfg.Email, "error", err)
		return exitPartial
	}

	listPage, err := sess.NewPage(ctx)
	if err != nil {
		logger.Error("listing page failed", "error", err)
		return exitPartial
	}
	defer listPage.Close()

	engine := submit.NewEngine(sess,
		submit.NewResolver(*answers, cfg),
		submit.NewResumePicker(cfg.PreferredResumeIndex, cfg.ResumeFilePath, logger),
		submit.Config{
			Simulation:      cfg.SimulationMode,
			RecoveryRetries: cfg.RecoveryRetries,
			NavTimeout:      cfg.NavTimeout,
			StepTimeout:     cfg.StepTimeout,
			FieldTimeout:    cfg.FieldTimeout,
			Logger:          logger,
		})

	orch := pipeline.New(pipeline.Config{
		Settings: cfg,
		Store:    store,
		Sessions: sess,
		Source: discover.NewListing(listPage, sess, discover.ListingConfig{
			NavTimeout: cfg.NavTimeout,
			Logger:     logger,
		}),
		Engine:   engine,
		Filters:  filter.NewChain(cfg.BlockedCompanies, cfg.BlockedTitles),
		Logger:   logger,
	})

	stats, runErr := orch.Run(ctx)
	if stats != nil {
		records, err := store.RecentSubmissions(context.Background(), 0)
		if err != nil {
			logger.Error("report query failed", "error", err)
		}
		if err := pipeline.WriteReport(os.Stdout, stats, records); err != nil {
			logger.Error("report write failed", "error", err)
		}
	}
	if runErr != nil {
		logger.Error("session ended early", "error", runErr)
		return exitPartial
	}
	return exitOK
}

// storeCredential reads a password from stdin and saves it in the OS
// keychain under the configured account email.
func storeCredential(cfg *config.Config, logger *slog.Logger) int {
	fmt.Fprintf(os.Stderr, "password for %s: ", cfg.Email)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error("password read failed", "error", err)
		return exitConfig
	}
	if err := cfg.StorePassword(strings.TrimSpace(line)); err != nil {
		logger.Error("keychain store failed", "account", cfg.Email, "error", err)
		return exitConfig
	}
	logger.Info("password stored in OS keychain", "account", cfg.Email)
	return exitOK
}

// export writes the full submission history in the requested format and
// maps failures to the exit codes of the main path.
func export(store *history.Store, format, out string, logger *slog.Logger) int {
	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			logger.Error("export destination not writable", "file", out, "error", err)
			return exitConfig
		}
		defer f.Close()
		w = f
	}

	var err error
	switch strings.ToLower(format) {
	case "json":
		err = store.ExportJSON(context.Background(), w)
	case "csv":
		err = store.ExportCSV(context.Background(), w)
	default:
		logger.Error("unknown export format", "format", format)
		return exitConfig
	}
	if err != nil {
		logger.Error("export failed", "format", format, "error", err)
		return exitPartial
	}
	return exitOK
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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
