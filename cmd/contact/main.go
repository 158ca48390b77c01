package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nazarhussain/contact-courier/internal/config"
	"github.com/nazarhussain/contact-courier/internal/hardening"
	"github.com/nazarhussain/contact-courier/internal/ledger"
	"github.com/nazarhussain/contact-courier/internal/logging"
	"github.com/nazarhussain/contact-courier/internal/meta"
	"github.com/nazarhussain/contact-courier/internal/remote"
	"github.com/nazarhussain/contact-courier/internal/storage"
	"github.com/nazarhussain/contact-courier/internal/submit"
	"github.com/nazarhussain/contact-courier/internal/validate"
)

const appName = "contact-courier"

var envFiles []string

// app is everything a command needs, built once from the environment.
type app struct {
	cfg       *config.Client
	logger    *slog.Logger
	closer    io.Closer
	store     *storage.File
	ledger    *ledger.Ledger
	validator *validate.Validator
	remote    *remote.Client
	meta      meta.Collector
	guard     *hardening.Guard
}

// newApp wires the collaborators. quiet keeps log lines off stderr, which
// the full-screen form owns.
func newApp(quiet bool) (*app, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if quiet {
		cfg.Log.Stderr = false
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	guard := hardening.New(hardening.Options{Enabled: cfg.Hardening, AllowConsole: cfg.AllowConsole})
	logger = guard.Logger(logger)

	path := cfg.LedgerFile
	if path == "" {
		if path, err = storage.DefaultPath(appName); err != nil {
			closer.Close()
			return nil, err
		}
	}
	store := storage.NewFile(path)

	v, err := validate.New(validate.WithReservedDomains(cfg.ReservedDomains))
	if err != nil {
		closer.Close()
		return nil, err
	}

	client := remote.New(cfg.VerifyURL(), cfg.MessageURL(),
		remote.WithTimeouts(cfg.VerifyTimeout, cfg.MessageTimeout),
		remote.WithSigningSecret(cfg.SigningSecret),
		remote.WithLogger(logger),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		closer:    closer,
		store:     store,
		ledger:    ledger.New(store, ledger.WithKeyPrefix(cfg.KeyPrefix), ledger.WithLogger(logger)),
		validator: v,
		remote:    client,
		meta:      meta.Collector{Page: cfg.PageURL},
		guard:     guard,
	}, nil
}

func (a *app) submitConfig() submit.Config {
	return submit.Config{
		Mode:        submit.ParseMode(a.cfg.Mode),
		Source:      a.cfg.Source,
		PageURL:     a.cfg.PageURL,
		Diagnostics: a.cfg.Diagnostics,
	}
}

func (a *app) Close() error { return a.closer.Close() }

var rootCmd = &cobra.Command{
	Use:   "contact",
	Short: "Contact form client for the landing page",
	Long: `contact sends a message through the contact worker, the same way the
landing page form does: captcha verification, then the message, with a
local quarantine after repeated sends.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the environment")
	rootCmd.AddCommand(tuiCmd, submitCmd, statusCmd, resetCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
