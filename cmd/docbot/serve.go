package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ent0n29/docbot/internal/app"
	"github.com/ent0n29/docbot/internal/config"
)

const banner = `
     _            _           _
  __| | ___   ___| |__   ___ | |_
 / _' |/ _ \ / __| '_ \ / _ \| __|
| (_| | (_) | (__| |_) | (_) | |_
 \__,_|\___/ \___|_.__/ \___/ \__|
`

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if addr, _ := cmd.Flags().GetString("addr"); strings.TrimSpace(addr) != "" {
				cfg.BindAddr = addr
			}
			quiet, _ := cmd.Flags().GetBool("quiet")
			return runServe(cfg, !quiet)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides APP_BIND_ADDR).")
	cmd.Flags().Bool("quiet", false, "Skip the startup banner.")
	return cmd
}

func runServe(cfg config.Config, showBanner bool) error {
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	built, err := app.Build(runCtx, cfg)
	if err != nil {
		return err
	}
	logger := built.Logger
	if showBanner {
		printBanner(built)
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err, ok := <-serveErr:
		if ok && err != nil {
			_ = built.Cleanup(context.Background())
			return fmt.Errorf("listen error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}
	// In-flight conversions finish before the stores close.
	if err := built.Cleanup(shutdownCtx); err != nil {
		logger.Warn("cleanup incomplete", "error", err)
	}
	runCancel()

	logger.Info("shutdown complete")
	return nil
}

func printBanner(built *app.BuildResult) {
	cfg := built.Config
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	line := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-12s%s\n", label, value)
	}
	line("HTTP:", cfg.BindAddr)
	line("Store:", built.StoreMode)
	line("Dedupe:", built.DedupeMode)
	line("Language:", cfg.DefaultLang)
	if cfg.WhatsAppConfigured() {
		line("WhatsApp:", "phone "+cfg.WhatsAppPhoneNumberID)
	} else {
		green.Print("    ▶ ")
		fmt.Printf("%-12s", "WhatsApp:")
		yellow.Println("not configured")
	}
	if cfg.AdminToken == "" {
		gray.Println("    admin api disabled (ADMIN_TOKEN unset)")
	}
	fmt.Println()
}
