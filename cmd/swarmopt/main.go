package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/swarmopt/swarmopt/internal/bus"
	"github.com/swarmopt/swarmopt/internal/config"
	"github.com/swarmopt/swarmopt/internal/llm"
	"github.com/swarmopt/swarmopt/internal/pipeline"
	"github.com/swarmopt/swarmopt/internal/scheduler"
	"github.com/swarmopt/swarmopt/internal/solver"
	"github.com/swarmopt/swarmopt/internal/store"
	"github.com/swarmopt/swarmopt/internal/vault"
	"github.com/swarmopt/swarmopt/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("swarmopt %s\n", version)
	case "gateway":
		if err := runGateway(); err != nil {
			slog.Error("gateway failed", "error", err)
			os.Exit(1)
		}
	case "run":
		if err := runOnce(os.Args[2:]); err != nil {
			slog.Error("run failed", "error", err)
			os.Exit(1)
		}
	case "vault":
		if err := runVault(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "backup":
		if err := runBackup(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "restore":
		if err := runRestore(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: swarmopt <command>

Commands:
  gateway          Start the swarmopt gateway service
  run "<query>"    Run the pipeline once and print the trace
  vault            Manage encrypted provider secrets
  backup           Archive the data directory to a .tar.zst file
  restore          Restore the data directory from a backup
  version          Print version
`)
}

func runGateway() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting swarmopt gateway", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite store
	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	eventBus, err := bus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer eventBus.Close()
	slog.Info("nats started", "port", cfg.NATS.Port)

	events, err := bus.NewClient(eventBus)
	if err != nil {
		return fmt.Errorf("init nats client: %w", err)
	}
	defer events.Close()

	// Vault (optional; required only when endpoints reference secrets)
	var v *vault.Vault
	if passphrase := os.Getenv("SWARMOPT_VAULT_PASSPHRASE"); passphrase != "" {
		v = vault.New(passphrase)
	}

	// Pipeline controller over the regional inference endpoints
	client := llm.NewClient(resolveEndpoints(cfg, db, v))
	ctrl := pipeline.BuildController(cfg, client).
		WithStore(db).
		WithEvents(events)
	if cfg.Solver.URL != "" {
		ctrl.WithSolver(solver.NewHTTPSolver(cfg.Solver.URL, cfg.Solver.Timeout))
		slog.Info("external solver configured", "url", cfg.Solver.URL)
	}

	// Scheduler
	sched := scheduler.New(db, ctrl, cfg.Scheduler)
	go sched.Start(ctx)

	// Web UI
	if cfg.Web.Enabled {
		srv := web.NewServer(db, eventBus, ctrl, v, cfg.Web, version)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()

	return nil
}

func runOnce(args []string) error {
	if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("usage: swarmopt run \"<query>\"")
	}
	query := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	var v *vault.Vault
	if passphrase := os.Getenv("SWARMOPT_VAULT_PASSPHRASE"); passphrase != "" {
		v = vault.New(passphrase)
	}

	client := llm.NewClient(resolveEndpoints(cfg, db, v))
	ctrl := pipeline.BuildController(cfg, client).WithStore(db)
	if cfg.Solver.URL != "" {
		ctrl.WithSolver(solver.NewHTTPSolver(cfg.Solver.URL, cfg.Solver.Timeout))
	}

	result := ctrl.Run(context.Background(), query)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(out))

	if !result.OverallSuccess {
		return fmt.Errorf("pipeline failed at stage %s", result.FirstFailedStage)
	}
	return nil
}

// resolveEndpoints turns endpoint config into llm endpoints, decrypting
// secret:NAME API key references through the vault.
func resolveEndpoints(cfg *config.Config, db *store.Store, v *vault.Vault) []llm.Endpoint {
	endpoints := make([]llm.Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		apiKey := ep.APIKey
		if name, isRef := strings.CutPrefix(apiKey, "secret:"); isRef {
			apiKey = ""
			if v == nil {
				slog.Warn("endpoint references a secret but no vault passphrase is set",
					"region", ep.Region, "secret", name)
			} else if sec, err := db.GetSecret(name); err != nil || sec == nil {
				slog.Warn("failed to resolve endpoint secret", "region", ep.Region, "secret", name)
			} else if plaintext, err := v.DecryptString(sec.Value, sec.Nonce); err != nil {
				slog.Warn("failed to decrypt endpoint secret",
					"region", ep.Region, "secret", name, "error", err)
			} else {
				apiKey = plaintext
			}
		}
		endpoints = append(endpoints, llm.Endpoint{
			Region: ep.Region,
			URL:    ep.URL,
			Model:  ep.Model,
			APIKey: apiKey,
		})
	}
	return endpoints
}
