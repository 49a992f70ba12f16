package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soofff/boofi/internal/config"
	"github.com/soofff/boofi/internal/controller"
	"github.com/soofff/boofi/internal/journal"
	"github.com/soofff/boofi/internal/server"
	"github.com/soofff/boofi/internal/system"
	boofiversion "github.com/soofff/boofi/internal/version"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	logFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "boofi",
		Short:         "Boofi - administer local and remote Linux hosts over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServer,
	}
	rootCmd.Version = boofiversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	paths := config.GetPaths()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", paths.Config, "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also append logs to this file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list the configured services",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	})
	rootCmd.AddCommand(newRemoteCommands()...)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration: file, then .env, then
// process environment.
func loadConfig() (*config.Config, error) {
	paths, err := config.EnsureDirs()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", paths.Home, err)
	}
	if err := config.LoadEnvFile(paths.Env); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrCreate(config.ExpandPath(configPath))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "listen: %s (token ttl %s)\n", cfg.Listen, cfg.TokenTTL())
	for _, svc := range cfg.Services {
		if svc.Type == config.ServiceSSH {
			fmt.Fprintf(out, "  %s: ssh %s\n", svc.Name, svc.Address)
			continue
		}
		fmt.Fprintf(out, "  %s: local\n", svc.Name)
	}
	return nil
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var store *journal.Journal
	if cfg.Journal != "" {
		store, err = journal.Open(journal.Options{Path: config.ExpandPath(cfg.Journal)})
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer store.Close()
	}

	services, err := buildServices(cfg, store)
	if err != nil {
		return err
	}

	opts := server.Options{Listen: cfg.Listen}
	if cfg.SSL != nil {
		opts.CertPath = config.ExpandPath(cfg.SSL.Certificate)
		opts.KeyPath = config.ExpandPath(cfg.SSL.PrivateKey)
	}
	apiServer, err := server.NewAPIServer(opts, services)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	log.Printf("Boofi %s started (PID: %d)", boofiversion.FormatVersion(boofiversion.String()), os.Getpid())

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %s, shutting down...", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Printf("Server error: %v", err)
		return err
	}

	log.Println("Boofi stopped")
	return nil
}

// buildServices creates one controller per configured service, all sharing
// the journal when it is enabled.
func buildServices(cfg *config.Config, store *journal.Journal) (map[string]server.Service, error) {
	services := make(map[string]server.Service, len(cfg.Services))
	for _, svc := range cfg.Services {
		var factory system.BackendFactory
		switch svc.Type {
		case config.ServiceLocal:
			factory = system.LocalFactory(system.LocalOptions{})
		case config.ServiceSSH:
			factory = system.RemoteFactory(svc.Address, system.RemoteOptions{
				KnownHosts: config.ExpandPath(svc.KnownHosts),
			})
		default:
			return nil, fmt.Errorf("service %s: unsupported type %q", svc.Name, svc.Type)
		}

		opts := controller.Options{
			Name:     svc.Name,
			TokenTTL: cfg.TokenTTL(),
			Factory:  factory,
		}
		entry := server.Service{}
		if store != nil {
			opts.Recorder = store.Recorder(svc.Name)
			entry.Journal = store
		}
		entry.Controller = controller.New(opts)
		services[svc.Name] = entry
	}
	return services, nil
}

func setupLogging() error {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if logFile == "" {
		return nil
	}

	logPath := config.ExpandPath(logFile)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("=== Boofi Starting (PID: %d) ===", os.Getpid())
	log.Printf("Log file: %s", logPath)
	return nil
}
