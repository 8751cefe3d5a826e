package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acoghlan/tokengate/config"
	"github.com/acoghlan/tokengate/session"
	bboltstorage "github.com/acoghlan/tokengate/storage/bbolt"
	"github.com/acoghlan/tokengate/transport"
	"github.com/acoghlan/tokengate/vault"
)

var (
	configPath string
	dataDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tokengate",
	Short: "Tokengate is a session and credential client",
	Long: `A command-line client for the tokengate session engine: authenticated
login, transparent token renewal and a vault for remembered credentials.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "Directory for persistent data")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tokengate"
	}
	return filepath.Join(home, ".tokengate")
}

// app holds the wired client components for a single command invocation.
type app struct {
	cfg    *config.Config
	store  *bboltstorage.Store
	client *transport.Client
	mgr    *session.Manager
	logger *slog.Logger
}

func (a *app) Close() error {
	return a.store.Close()
}

func newApp(ctx context.Context) (*app, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	serverURL, err := resolveServerURL(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	store, err := bboltstorage.NewStoreFromFile(filepath.Join(dataDir, "tokengate.db"), nil)
	if err != nil {
		return nil, fmt.Errorf("opening session storage: %w", err)
	}

	keys, err := vault.NewSoftwareKeystore(filepath.Join(dataDir, "keystore.json"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening keystore: %w", err)
	}
	vlt := vault.New(store, keys, terminalPresence())

	execOpts := []transport.ExecutorOption{transport.WithExecutorLogger(logger)}
	if cfg.Dev != nil && cfg.Dev.InsecureSkipTLSVerify {
		execOpts = append(execOpts, transport.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // dev profile only
			},
		}))
		logger.Warn("TLS certificate verification disabled")
	}
	exec := transport.NewExecutor(execOpts...)
	client := transport.NewClient(serverURL, exec)

	mgr := session.NewManager(client, exec, store, vlt, session.WithLogger(logger))

	return &app{
		cfg:    cfg,
		store:  store,
		client: client,
		mgr:    mgr,
		logger: logger,
	}, nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	for _, p := range []string{filepath.Join(dataDir, "config.yaml"), "tokengate.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return &config.Config{
		Profile: config.ProfileProd,
		Server:  config.Server{URL: "https://localhost:8443"},
	}, nil
}

// resolveServerURL returns the configured server, offering the dev-profile
// picker when alternatives are listed.
func resolveServerURL(cfg *config.Config) (string, error) {
	if cfg.Dev == nil || len(cfg.Dev.ServerPicker) == 0 {
		return cfg.Server.URL, nil
	}

	fmt.Println("Select server:")
	fmt.Printf("  [0] %s (default)\n", cfg.Server.URL)
	for i, url := range cfg.Dev.ServerPicker {
		fmt.Printf("  [%d] %s\n", i+1, url)
	}
	fmt.Print("> ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading server choice: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return cfg.Server.URL, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 0 || n > len(cfg.Dev.ServerPicker) {
		return "", fmt.Errorf("invalid server choice %q", line)
	}
	if n == 0 {
		return cfg.Server.URL, nil
	}
	return cfg.Dev.ServerPicker[n-1], nil
}

// terminalPresence stands in for a platform biometric prompt: the user
// confirms at the terminal instead.
func terminalPresence() vault.Presence {
	return vault.PresenceFunc(func(ctx context.Context, reason string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Printf("Confirm presence (%s) [y/N]: ", reason)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("%w: %v", vault.ErrCancelled, err)
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return nil
		default:
			return vault.ErrCancelled
		}
	})
}
