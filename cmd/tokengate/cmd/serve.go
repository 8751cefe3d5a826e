package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/acoghlan/tokengate/internal/stubserver"
)

var (
	servePort  int
	serveUsers []string
	serveTTL   time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development stub auth server",
	Long: `Starts an in-process stand-in for the real auth service, for local
development and integration testing. Not for production use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		opts := []stubserver.Option{
			stubserver.WithLogger(logger),
			stubserver.WithTokenTTL(serveTTL),
		}
		for _, u := range serveUsers {
			name, pass, ok := strings.Cut(u, ":")
			if !ok {
				return fmt.Errorf("invalid --user %q, want name:password", u)
			}
			opts = append(opts, stubserver.WithUser(name, pass))
		}
		stub := stubserver.New(opts...)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount("/", stub.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", servePort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		fmt.Printf("Stub auth server on port %d (docs at /docs)...\n", servePort)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8088, "Port to listen on")
	serveCmd.Flags().StringArrayVar(&serveUsers, "user", []string{"dev:dev"}, "Account in name:password form (repeatable)")
	serveCmd.Flags().DurationVar(&serveTTL, "token-ttl", 72*time.Hour, "Lifetime of minted tokens")
}
