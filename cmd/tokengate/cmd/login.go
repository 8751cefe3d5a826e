package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginUsername string
	loginRemember bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the configured server",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		username := loginUsername
		if username == "" {
			username, err = promptLine("Username: ")
			if err != nil {
				return err
			}
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		cred, err := app.mgr.Login(cmd.Context(), username, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		if cred.ExpiryKnown() {
			fmt.Printf("Logged in as %s (token expires %s)\n", username, cred.ExpiresAt.Local().Format("2006-01-02 15:04"))
		} else {
			fmt.Printf("Logged in as %s\n", username)
		}

		if loginRemember || app.cfg.Session.BiometricsEnabled {
			if err := app.mgr.EnableBiometrics(cmd.Context(), username, password); err != nil {
				app.logger.Warn("could not enable quick re-login", "error", err)
			} else {
				fmt.Println("Quick re-login enabled")
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (prompted if omitted)")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", false, "Store credentials for quick re-login")
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}
