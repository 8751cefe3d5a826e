package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/acoghlan/tokengate/session"
	"github.com/acoghlan/tokengate/transport"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		state, err := app.mgr.Restore(cmd.Context())
		if err != nil {
			return fmt.Errorf("restoring session: %w", err)
		}
		if state != session.StateAuthenticated {
			return fmt.Errorf("not logged in; run `tokengate login` first")
		}

		resp, err := app.mgr.Do(cmd.Context(), func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, app.client.BaseURL()+"/api/v1/whoami", nil)
		})
		if err != nil {
			return fmt.Errorf("fetching identity: %w", err)
		}

		var identity transport.Identity
		if err := resp.DecodeJSON(&identity); err != nil {
			return fmt.Errorf("decoding identity: %w", err)
		}
		fmt.Printf("%s (id %s)\n", identity.Username, identity.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
