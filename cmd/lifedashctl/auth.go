package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lifedash/internal/config"
	"lifedash/internal/providers"
)

type callbackResult struct {
	code    string
	realmID string
	err     error
}

func authCmd(opts *rootOptions) *cobra.Command {
	var (
		port    int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "auth <provider>",
		Short: "Connect a provider through a local OAuth callback",
		Long: `Open the provider consent page, receive the redirect on a local port and
store the resulting token for the user. The provider's OAuth client must allow
http://localhost:<port>/callback as redirect URI.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{config.ServiceGoogleFit, config.ServiceDexcom, config.ServiceCapitalOne, config.ServiceQuickBooks},
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			provider := args[0]
			redirectURL := fmt.Sprintf("http://localhost:%d/callback", port)

			a, err := openApp(opts, func(cfg *config.Config) {
				if pc, ok := cfg.Providers[provider]; ok {
					pc.RedirectURL = redirectURL
					cfg.Providers[provider] = pc
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			states := providers.NewStateManager(uuid.NewString(), timeout)
			state, err := states.Issue(provider, userID)
			if err != nil {
				return err
			}
			authURL, err := a.svc.Registry.AuthCodeURL(provider, state)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
			if err != nil {
				return fmt.Errorf("listen for callback: %w", err)
			}
			results := make(chan callbackResult, 1)
			srv := &http.Server{
				Handler:           callbackHandler(states, provider, userID, results),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() { _ = srv.Serve(ln) }()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, TitleStyle.Render("Open this URL to authorize "+provider+":"))
			fmt.Fprintln(out, authURL)

			var res callbackResult
			select {
			case res = <-results:
			case <-time.After(timeout):
				return errors.New("authorization timed out")
			case <-cmd.Context().Done():
				return errors.New("interrupted")
			}
			if res.err != nil {
				return res.err
			}

			if err := a.svc.Registry.Exchange(cmd.Context(), provider, userID, res.code, res.realmID); err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}
			fmt.Fprintln(out, SuccessStyle.Render(fmt.Sprintf("%s connected for %s", provider, userID)))
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 8085, "local port receiving the OAuth redirect")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for consent")
	return cmd
}

// callbackHandler accepts one redirect carrying a state issued for userID.
func callbackHandler(states *providers.StateManager, provider, userID string, results chan<- callbackResult) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		send := func(res callbackResult) {
			select {
			case results <- res:
			default:
			}
		}

		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			send(callbackResult{err: fmt.Errorf("provider denied consent: %s", e)})
			return
		}
		owner, err := states.Redeem(provider, q.Get("state"))
		if err != nil || owner != userID {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		realmID := q.Get("realmId")
		if code == "" || (provider == config.ServiceQuickBooks && realmID == "") {
			http.Error(w, "Missing authorization data", http.StatusBadRequest)
			send(callbackResult{err: errors.New("callback without authorization code")})
			return
		}

		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		send(callbackResult{code: code, realmID: realmID})
	})
	return mux
}
