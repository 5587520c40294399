package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"overtone/internal/config"
	"overtone/internal/spotify"
)

// connectTimeout bounds how long we wait for the user to finish the
// browser login.
const connectTimeout = 5 * time.Minute

func newConnectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Link a Spotify account for the push source",
		Long: "Starts a browser login against Spotify and stores the resulting token\n" +
			"where the daemon watches for it. A running daemon picks the new token\n" +
			"up automatically; no restart is needed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Spotify.ClientID == "" {
				return fmt.Errorf("spotify.client_id is not configured; add it to %s", config.DefaultPath())
			}

			redirect, err := url.Parse(cfg.Spotify.RedirectURL)
			if err != nil || redirect.Host == "" {
				return fmt.Errorf("spotify.redirect_url %q is not a usable loopback URL", cfg.Spotify.RedirectURL)
			}

			req := spotify.NewAuthRequest(spotify.NewOAuthConfig(cfg.Spotify.ClientID, cfg.Spotify.RedirectURL))

			tok, err := runCallbackServer(cmd.Context(), cmd, req, redirect)
			if err != nil {
				return err
			}
			if err := spotify.SaveToken(cfg.Spotify.TokenFile, tok); err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Token saved to %s\n", cfg.Spotify.TokenFile)
			fmt.Fprintln(stdout, "A running daemon picks it up automatically.")
			return nil
		},
	}
}

type exchangeResult struct {
	token *oauth2.Token
	err   error
}

// runCallbackServer listens on the redirect URL's host, prints the login
// URL, and waits for Spotify to call back with an authorization code.
func runCallbackServer(ctx context.Context, cmd *cobra.Command, req spotify.AuthRequest, redirect *url.URL) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s for the login callback: %w", redirect.Host, err)
	}
	defer listener.Close()

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	results := make(chan exchangeResult, 1)
	deliver := func(res exchangeResult) {
		select {
		case results <- res:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != req.State {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if denied := q.Get("error"); denied != "" {
			http.Error(w, "authorization refused", http.StatusBadRequest)
			deliver(exchangeResult{err: fmt.Errorf("spotify refused the authorization: %s", denied)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "code missing", http.StatusBadRequest)
			return
		}

		tok, err := req.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, "token exchange failed", http.StatusInternalServerError)
			deliver(exchangeResult{err: err})
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<h1>Spotify linked</h1><p>You can close this window now.</p>")
		deliver(exchangeResult{token: tok})
	})

	server := &http.Server{Handler: mux}
	go server.Serve(listener)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	stdout := cmd.OutOrStdout()
	fmt.Fprintln(stdout, "Open this URL in your browser to link Spotify:")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "  "+req.URL)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Waiting for the login to finish...")

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		return res.token, nil
	case <-time.After(connectTimeout):
		return nil, errors.New("login timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
