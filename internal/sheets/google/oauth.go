package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuth user credentials are the fallback when no service account is set:
// GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE name the OAuth client,
// GOOGLE_OAUTH_TOKEN_FILE (default token.json) holds the token written by
// "ocp sheets-auth".
const defaultTokenFile = "token.json"

// OAuthClientFromEnv loads the OAuth client configuration for the Sheets
// scope.
func OAuthClientFromEnv() (*oauth2.Config, error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))

	var b []byte
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		var err error
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
	default:
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}

	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// TokenFileFromEnv returns GOOGLE_OAUTH_TOKEN_FILE or token.json.
func TokenFileFromEnv() string {
	if f := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); f != "" {
		return f
	}
	return defaultTokenFile
}

// ReadToken loads a token saved by SaveToken.
func ReadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

// SaveToken writes tok to path, readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// oauthTokenSource builds a refreshing token source from the OAuth client and
// saved token named by the environment.
func oauthTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cfg, err := OAuthClientFromEnv()
	if err != nil {
		return nil, err
	}
	tok, err := ReadToken(TokenFileFromEnv())
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, tok), nil
}

// Authorize runs the installed-app flow: it listens on localhost:port for the
// redirect, hands the consent URL to show, and exchanges the returned code.
// The client must list http://localhost:<port>/callback as a redirect URI.
func Authorize(ctx context.Context, cfg *oauth2.Config, port string, show func(url string)) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "localhost:"+port)
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}

	cfg.RedirectURL = "http://" + ln.Addr().String() + "/callback"
	state := uuid.NewString()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(state, codeCh, errCh))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	show(cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}

// callbackHandler accepts one redirect carrying the expected state.
func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			trySend(errCh, fmt.Errorf("oauth error: %s", e))
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		trySend(codeCh, code)
	}
}

func trySend[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}
