package remote

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Credentials holds the OAuth material for one Google account. The
// refresh token is obtained out-of-band (one-time consent flow) and
// stored in the accounts file.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Validate checks that enough material is present to mint access tokens.
func (c Credentials) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("client id and secret are required")
	}
	if c.RefreshToken == "" {
		return fmt.Errorf("refresh token is required (run the consent flow first)")
	}
	return nil
}

// HTTPClient returns an HTTP client that transparently refreshes and
// attaches OAuth access tokens. The context bounds token refreshes.
func (c Credentials) HTTPClient(ctx context.Context) (*http.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/tasks"},
	}
	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken})
	return oauth2.NewClient(ctx, ts), nil
}
