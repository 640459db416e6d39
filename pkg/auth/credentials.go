// Package auth provides the credential modes used to authenticate
// requests to the search service: a query api-key, an AAD service
// principal (client credentials grant), the managed identity endpoint,
// and the local az CLI session.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/searchkit/searchkit/pkg/config"
)

// Credential injects authentication into an outgoing request.
type Credential interface {
	// Authorize adds credentials to req
	Authorize(ctx context.Context, req *http.Request) error
	// Describe names the credential mode for logs and diagnostics
	Describe() string
}

// FromConfig builds the credential selected by the configured auth mode.
func FromConfig(cfg config.AuthConfig) (Credential, error) {
	switch cfg.Mode {
	case config.AuthModeAPIKey:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("auth mode %q requires an api key", cfg.Mode)
		}
		return &APIKeyCredential{Key: cfg.APIKey}, nil
	case config.AuthModeClientCredentials:
		if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("auth mode %q requires tenant id, client id and client secret", cfg.Mode)
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
			Scopes:       []string{cfg.Scope},
		}
		return &TokenCredential{
			mode:   string(cfg.Mode),
			source: cc.TokenSource(context.Background()),
		}, nil
	case config.AuthModeManagedIdentity:
		return &TokenCredential{
			mode:   string(cfg.Mode),
			source: oauth2.ReuseTokenSource(nil, &imdsTokenSource{resource: scopeResource(cfg.Scope)}),
		}, nil
	case config.AuthModeCLI:
		return &TokenCredential{
			mode:   string(cfg.Mode),
			source: oauth2.ReuseTokenSource(nil, &cliTokenSource{scope: cfg.Scope}),
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// APIKeyCredential authenticates with the service api-key header.
type APIKeyCredential struct {
	Key string
}

func (c *APIKeyCredential) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set("api-key", c.Key)
	return nil
}

func (c *APIKeyCredential) Describe() string {
	return "api_key"
}

// TokenCredential authenticates with a bearer token from an OAuth2
// token source. Tokens are cached and refreshed near expiry by the
// underlying source.
type TokenCredential struct {
	mode   string
	source oauth2.TokenSource
}

func (c *TokenCredential) Authorize(_ context.Context, req *http.Request) error {
	token, err := c.source.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}

func (c *TokenCredential) Describe() string {
	return c.mode
}

// Token exposes the current token for diagnostics (expiry inspection).
func (c *TokenCredential) Token() (*oauth2.Token, error) {
	return c.source.Token()
}

// scopeResource converts an OAuth2 scope to the IMDS resource form:
// the trailing /.default is not part of the resource URI.
func scopeResource(scope string) string {
	return strings.TrimSuffix(scope, "/.default")
}
