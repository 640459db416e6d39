package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// imdsEndpoint is the Azure instance metadata service token endpoint,
// reachable only from inside an Azure-hosted VM or container.
const imdsEndpoint = "http://169.254.169.254/metadata/identity/oauth2/token"

// imdsTokenSource fetches managed identity tokens from IMDS.
type imdsTokenSource struct {
	resource string
	client   *http.Client
}

func (s *imdsTokenSource) Token() (*oauth2.Token, error) {
	client := s.client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequest(http.MethodGet, imdsEndpoint, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("api-version", "2018-02-01")
	q.Set("resource", s.resource)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Metadata", "true")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("managed identity endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("managed identity token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresOn   string `json:"expires_on"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode managed identity response: %w", err)
	}

	token := &oauth2.Token{AccessToken: payload.AccessToken, TokenType: "Bearer"}
	if epoch, err := strconv.ParseInt(payload.ExpiresOn, 10, 64); err == nil {
		token.Expiry = time.Unix(epoch, 0)
	}
	return token, nil
}

// cliTokenSource obtains tokens from the local az CLI session.
type cliTokenSource struct {
	scope string
}

func (s *cliTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "az", "account", "get-access-token",
		"--scope", s.scope, "--output", "json")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("az CLI token request failed (run 'az login' first): %w", err)
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
		ExpiresOn   string `json:"expiresOn"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode az CLI output: %w", err)
	}

	token := &oauth2.Token{AccessToken: payload.AccessToken, TokenType: "Bearer"}
	// az prints a local timestamp without zone information
	if expiry, err := time.ParseInLocation("2006-01-02 15:04:05.000000", payload.ExpiresOn, time.Local); err == nil {
		token.Expiry = expiry
	}
	return token, nil
}
