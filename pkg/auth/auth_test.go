package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchkit/searchkit/pkg/config"
)

func TestAPIKeyCredential_SetsHeader(t *testing.T) {
	cred := &APIKeyCredential{Key: "secret-key"}
	req, _ := http.NewRequest(http.MethodGet, "https://svc.search.windows.net", nil)

	require.NoError(t, cred.Authorize(context.Background(), req))
	assert.Equal(t, "secret-key", req.Header.Get("api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "api_key", cred.Describe())
}

func TestFromConfig_APIKey(t *testing.T) {
	cred, err := FromConfig(config.AuthConfig{
		Mode:   config.AuthModeAPIKey,
		APIKey: "key",
	})
	require.NoError(t, err)
	assert.IsType(t, &APIKeyCredential{}, cred)
}

func TestFromConfig_APIKeyMissing(t *testing.T) {
	_, err := FromConfig(config.AuthConfig{Mode: config.AuthModeAPIKey})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}

func TestFromConfig_ClientCredentials(t *testing.T) {
	cred, err := FromConfig(config.AuthConfig{
		Mode:         config.AuthModeClientCredentials,
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		Scope:        "https://search.azure.com/.default",
	})
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", cred.Describe())
}

func TestFromConfig_ClientCredentialsIncomplete(t *testing.T) {
	_, err := FromConfig(config.AuthConfig{
		Mode:     config.AuthModeClientCredentials,
		TenantID: "tenant",
	})
	require.Error(t, err)
}

func TestFromConfig_UnknownMode(t *testing.T) {
	_, err := FromConfig(config.AuthConfig{Mode: "carrier_pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown auth mode")
}

func TestScopeResource(t *testing.T) {
	assert.Equal(t, "https://search.azure.com", scopeResource("https://search.azure.com/.default"))
	assert.Equal(t, "https://search.azure.com", scopeResource("https://search.azure.com"))
}

func TestTokenExpiry(t *testing.T) {
	expiry := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": "https://search.azure.com",
		"exp": expiry.Unix(),
	})
	raw, err := token.SignedString([]byte("not-a-real-secret"))
	require.NoError(t, err)

	got, err := TokenExpiry(raw)
	require.NoError(t, err)
	assert.True(t, got.Equal(expiry), "expected %v, got %v", expiry, got)
}

func TestTokenExpiry_NoExpClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"aud": "https://search.azure.com",
	})
	raw, err := token.SignedString([]byte("not-a-real-secret"))
	require.NoError(t, err)

	_, err = TokenExpiry(raw)
	require.Error(t, err)
}

func TestTokenExpiry_Garbage(t *testing.T) {
	_, err := TokenExpiry("not-a-jwt")
	require.Error(t, err)
}
