package conformance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// wellKnownPath is the OpenID discovery document location tried first when
// resolving the target's token endpoint.
const wellKnownPath = "/.well-known/openid-configuration"

// fallbackTokenPath is the conventional token endpoint used when discovery
// is unavailable.
const fallbackTokenPath = "/auth/token"

type openIDConfiguration struct {
	TokenEndpoint string `json:"token_endpoint"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// resolveTokenEndpoint tries the well-known discovery document first and
// falls back to the conventional path. Discovery failures are not errors;
// the fallback covers targets that don't publish the document.
func resolveTokenEndpoint(
	ctx context.Context,
	client *http.Client,
	authBaseURL string,
) string {
	base := strings.TrimRight(authBaseURL, "/")
	fallback := base + fallbackTokenPath

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, base+wellKnownPath, nil,
	)
	if err != nil {
		return fallback
	}

	resp, err := client.Do(req)
	if err != nil {
		return fallback
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fallback
	}

	var cfg openIDConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil || cfg.TokenEndpoint == "" {
		return fallback
	}

	return cfg.TokenEndpoint
}

// fetchAccessToken obtains a bearer token via the client-credentials grant.
func fetchAccessToken(
	ctx context.Context,
	client *http.Client,
	tokenURL, clientID, clientSecret string,
) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}

	req.SetBasicAuth(clientID, clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting access token: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"token endpoint returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)),
		)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}

	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token")
	}

	return token.AccessToken, nil
}
