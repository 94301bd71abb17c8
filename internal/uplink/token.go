package uplink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxTokenBytes bounds how much of the token response body is read.
const maxTokenBytes = 64 << 10

// TokenProvider supplies the credential used to sign and authorise one submission.
// Implementations fail with an error wrapping ErrAuth.
type TokenProvider interface {
	FetchToken(ctx context.Context) (string, error)
}

// HTTPTokenProvider fetches a fresh credential from the token endpoint on
// every call. The plaintext response body, trimmed, is the credential.
type HTTPTokenProvider struct {
	url    string
	client *http.Client
}

// NewHTTPTokenProvider creates a provider for tokenURL. The client's
// timeout bounds each fetch.
func NewHTTPTokenProvider(tokenURL string, client *http.Client) *HTTPTokenProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTokenProvider{url: tokenURL, client: client}
}

// FetchToken performs one GET. Only a 200 with a non-empty body succeeds;
// there is no retry.
func (p *HTTPTokenProvider) FetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %w", ErrAuth, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading token body: %w", ErrAuth, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned HTTP %d", ErrAuth, resp.StatusCode)
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("%w: token endpoint returned an empty body", ErrAuth)
	}
	return token, nil
}

// StaticTokenProvider returns a configured credential, for deployments
// issued a fixed key instead of a token endpoint.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider creates a provider that always returns token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: strings.TrimSpace(token)}
}

// FetchToken returns the configured credential.
func (p *StaticTokenProvider) FetchToken(context.Context) (string, error) {
	if p.token == "" {
		return "", fmt.Errorf("%w: no static token configured", ErrAuth)
	}
	return p.token, nil
}
