package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TokenSource fetches a short-lived credential for one backend.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed key, for API-key style backends.
type StaticTokenSource string

func (s StaticTokenSource) AccessToken(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", errors.New("access token not configured")
	}
	return token, nil
}

// HTTPTokenSource exchanges credentials held by a token service for an access token.
type HTTPTokenSource struct {
	URL    string
	Header http.Header
	Body   any
	Client *http.Client
}

// NewHTTPTokenSource builds a token source with a traced HTTP client.
func NewHTTPTokenSource(url string, header http.Header, body any) *HTTPTokenSource {
	return &HTTPTokenSource{
		URL:    url,
		Header: header,
		Body:   body,
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

func (s *HTTPTokenSource) AccessToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.URL) == "" {
		return "", errors.New("token endpoint not configured")
	}

	var payload io.Reader = http.NoBody
	if s.Body != nil {
		raw, err := json.Marshal(s.Body)
		if err != nil {
			return "", fmt.Errorf("encode token request: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, payload)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	for k, values := range s.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if s.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(decoded.AccessToken) == "" {
		return "", errors.New("token endpoint returned an empty access_token")
	}
	return decoded.AccessToken, nil
}
