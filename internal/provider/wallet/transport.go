package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/commercekit/payments/internal/provider"
)

type transport struct {
	baseURL    string
	httpClient *http.Client
}

func newTransport(baseURL string, timeout time.Duration) *transport {
	return &transport{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (t *transport) fetchToken(ctx context.Context, clientID, clientSecret string) (*tokenResponse, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("fetchToken: build request: %w", err)
	}
	req.SetBasicAuth(clientID, clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return roundTrip[tokenResponse](t, req, "wallet.fetchToken")
}

func postJSON[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return sendAuthed[T](ctx, c, req, "wallet POST "+path)
}

func getJSON[T any](ctx context.Context, c *Client, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return sendAuthed[T](ctx, c, req, "wallet GET "+path)
}

func sendAuthed[T any](ctx context.Context, c *Client, req *http.Request, op string) (*T, error) {
	token, err := c.tokens.bearer(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	out, err := roundTrip[T](c.http, req, op)
	if err != nil {
		// A 401 means our cached token went bad early; drop it so the
		// next attempt re-authenticates.
		var pe *provider.Error
		if errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized {
			c.tokens.invalidate()
		}
		return nil, err
	}
	return out, nil
}

func roundTrip[T any](t *transport, req *http.Request, op string) (*T, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, provider.TransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, provider.TransportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, provider.HTTPError(op, resp.StatusCode, body)
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return &out, nil
}
