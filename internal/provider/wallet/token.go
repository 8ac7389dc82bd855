package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshMargin is how long before actual expiry a cached token is treated
// as stale, so refresh happens proactively instead of on a failing call.
const refreshMargin = 60 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenCache holds the client-credentials bearer token with its expiry.
// Token acquisition is part of the adapter's contract; callers never see
// auth concerns.
type tokenCache struct {
	http         *transport
	clientID     string
	clientSecret string

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func newTokenCache(tr *transport, clientID, clientSecret string) *tokenCache {
	return &tokenCache{
		http:         tr,
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}
}

func (t *tokenCache) bearer(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Before(t.expires) {
		return t.token, nil
	}

	resp, err := t.http.fetchToken(ctx, t.clientID, t.clientSecret)
	if err != nil {
		return "", fmt.Errorf("bearer: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("bearer: empty access token in response")
	}

	t.token = resp.AccessToken
	t.expires = t.now().Add(time.Duration(resp.ExpiresIn)*time.Second - refreshMargin)
	return t.token, nil
}

func (t *tokenCache) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	t.expires = time.Time{}
}
