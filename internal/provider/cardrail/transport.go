package cardrail

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/commercekit/payments/internal/provider"
)

func send[T any](c *Client, req *http.Request) (*T, error) {
	op := "cardrail " + req.Method + " " + req.URL.Path
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
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
