package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

const maxResponseBytes = 4 << 20

// getJSON performs a GET and decodes the JSON body into v, translating HTTP
// status codes into the adapter error taxonomy.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Permanent(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return Transient(err, "request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return NotFound("no match")
	case resp.StatusCode == http.StatusTooManyRequests:
		return Transient(nil, "rate limited by source")
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Permanent(nil, fmt.Sprintf("auth failure (status %d)", resp.StatusCode))
	case resp.StatusCode >= 500:
		return Transient(nil, fmt.Sprintf("source unavailable (status %d)", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return Permanent(nil, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Transient(err, "reading response")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return Transient(err, "decoding response")
	}
	return nil
}
