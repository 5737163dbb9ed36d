package platform

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// newHTTPClient builds the outbound client every adapter shares. The timeout
// bounds the whole call including body read, on top of the per-request
// context deadline.
func newHTTPClient(settings Settings) *http.Client {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}
	if settings.InsecureSkipVerify {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // explicit dev/testing opt-in
		}
	}
	return client
}

// postForm sends a form-encoded POST and decodes the JSON response into out.
// A non-2xx status becomes an *APIError carrying the remote error code when
// the body has one.
func postForm(
	ctx context.Context,
	client *http.Client,
	platform, operation, endpoint string,
	form url.Values,
	headers map[string]string,
	out any,
) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, platform, operation, req, out)
}

// getJSON sends a GET and decodes the JSON response into out.
func getJSON(
	ctx context.Context,
	client *http.Client,
	platform, operation, endpoint string,
	headers map[string]string,
	out any,
) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doJSON(client, platform, operation, req, out)
}

func doJSON(client *http.Client, platform, operation string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request failed: %w", platform, operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", platform, operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Platform:   platform,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Remote:     remoteErrorCode(body),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", platform, operation, err)
	}
	return nil
}

// remoteErrorCode extracts a short machine-readable error code from the
// common OAuth error envelopes. The body itself is never surfaced.
func remoteErrorCode(body []byte) string {
	var envelope struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	switch e := envelope.Error.(type) {
	case string:
		return e
	case map[string]any:
		for _, key := range []string{"code", "type", "message"} {
			if v, ok := e[key]; ok {
				return fmt.Sprintf("%v", v)
			}
		}
	}
	return ""
}

// statusRejectsToken reports whether a platform response status means the
// presented token was rejected, as opposed to the platform misbehaving.
func statusRejectsToken(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
