package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"lifedash/internal/core"
)

// newHTTPClient creates the pooled client used for token exchanges and as
// the base transport of authorized clients.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// getJSON issues a GET and decodes a 2xx JSON body into out. Every failure is
// an *core.UpstreamError.
func getJSON(ctx context.Context, client *http.Client, provider, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return core.NewUpstreamError(provider, http.StatusBadRequest, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return toUpstream(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.NewUpstreamError(provider, resp.StatusCode,
			fmt.Errorf("GET %s: %s", req.URL.Path, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewUpstreamError(provider, resp.StatusCode, fmt.Errorf("decode %s: %w", req.URL.Path, err))
	}
	return nil
}

// toUpstream classifies err as an upstream failure unless it already carries
// a kind.
func toUpstream(provider string, err error) error {
	if err == nil {
		return nil
	}
	if core.IsUpstream(err) || core.IsValidation(err) || core.IsStorage(err) ||
		errors.Is(err, ErrNotConnected) || errors.Is(err, ErrUnknownProvider) {
		return err
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return core.NewUpstreamError(provider, status, err)
	}

	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return core.NewUpstreamError(provider, ge.Code, err)
	}

	return core.NewUpstreamError(provider, 0, err)
}
