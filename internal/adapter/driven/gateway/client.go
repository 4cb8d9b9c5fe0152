// Package gateway implements the Gateway and MunicipalityDirectory ports over
// the fiscal gateway's REST API.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.Gateway               = (*Client)(nil)
	_ driven.MunicipalityDirectory = (*Client)(nil)
)

const (
	defaultTimeout = 30 * time.Second
	// maxErrorBody caps how much of an error response is read into APIError.
	maxErrorBody = 4 << 10
)

// APIError is returned for a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to the fiscal gateway. Connection checks and job triggers share
// a rate limiter; municipality lookups go through an in-memory HTTP cache that
// honors the gateway's Cache-Control headers.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	lookup  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a gateway client with the following transport stack:
//  1. rate.Limiter (at most rps calls per second, shared by non-lookup calls)
//  2. httpcache (conditional caching for municipality lookups)
//  3. net/http default transport with a 30-second client timeout
func NewClient(baseURL, token string, rps float64) (*Client, error) {
	return NewClientWithHTTPClient(&http.Client{Timeout: defaultTimeout}, baseURL, token, rps)
}

// NewClientWithHTTPClient creates a Client over a custom http.Client. Tests
// use it to point the client at an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string, rps float64) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing gateway URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gateway URL %q must be absolute", baseURL)
	}

	cacheTransport := httpcache.NewMemoryCacheTransport()
	cacheTransport.Transport = httpClient.Transport
	cacheTransport.MarkCachedResponses = true

	burst := max(int(rps), 1)

	return &Client{
		baseURL: u,
		token:   token,
		http:    httpClient,
		lookup:  &http.Client{Transport: cacheTransport, Timeout: httpClient.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

type connectionResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// CheckConnection asks the gateway whether the registered company can issue.
func (c *Client) CheckConnection(ctx context.Context, registrationID string) (*model.GatewayConnection, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for gateway rate limit: %w", err)
	}

	var resp connectionResponse
	path := "/v1/companies/" + url.PathEscape(registrationID) + "/connection"
	if err := c.do(ctx, c.http, http.MethodGet, path, &resp); err != nil {
		return nil, fmt.Errorf("checking connection for %s: %w", registrationID, err)
	}

	return &model.GatewayConnection{
		Status:  resp.Status,
		Message: resp.Message,
		Data:    resp.Data,
	}, nil
}

type requirementsResponse struct {
	Supported        bool   `json:"supported"`
	Name             string `json:"name"`
	Provider         string `json:"provider"`
	AuthRequirements *struct {
		AuthMode            string `json:"auth_mode"`
		RequiresCertificate bool   `json:"requires_certificate"`
		RequiresLoginSenha  bool   `json:"requires_login_senha"`
	} `json:"auth_requirements"`
}

// GetRequirements looks up how a municipality authenticates issuers. A 404
// means the gateway does not serve the municipality.
func (c *Client) GetRequirements(ctx context.Context, municipalityCode string) (*model.MunicipalityRequirements, error) {
	var resp requirementsResponse
	path := "/v1/municipalities/" + url.PathEscape(municipalityCode)

	err := c.do(ctx, c.lookup, http.MethodGet, path, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return &model.MunicipalityRequirements{Supported: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching requirements for municipality %s: %w", municipalityCode, err)
	}

	req := &model.MunicipalityRequirements{
		Supported: resp.Supported,
		Name:      resp.Name,
		Provider:  resp.Provider,
	}
	if resp.AuthRequirements != nil {
		req.AuthRequirements = &model.AuthRequirements{
			AuthMode:            model.AuthMode(resp.AuthRequirements.AuthMode),
			RequiresCertificate: resp.AuthRequirements.RequiresCertificate,
			RequiresLoginSenha:  resp.AuthRequirements.RequiresLoginSenha,
		}
	}
	return req, nil
}

type triggerResponse struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ProcessMunicipalityRetries asks the gateway to resubmit documents that a
// municipality rejected with a transient error.
func (c *Client) ProcessMunicipalityRetries(ctx context.Context) error {
	return c.trigger(ctx, "/v1/municipalities/retries", "municipality retries")
}

// SyncInvoiceStatuses asks the gateway to refresh pending invoice statuses.
func (c *Client) SyncInvoiceStatuses(ctx context.Context) error {
	return c.trigger(ctx, "/v1/invoices/status-sync", "invoice status sync")
}

func (c *Client) trigger(ctx context.Context, path, job string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for gateway rate limit: %w", err)
	}

	var resp triggerResponse
	if err := c.do(ctx, c.http, http.MethodPost, path, &resp); err != nil {
		return fmt.Errorf("%s: %w", job, err)
	}

	slog.Info("gateway job complete", "job", job, "processed", resp.Processed, "failed", resp.Failed)
	return nil
}

func (c *Client) do(ctx context.Context, client *http.Client, method, path string, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if resp.Header.Get(httpcache.XFromCache) != "" {
		slog.Debug("gateway response served from cache", "path", path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding response: %w", err)
	}
	// httpcache stores the response only once the body reaches EOF.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// errorMessage extracts {"message": "..."} from an error body, falling back
// to the trimmed raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}
