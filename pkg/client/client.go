// Package client is a REST client for the Apstra endpoint policy
// surface: listing, exporting, importing, and deleting policies,
// batch apply for assignments, and the application points tree.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/loomworks/ctc/pkg/policy"
)

// maxErrorBody caps how much of an error response is carried in the
// returned error.
const maxErrorBody = 2048

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. https://apstra.example.com.
	BaseURL string
	// AuthToken is sent as the AuthToken header when set. Leave empty
	// and call Login to authenticate with credentials instead.
	AuthToken string
	// VerifyCertificates disables TLS verification when false.
	VerifyCertificates bool
	// Timeout bounds each request. Defaults to 30s.
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls. Zero means no limit.
	RequestsPerSecond float64
	// Logger receives per-request debug lines. Defaults to slog.Default.
	Logger *slog.Logger
}

// Client talks to one API server.
type Client struct {
	base    *url.URL
	http    *http.Client
	token   string
	limiter *rate.Limiter
	log     *slog.Logger
	tracer  trace.Tracer
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.VerifyCertificates {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		token:   opts.AuthToken,
		limiter: limiter,
		log:     log,
		tracer:  otel.Tracer("github.com/loomworks/ctc/pkg/client"),
	}, nil
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Is reports 404s as policy.ErrNotFound so callers can use errors.Is
// without losing the response detail.
func (e *APIError) Is(target error) bool {
	return target == policy.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Login authenticates with credentials and stores the returned token
// for subsequent requests.
func (c *Client) Login(ctx context.Context, username, password string) error {
	data, err := c.do(ctx, http.MethodPost, c.url("api", "user", "login"),
		map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	token := gjson.GetBytes(data, "token").String()
	if token == "" {
		return fmt.Errorf("login: response carries no token")
	}
	c.token = token
	return nil
}

// ServerVersion returns the API server version string.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodGet, c.url("api", "versions", "server"), nil)
	if err != nil {
		return "", err
	}
	v := gjson.GetBytes(data, "version").String()
	if v == "" {
		return "", fmt.Errorf("server version: response carries no version")
	}
	return v, nil
}

// CheckVersion fails when the server is older than min.
func (c *Client) CheckVersion(ctx context.Context, min string) error {
	minimum, err := semver.NewVersion(min)
	if err != nil {
		return fmt.Errorf("invalid minimum version %s: %w", min, err)
	}
	got, err := c.ServerVersion(ctx)
	if err != nil {
		return err
	}
	current, err := semver.NewVersion(got)
	if err != nil {
		return fmt.Errorf("invalid server version %s: %w", got, err)
	}
	if current.LessThan(minimum) {
		return fmt.Errorf("server version %s is older than the minimum supported %s", current, minimum)
	}
	return nil
}

// ListPolicies returns every endpoint policy in the blueprint. The
// server wraps the list in an endpoint_policies envelope; bare lists
// are accepted too.
func (c *Client) ListPolicies(ctx context.Context, blueprint string) ([]policy.Policy, error) {
	data, err := c.do(ctx, http.MethodGet, c.url("api", "blueprints", blueprint, "endpoint-policies"), nil)
	if err != nil {
		return nil, err
	}
	if eps := gjson.GetBytes(data, "endpoint_policies"); eps.Exists() {
		data = []byte(eps.Raw)
	}
	policies, err := policy.DecodePolicyBytes(data)
	if err != nil {
		return nil, fmt.Errorf("list endpoint policies: %w", err)
	}
	return policies, nil
}

// ExportPolicies returns the full policy graph of one template.
func (c *Client) ExportPolicies(ctx context.Context, blueprint, ctID string) ([]policy.Policy, error) {
	data, err := c.do(ctx, http.MethodGet, c.url("api", "blueprints", blueprint, "obj-policy-export", ctID), nil)
	if err != nil {
		return nil, err
	}
	policies, err := policy.DecodePolicyBytes(data)
	if err != nil {
		return nil, fmt.Errorf("export policies: %w", err)
	}
	return policies, nil
}

// ImportPolicies uploads a policy graph.
func (c *Client) ImportPolicies(ctx context.Context, blueprint string, payload policy.ImportPayload) error {
	_, err := c.do(ctx, http.MethodPut, c.url("api", "blueprints", blueprint, "obj-policy-import"), payload)
	return err
}

// DeletePolicy removes one policy node. Deleting a visible batch tears
// down its whole template.
func (c *Client) DeletePolicy(ctx context.Context, blueprint, policyID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.url("api", "blueprints", blueprint, "endpoint-policies", policyID), nil)
	return err
}

// PatchPolicyAttributes rewrites attributes on one policy node.
func (c *Client) PatchPolicyAttributes(ctx context.Context, blueprint, policyID string, attrs map[string]any) error {
	_, err := c.do(ctx, http.MethodPatch, c.url("api", "blueprints", blueprint, "endpoint-policies", policyID),
		map[string]any{"attributes": attrs})
	return err
}

// BatchApply applies and removes template assignments in one call.
func (c *Client) BatchApply(ctx context.Context, blueprint string, payload policy.BatchApplyPayload) error {
	_, err := c.do(ctx, http.MethodPatch, c.url("api", "blueprints", blueprint, "obj-policy-batch-apply"), payload)
	return err
}

// ApplicationPoints returns the application points tree for one
// template. Numbers keep their textual form.
func (c *Client) ApplicationPoints(ctx context.Context, blueprint, ctID string) (any, error) {
	data, err := c.do(ctx, http.MethodGet, c.url("api", "blueprints", blueprint, "endpoint-policies", ctID, "application-points"), nil)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode application points: %w", err)
	}
	return tree, nil
}

func (c *Client) url(parts ...string) string {
	u := *c.base
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, u.Path)
	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}
	u.Path = path.Join(escaped...)
	return u.String()
}

func (c *Client) do(ctx context.Context, method, urlStr string, in any) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, method+" "+urlStr)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("AuthToken", c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s %s: %w", method, urlStr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.Debug("api request",
		"method", method,
		"url", urlStr,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(data))
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody] + "..."
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, URL: urlStr, Body: detail}
		span.RecordError(apiErr)
		return nil, apiErr
	}
	return data, nil
}
