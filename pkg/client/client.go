// Package client provides the Go SDK for the resource directory HTTP API:
// registering endpoints, refreshing and removing registrations, and
// running lookup queries.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when an operation addresses a registration the
// directory no longer holds (e.g. it expired).
var ErrNotFound = errors.New("registration not found on directory")

// RegisterOptions are the parameters for Register.
type RegisterOptions struct {
	// EndpointName is mandatory and unique within the domain.
	EndpointName string
	// Domain is optional; the directory assumes its default when empty.
	Domain string
	// EndpointType is the optional "et" parameter.
	EndpointType string
	// LifetimeSeconds is the optional "lt" parameter; 0 elides it.
	LifetimeSeconds int
	// Context is the optional explicit "con" URI (scheme://host:port).
	Context string
	// Payload is the link-format document describing the endpoint's
	// resources.
	Payload string
}

// UpdateOptions are the parameters for Update. Zero values elide the
// corresponding query parameter so the registration keeps its state.
type UpdateOptions struct {
	LifetimeSeconds int
	Context         string
	Payload         string
}

// RegisterResult reports the outcome of a Register call.
type RegisterResult struct {
	// Location addresses the registration for Update/ReadLinks/Remove.
	// Empty on an idempotent refresh (the prior location stays valid).
	Location string
	// Created is true for a fresh registration, false for a refresh of an
	// existing one.
	Created bool
}

// Client talks to one resource directory.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client for the directory at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func registrationQuery(name, domain, endpointType string, lifetimeSeconds int, context string) url.Values {
	q := url.Values{}
	if name != "" {
		q.Set("ep", name)
	}
	if domain != "" {
		q.Set("d", domain)
	}
	if endpointType != "" {
		q.Set("et", endpointType)
	}
	if lifetimeSeconds > 0 {
		q.Set("lt", strconv.Itoa(lifetimeSeconds))
	}
	if context != "" {
		q.Set("con", context)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/link-format")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, want ...int) error {
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("directory returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// Register registers (or idempotently refreshes) an endpoint and returns
// the registration's location.
func (c *Client) Register(ctx context.Context, opts RegisterOptions) (*RegisterResult, error) {
	q := registrationQuery(opts.EndpointName, opts.Domain, opts.EndpointType, opts.LifetimeSeconds, opts.Context)
	resp, err := c.do(ctx, http.MethodPost, "/rd", q, opts.Payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusCreated, http.StatusNoContent); err != nil {
		return nil, err
	}
	res := &RegisterResult{Created: resp.StatusCode == http.StatusCreated}
	if res.Created {
		res.Location = strings.TrimPrefix(resp.Header.Get("Location"), "/rd/")
		if res.Location == "" {
			return nil, fmt.Errorf("directory omitted Location header")
		}
	}
	return res, nil
}

// Update refreshes a registration at its location, resetting its lifetime
// and optionally replacing the context or adding links.
func (c *Client) Update(ctx context.Context, location string, opts UpdateOptions) error {
	q := registrationQuery("", "", "", opts.LifetimeSeconds, opts.Context)
	resp, err := c.do(ctx, http.MethodPost, "/rd/"+url.PathEscape(location), q, opts.Payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

// ReadLinks returns the registration's current links as link-format text,
// optionally narrowed by a filter such as "rt=temperature".
func (c *Client) ReadLinks(ctx context.Context, location, filter string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rd/"+url.PathEscape(location)+rawFilter(filter), nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

// Remove deletes a registration.
func (c *Client) Remove(ctx context.Context, location string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/rd/"+url.PathEscape(location), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp, http.StatusNoContent)
}

func rawFilter(filter string) string {
	if filter == "" {
		return ""
	}
	return "?" + filter
}

func (c *Client) lookup(ctx context.Context, kind, filter string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rd-lookup/"+kind+rawFilter(filter), nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

// LookupDomains queries the domain lookup function set.
func (c *Client) LookupDomains(ctx context.Context, filter string) (string, error) {
	return c.lookup(ctx, "d", filter)
}

// LookupEndpoints queries the endpoint lookup function set.
func (c *Client) LookupEndpoints(ctx context.Context, filter string) (string, error) {
	return c.lookup(ctx, "ep", filter)
}

// LookupResources queries the resource lookup function set.
func (c *Client) LookupResources(ctx context.Context, filter string) (string, error) {
	return c.lookup(ctx, "res", filter)
}
