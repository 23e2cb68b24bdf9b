// Package redfish is the HTTP transport used to read a Redfish service.
package redfish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"redfish-mockup-creator/pkg/jsontree"
	"redfish-mockup-creator/pkg/types"
)

// Auth modes.
const (
	AuthNone    = "None"
	AuthBasic   = "Basic"
	AuthSession = "Session"
)

// Header names used by Redfish session auth.
const (
	HeaderAuthToken = "X-Auth-Token"
	HeaderLocation  = "Location"
)

// ErrLoginFailed wraps every session login failure.
var ErrLoginFailed = errors.New("redfish login failed")

// Transport is what the crawler needs from a service client.
type Transport interface {
	Login(ctx context.Context, sessionsURI string) error
	Get(ctx context.Context, uri string, opts GetOptions) (*types.Response, error)
	Logout(ctx context.Context) error
}

// GetOptions alters a single GET.
type GetOptions struct {
	// XML asks for the CSDL representation and skips JSON parsing.
	XML bool
	// Unauthenticated omits credentials, used for the service entry points.
	Unauthenticated bool
}

// Options controls the client.
type Options struct {
	Host         string
	Secure       bool
	User         string
	Password     string
	Auth         string
	VerifyTLS    bool
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBodyBytes int64
	ProxyURL     string
	Pacing       PacerSettings
	Logger       *slog.Logger
	// HTTPClient replaces the default client, used by tests.
	HTTPClient *http.Client
}

// Client talks to one Redfish service.
type Client struct {
	client       *http.Client
	base         string
	user         string
	password     string
	auth         string
	userAgent    string
	extraHeaders map[string]string
	maxRetries   int
	backoff      time.Duration
	maxBodyBytes int64
	pacer        *Pacer
	logger       *slog.Logger

	token      string
	sessionURI string
}

// NewClient builds a client for opts.Host.
func NewClient(opts Options) (*Client, error) {
	base, err := baseURL(opts.Host, opts.Secure)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 * 1024 * 1024
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Auth == "" {
		opts.Auth = AuthBasic
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := opts.HTTPClient
	if client == nil {
		transport := &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			MaxIdleConns:          4,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			// BMCs ship self-signed certificates.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !opts.VerifyTLS}, //nolint:gosec
		}
		if strings.TrimSpace(opts.ProxyURL) != "" {
			proxyURL, err := url.Parse(opts.ProxyURL)
			if err != nil {
				return nil, fmt.Errorf("parse proxy url: %w", err)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		client = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		client:       client,
		base:         base,
		user:         opts.User,
		password:     opts.Password,
		auth:         opts.Auth,
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxRetries:   opts.MaxRetries,
		backoff:      opts.RetryBackoff,
		maxBodyBytes: opts.MaxBodyBytes,
		pacer:        NewPacer(opts.Pacing),
		logger:       logger,
	}, nil
}

func baseURL(host string, secure bool) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.New("rhost must be provided")
	}
	if !strings.Contains(host, "://") {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		host = scheme + "://" + host
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("parse rhost: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("rhost %q has no host", host)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

// Base returns the scheme and host requests are sent to.
func (c *Client) Base() string {
	return c.base
}

// Login opens a Redfish session when session auth is configured. Other auth
// modes need no login.
func (c *Client) Login(ctx context.Context, sessionsURI string) error {
	if c.auth != AuthSession {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"UserName": c.user, "Password": c.password})
	if err != nil {
		return fmt.Errorf("%w: encode credentials: %w", ErrLoginFailed, err)
	}
	resp, err := c.do(ctx, http.MethodPost, sessionsURI, payload, GetOptions{Unauthenticated: true})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: POST %s returned %d", ErrLoginFailed, sessionsURI, resp.StatusCode)
	}
	token := headerValue(resp.Headers, HeaderAuthToken)
	if token == "" {
		return fmt.Errorf("%w: no %s in response", ErrLoginFailed, HeaderAuthToken)
	}
	c.token = token
	c.sessionURI = c.localPath(headerValue(resp.Headers, HeaderLocation))
	c.logger.Debug("session opened", "session", c.sessionURI)
	return nil
}

// Logout deletes the session opened by Login.
func (c *Client) Logout(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	defer func() {
		c.token = ""
		c.sessionURI = ""
	}()
	if c.sessionURI == "" {
		return nil
	}
	resp, err := c.do(ctx, http.MethodDelete, c.sessionURI, nil, GetOptions{})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("delete session %s returned %d", c.sessionURI, resp.StatusCode)
	}
	c.logger.Debug("session closed", "session", c.sessionURI)
	return nil
}

// Get reads uri. Non-2xx answers are returned as responses; the error is
// reserved for transport failures that survived the retries.
func (c *Client) Get(ctx context.Context, uri string, opts GetOptions) (*types.Response, error) {
	resp, err := c.do(ctx, http.MethodGet, uri, nil, opts)
	if err != nil {
		return nil, err
	}
	if !opts.XML && resp.OK() && len(resp.Body) > 0 {
		resp.JSON, resp.ParseErr = jsontree.Decode(resp.Body)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, uri string, body []byte, opts GetOptions) (*types.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying request", "method", method, "uri", uri, "attempt", attempt, "error", lastErr)
			if err := sleep(ctx, c.backoff); err != nil {
				return nil, err
			}
		}
		resp, err := c.once(ctx, method, uri, body, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError && attempt < c.maxRetries {
			lastErr = fmt.Errorf("%s %s returned %d", method, uri, resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, uri string, body []byte, opts GetOptions) (*types.Response, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	var payload io.Reader
	if body != nil {
		payload = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(uri), payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if opts.XML {
		req.Header.Set("Accept", "application/xml")
		req.Header.Set("OData-Version", "4.0")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}
	if !opts.Unauthenticated {
		switch {
		case c.token != "":
			req.Header.Set(HeaderAuthToken, c.token)
		case c.auth == AuthBasic:
			req.SetBasicAuth(c.user, c.password)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http %s failed: %w", strings.ToLower(method), err)
	}
	headerLatency := time.Since(start)

	data, err := readBody(resp, c.maxBodyBytes)
	if err != nil {
		return nil, err
	}
	return &types.Response{
		URI:           uri,
		StatusCode:    resp.StatusCode,
		Headers:       flattenHeaders(resp.Header),
		Body:          data,
		HeaderLatency: headerLatency,
		Elapsed:       time.Since(start),
		FetchedAt:     time.Now(),
	}, nil
}

// resolve turns a service path into an absolute URL. Absolute URLs pass through.
func (c *Client) resolve(uri string) string {
	if strings.Contains(uri, "://") {
		return uri
	}
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	return c.base + uri
}

// localPath strips the scheme and host of a Location header.
func (c *Client) localPath(location string) string {
	if location == "" || strings.HasPrefix(location, "/") {
		return location
	}
	parsed, err := url.Parse(location)
	if err != nil || parsed.Path == "" {
		return location
	}
	return parsed.RequestURI()
}

func headerValue(headers []types.Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
