package cegid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/smallbiznis/ledgerbridge/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbridge/internal/observability/tracing"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	providerName           = "cegid"
	maxBodyRead            = 1 << 20
	defaultTimeout         = 60 * time.Second
	defaultSubaccountTries = 10
)

// Credentials authenticate against the accounting API with a password grant.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// Client talks to the accounting API on behalf of one company.
//
// The bearer token is mutable per-client state guarded by tokenMu. Every
// authenticated call re-authenticates inline once on HTTP 401 and retries.
type Client struct {
	baseURL     string
	companyCode string
	creds       Credentials
	http        *http.Client
	log         *zap.Logger
	metrics     *metrics.Metrics

	tokenMu sync.Mutex
	token   *oauth2.Token

	sessionMu sync.Mutex
	session   *Session

	subaccountOffset int64
	subaccountTries  int
}

// Factory builds company-scoped clients sharing one transport.
type Factory struct {
	cfg     config.CegidConfig
	tries   int
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewFactory(cfg config.Config, log *zap.Logger, m *metrics.Metrics) *Factory {
	timeout := cfg.Cegid.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Factory{
		cfg:     cfg.Cegid,
		tries:   cfg.Sync.MaxSubaccountRetries,
		http:    tracing.WrapHTTPClient(&http.Client{Timeout: timeout}, providerName),
		log:     log.Named("cegid"),
		metrics: m,
	}
}

func (f *Factory) ForCompany(companyCode string) *Client {
	c := NewClient(f.cfg.BaseURL, companyCode, Credentials{
		Username:     f.cfg.Username,
		Password:     f.cfg.Password,
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
	}, f.http, f.log, f.metrics)
	c.subaccountOffset = f.cfg.SubaccountBase
	if f.tries > 0 {
		c.subaccountTries = f.tries
	}
	return c
}

func NewClient(baseURL, companyCode string, creds Credentials, httpClient *http.Client, log *zap.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:         strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		companyCode:     strings.TrimSpace(companyCode),
		creds:           creds,
		http:            httpClient,
		log:             log.With(zap.String("company_code", strings.TrimSpace(companyCode))),
		metrics:         m,
		subaccountTries: defaultSubaccountTries,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Authenticate obtains a fresh company-scoped token and stores it on the client.
func (c *Client) Authenticate(ctx context.Context) (*oauth2.Token, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) (*oauth2.Token, error) {
	if c.creds.Username == "" || c.creds.Password == "" || c.creds.ClientID == "" {
		return nil, ErrMissingCredentials
	}
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)
	form.Set("cod_empresa", c.companyCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamRequest(ctx, providerName, "token", 0, time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstreamRequest(ctx, providerName, "token", resp.StatusCode, time.Since(start))

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, tracing.SafeError(fmt.Errorf("%s", body)))
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: decode token: %v", ErrAuthFailed, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s", ErrAuthFailed, strings.TrimSpace(tr.Error+" "+tr.ErrorDescription))
	}

	tok := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: tr.TokenType}
	if tr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	c.token = tok
	c.log.Info("cegid.token.renewed", zap.Time("expiry", tok.Expiry))
	return tok, nil
}

func (c *Client) currentToken(ctx context.Context) (*oauth2.Token, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != nil && c.token.Valid() {
		return c.token, nil
	}
	return c.authenticateLocked(ctx)
}

// renewAfter re-authenticates unless another caller already replaced stale.
func (c *Client) renewAfter(ctx context.Context, stale *oauth2.Token) (*oauth2.Token, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != nil && c.token != stale && c.token.Valid() {
		return c.token, nil
	}
	return c.authenticateLocked(ctx)
}

type response struct {
	status int
	body   []byte
}

// do sends an authenticated JSON request. A 401 triggers exactly one
// re-authentication and retry; the second response is returned as is.
func (c *Client) do(ctx context.Context, method, path, endpoint string, payload any) (response, error) {
	var encoded []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("encode %s: %w", endpoint, err)
		}
		encoded = b
	}

	tok, err := c.currentToken(ctx)
	if err != nil {
		return response{}, err
	}
	resp, err := c.send(ctx, method, path, endpoint, encoded, tok)
	if err != nil {
		return response{}, err
	}
	if resp.status != http.StatusUnauthorized {
		return resp, nil
	}

	c.log.Warn("cegid.token.expired", zap.String("endpoint", endpoint))
	tok, err = c.renewAfter(ctx, tok)
	if err != nil {
		return response{}, err
	}
	resp, err = c.send(ctx, method, path, endpoint, encoded, tok)
	if err != nil {
		return response{}, err
	}
	if resp.status == http.StatusUnauthorized {
		return resp, ErrUnauthorized
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path, endpoint string, payload []byte, tok *oauth2.Token) (response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, err
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamRequest(ctx, providerName, endpoint, 0, time.Since(start))
		return response{}, fmt.Errorf("cegid %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstreamRequest(ctx, providerName, endpoint, resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return response{}, fmt.Errorf("cegid %s: read body: %w", endpoint, err)
	}
	c.log.Debug("cegid.request",
		zap.String("endpoint", endpoint),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return response{status: resp.StatusCode, body: data}, nil
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r response) apiError(path string) *APIError {
	return &APIError{StatusCode: r.status, Path: path, Body: strings.TrimSpace(string(r.body))}
}

func formatCode(code int64) string {
	return strconv.FormatInt(code, 10)
}
