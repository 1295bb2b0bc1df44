package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jafarshop/dropsync/internal/config"
	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/metrics"
	"github.com/jafarshop/dropsync/pkg/errors"
)

const (
	tokenHeader     = "CJ-Access-Token"
	codeSuccess     = 200
	maxResponseSize = 10 << 20
)

// Client calls the supplier REST API on behalf of one supplier account
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenManager
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    metrics.Recorder
}

// NewClient creates a client for the account identified by sessionKey.
// store may be nil, in which case the session is kept in process only.
func NewClient(cfg config.SupplierConfig, cred domain.Credential, store SessionStore, sessionKey string, logger *zap.Logger, rec metrics.Recorder) *Client {
	if rec == nil {
		rec = metrics.Nop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	httpClient := &http.Client{Timeout: timeout}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens: NewTokenManager(TokenConfig{
			BaseURL:     baseURL,
			Credential:  cred,
			Margin:      cfg.TokenMargin,
			FallbackTTL: cfg.TokenFallbackTTL,
			Store:       store,
			StoreKey:    sessionKey,
		}, httpClient, logger, rec),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
		metrics: rec,
	}
}

// Tokens exposes the client's session owner
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// envelope is the wrapper every supplier response uses
type envelope struct {
	Code      domain.FlexInt  `json:"code"`
	Result    *bool           `json:"result"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"requestId"`
}

// do performs one authenticated request and decodes the envelope's data
// into out. endpoint labels the request in metrics and logs.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body interface{}, out interface{}) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		c.metrics.RecordSupplierRequest(endpoint, outcome, time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		outcome = "network_error"
		return &errors.NetworkError{Op: endpoint, Err: err}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		outcome = "auth_error"
		return err
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			outcome = "encode_error"
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		outcome = "encode_error"
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(tokenHeader, token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "network_error"
		c.logger.Warn("Supplier request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return &errors.NetworkError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		outcome = "network_error"
		return &errors.NetworkError{Op: endpoint, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		outcome = "rate_limited"
		return &errors.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode == http.StatusUnauthorized:
		outcome = "auth_error"
		c.tokens.Invalidate(ctx, token)
		return &errors.AuthError{Reason: "access token rejected"}
	case resp.StatusCode >= 500:
		outcome = "server_error"
		return &errors.APIError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Transient: true}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		outcome = "malformed"
		return &errors.APIError{Code: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "api_error"
		return &errors.APIError{Code: resp.StatusCode, Message: messageOr(env.Message, http.StatusText(resp.StatusCode))}
	}
	if int(env.Code) != codeSuccess || (env.Result != nil && !*env.Result) {
		outcome = "api_error"
		c.logger.Info("Supplier rejected request",
			zap.String("endpoint", endpoint),
			zap.Int("code", int(env.Code)),
			zap.String("message", env.Message),
			zap.String("request_id", env.RequestID),
		)
		return &errors.APIError{Code: int(env.Code), Message: messageOr(env.Message, "unknown error")}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		outcome = "malformed"
		return &errors.APIError{Code: int(env.Code), Message: "malformed response data: " + err.Error()}
	}
	return nil
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
