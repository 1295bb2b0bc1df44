package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jafarshop/dropsync/internal/domain"
	"github.com/jafarshop/dropsync/internal/metrics"
	"github.com/jafarshop/dropsync/pkg/errors"
)

const (
	// DefaultTokenMargin is kept in reserve before expiry
	DefaultTokenMargin = 5 * time.Minute
	// DefaultFallbackTTL is assumed when the server omits an expiry
	DefaultFallbackTTL = 2 * time.Hour

	defaultRetryAfter = 60 * time.Second
	authPath          = "/authentication"
	maxAuthBodySize   = 1 << 20
)

// expiryLayouts are the timezone-qualified formats the supplier has used
// for accessTokenExpiryDate
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05-07:00",
}

// TokenConfig configures a TokenManager
type TokenConfig struct {
	BaseURL     string
	Credential  domain.Credential
	Margin      time.Duration
	FallbackTTL time.Duration
	// Store is optional; when set, sessions are shared under StoreKey
	Store    SessionStore
	StoreKey string
}

// TokenManager owns the supplier session: it caches the access token and
// refreshes it before it expires. Only one refresh runs at a time; callers
// arriving meanwhile wait for and share its result.
type TokenManager struct {
	authURL     string
	credential  domain.Credential
	margin      time.Duration
	fallbackTTL time.Duration
	store       SessionStore
	storeKey    string
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     metrics.Recorder
	now         func() time.Time

	mu        sync.Mutex
	session   *Session
	refreshes singleflight.Group
}

// NewTokenManager creates a TokenManager
func NewTokenManager(cfg TokenConfig, httpClient *http.Client, logger *zap.Logger, rec metrics.Recorder) *TokenManager {
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultTokenMargin
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = DefaultFallbackTTL
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &TokenManager{
		authURL:     strings.TrimSuffix(cfg.BaseURL, "/") + authPath,
		credential:  cfg.Credential,
		margin:      cfg.Margin,
		fallbackTTL: cfg.FallbackTTL,
		store:       cfg.Store,
		storeKey:    cfg.StoreKey,
		httpClient:  httpClient,
		logger:      logger,
		metrics:     rec,
		now:         time.Now,
	}
}

// Token returns an access token that stays valid for at least the margin,
// refreshing the session first when needed
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if s := m.cached(ctx); s != nil {
		return s.AccessToken, nil
	}

	v, err, _ := m.refreshes.Do("refresh", func() (interface{}, error) {
		// A refresh that finished while we queued is good enough
		if s := m.current(); s.usable(m.now(), m.margin) {
			return s, nil
		}
		return m.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(*Session).AccessToken, nil
}

// Invalidate drops the cached session if it still holds token. Called when
// the supplier rejects a token before its declared expiry.
func (m *TokenManager) Invalidate(ctx context.Context, token string) {
	m.mu.Lock()
	if m.session == nil || m.session.AccessToken != token {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, m.storeKey); err != nil {
			m.logger.Warn("Failed to delete shared supplier session", zap.Error(err))
		}
	}
}

func (m *TokenManager) current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// cached returns a usable session from memory or the shared store
func (m *TokenManager) cached(ctx context.Context) *Session {
	now := m.now()
	if s := m.current(); s.usable(now, m.margin) {
		return s
	}
	if m.store == nil {
		return nil
	}

	s, err := m.store.Load(ctx, m.storeKey)
	if err != nil {
		m.logger.Warn("Failed to load shared supplier session", zap.Error(err))
		return nil
	}
	if !s.usable(now, m.margin) {
		return nil
	}

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
	return s
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Code    domain.FlexInt `json:"code"`
	Result  *bool          `json:"result"`
	Message string         `json:"message"`
	Data    *struct {
		AccessToken           string            `json:"accessToken"`
		AccessTokenExpiryDate domain.FlexString `json:"accessTokenExpiryDate"`
	} `json:"data"`
}

// refresh authenticates and replaces the session wholesale. On any failure
// the previous session is left as it was.
func (m *TokenManager) refresh(ctx context.Context) (*Session, error) {
	payload, err := json.Marshal(authRequest{Email: m.credential.Email, Password: m.credential.Secret})
	if err != nil {
		return nil, &errors.AuthError{Reason: "failed to encode credentials", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &errors.AuthError{Reason: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.metrics.RecordTokenRefresh("network_error")
		return nil, &errors.NetworkError{Op: "authenticate", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBodySize))
	if err != nil {
		m.metrics.RecordTokenRefresh("network_error")
		return nil, &errors.NetworkError{Op: "authenticate", Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		m.metrics.RecordTokenRefresh("rate_limited")
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), m.now())
		m.logger.Warn("Supplier authentication rate limited", zap.Duration("retry_after", retryAfter))
		return nil, &errors.RateLimitError{RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.metrics.RecordTokenRefresh("rejected")
		return nil, &errors.AuthError{Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	var authResp authResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		m.metrics.RecordTokenRefresh("malformed")
		return nil, &errors.AuthError{Reason: "malformed response", Err: err}
	}
	if authResp.Code != 200 || (authResp.Result != nil && !*authResp.Result) {
		m.metrics.RecordTokenRefresh("rejected")
		msg := authResp.Message
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &errors.AuthError{Reason: msg}
	}
	if authResp.Data == nil || authResp.Data.AccessToken == "" {
		m.metrics.RecordTokenRefresh("malformed")
		return nil, &errors.AuthError{Reason: "response carried no access token"}
	}

	now := m.now()
	expiresAt, ok := parseExpiry(string(authResp.Data.AccessTokenExpiryDate))
	if !ok {
		expiresAt = now.Add(m.fallbackTTL).UTC()
		m.logger.Info("Supplier did not declare a usable token expiry, using fallback",
			zap.Duration("fallback_ttl", m.fallbackTTL),
		)
	}

	session := &Session{AccessToken: authResp.Data.AccessToken, ExpiresAt: expiresAt}
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(ctx, m.storeKey, session); err != nil {
			m.logger.Warn("Failed to share supplier session", zap.Error(err))
		}
	}

	m.metrics.RecordTokenRefresh("ok")
	m.logger.Info("Authenticated with supplier API", zap.Time("expires_at", expiresAt))
	return session, nil
}

// parseExpiry parses the supplier's expiry timestamp and normalizes it to UTC
func parseExpiry(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
