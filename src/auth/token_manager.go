package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"autotrader/src/externalmodel"
	"autotrader/src/ratelimit"
	"autotrader/src/utils"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"
)

const (
	tokenPath  = "/oauth2/token"
	revokePath = "/oauth2/revoke"

	defaultTokenLifetime = 24 * time.Hour
)

var (
	// ErrAuthCooldown is returned while the token endpoint is backing off
	// after a 429.
	ErrAuthCooldown = errors.New("token endpoint cooling down after rate limit")
	ErrAuthFailed   = errors.New("token request rejected")
)

// TokenStatus is a point-in-time view of the lease.
type TokenStatus struct {
	HasToken      bool       `json:"has_token"`
	Valid         bool       `json:"valid"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// TokenManager owns the single broker bearer token. Concurrent callers are
// serialised so that at most one token request is in flight.
type TokenManager struct {
	http         *resty.Client
	appKey       string
	appSecret    string
	safetyMargin time.Duration
	cooldown     time.Duration
	clock        utils.Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	last429   time.Time
}

func NewTokenManager(cfg Config, appKey, appSecret string, clock utils.Clock) *TokenManager {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TokenManager{
		http: resty.New().
			SetBaseURL(cfg.BaseURL()).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json;charset=UTF-8"),
		appKey:       appKey,
		appSecret:    appSecret,
		safetyMargin: cfg.SafetyMargin,
		cooldown:     cfg.Cooldown,
		clock:        clock,
	}
}

// GetValidToken returns the cached token while it is outside the safety
// margin, otherwise refreshes (falling back to a fresh authentication).
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.validLocked() {
		return m.token, nil
	}

	if m.token != "" {
		if err := m.refreshLocked(ctx); err == nil {
			return m.token, nil
		} else if errors.Is(err, ErrAuthCooldown) {
			return "", err
		} else {
			logger.WithField("component", "token-manager").WithError(err).
				Warn("token refresh failed, re-authenticating")
		}
	}

	if err := m.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

// Authenticate requests a new token unconditionally.
func (m *TokenManager) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticateLocked(ctx)
}

// Refresh renews the current token, authenticating when there is none.
func (m *TokenManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return m.authenticateLocked(ctx)
	}
	if err := m.refreshLocked(ctx); err != nil {
		if errors.Is(err, ErrAuthCooldown) {
			return err
		}
		return m.authenticateLocked(ctx)
	}
	return nil
}

// Revoke invalidates the token at the broker and forgets it locally.
func (m *TokenManager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" {
		return nil
	}
	token := m.token
	m.token = ""
	m.expiresAt = time.Time{}

	resp, err := m.http.R().
		SetContext(ctx).
		SetBody(externalmodel.RevokeRequest{AppKey: m.appKey, SecretKey: m.appSecret, Token: token}).
		Post(revokePath)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("revoke token: HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	logger.WithField("component", "token-manager").Info("broker token revoked")
	return nil
}

func (m *TokenManager) Status() TokenStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := TokenStatus{HasToken: m.token != "", Valid: m.validLocked()}
	if !m.expiresAt.IsZero() {
		exp := m.expiresAt
		s.ExpiresAt = &exp
	}
	if until := m.last429.Add(m.cooldown); !m.last429.IsZero() && m.clock.Now().Before(until) {
		s.CooldownUntil = &until
	}
	return s
}

func (m *TokenManager) validLocked() bool {
	if m.token == "" {
		return false
	}
	return m.clock.Now().Before(m.expiresAt.Add(-m.safetyMargin))
}

func (m *TokenManager) coolingDownLocked() bool {
	return !m.last429.IsZero() && m.clock.Now().Before(m.last429.Add(m.cooldown))
}

func (m *TokenManager) authenticateLocked(ctx context.Context) error {
	return m.requestTokenLocked(ctx, externalmodel.TokenRequest{
		GrantType: "client_credentials",
		AppKey:    m.appKey,
		SecretKey: m.appSecret,
	})
}

func (m *TokenManager) refreshLocked(ctx context.Context) error {
	return m.requestTokenLocked(ctx, externalmodel.TokenRequest{
		GrantType:    "refresh_token",
		AppKey:       m.appKey,
		SecretKey:    m.appSecret,
		RefreshToken: m.token,
	})
}

func (m *TokenManager) requestTokenLocked(ctx context.Context, body externalmodel.TokenRequest) error {
	if m.coolingDownLocked() {
		return ErrAuthCooldown
	}

	log := logger.WithFields(map[string]interface{}{
		"component":  "token-manager",
		"grant_type": body.GrantType,
	})

	resp, err := m.http.R().SetContext(ctx).SetBody(body).Post(tokenPath)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}

	raw := resp.Body()
	if resp.StatusCode() == http.StatusTooManyRequests {
		m.last429 = m.clock.Now()
		log.Warn("token endpoint returned 429, cooling down")
		return fmt.Errorf("%w: HTTP 429", ErrAuthCooldown)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d: %s", ErrAuthFailed, resp.StatusCode(), string(raw))
	}

	var tr externalmodel.TokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tr.ReturnCode != 0 || tr.Token == "" {
		apiErr := fmt.Errorf("%w: [%d] %s", ErrAuthFailed, tr.ReturnCode, tr.ReturnMsg)
		if ratelimit.IsRateLimitError(errors.New(tr.ReturnMsg)) {
			m.last429 = m.clock.Now()
			return fmt.Errorf("%w: %s", ErrAuthCooldown, tr.ReturnMsg)
		}
		return apiErr
	}

	now := m.clock.Now()
	expiresAt := now.Add(defaultTokenLifetime)
	if tr.ExpiresDt != "" {
		if parsed, err := utils.ParseBrokerTime(tr.ExpiresDt); err == nil {
			expiresAt = parsed
		} else {
			log.WithError(err).Warn("unparseable token expiry, assuming 24h")
		}
	}

	m.token = tr.Token
	m.expiresAt = expiresAt
	log.WithField("expires_at", expiresAt).Info("broker token issued")
	return nil
}
