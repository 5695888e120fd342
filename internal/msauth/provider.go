// Package msauth acquires and caches Bot Framework access tokens from the
// Microsoft identity platform, using either a shared secret or a
// certificate-based client assertion.
package msauth

import (
	"context"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/teams-notifier/activity-api/internal/models"
)

// DefaultScope is the OAuth2 scope for the Bot Framework Connector audience.
const DefaultScope = "https://api.botframework.com/.default"

const (
	loginBase = "https://login.microsoftonline.com"
	// botFrameworkTenant is used when no tenant id is configured
	// (multi-tenant bot registrations).
	botFrameworkTenant = "botframework.com"

	// refreshMargin is how long before expiry a cached token is considered
	// stale and proactively refreshed.
	refreshMargin = 5 * time.Minute

	// assertionLifetime is the validity window of a signed client assertion.
	assertionLifetime = 10 * time.Minute
)

// Config configures a Provider. Exactly one credential kind must be set:
// Password, or Certificate together with PrivateKey (both PEM).
type Config struct {
	AppID    string
	TenantID string

	Password    string
	Certificate []byte
	PrivateKey  []byte

	// TokenEndpoint overrides the derived identity endpoint (tests).
	TokenEndpoint string
	// Scope overrides DefaultScope (tests).
	Scope string

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Provider obtains bearer tokens for the Connector audience and caches them
// until shortly before expiry. Concurrent refreshes collapse into a single
// identity-provider round trip.
type Provider struct {
	appID    string
	secret   string
	endpoint string
	scope    string

	signKey    *rsa.PrivateKey
	thumbprint string

	httpClient *http.Client
	logger     zerolog.Logger

	group singleflight.Group

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// New creates a Provider from the given configuration.
func New(cfg Config) (*Provider, error) {
	if cfg.AppID == "" {
		return nil, errors.New("msauth: app id is required")
	}

	hasSecret := cfg.Password != ""
	hasCert := len(cfg.Certificate) > 0 || len(cfg.PrivateKey) > 0
	if hasSecret == hasCert {
		return nil, errors.New("msauth: exactly one of password or certificate+private key must be configured")
	}

	endpoint := cfg.TokenEndpoint
	if endpoint == "" {
		tenant := cfg.TenantID
		if tenant == "" {
			tenant = botFrameworkTenant
		}
		endpoint = fmt.Sprintf("%s/%s/oauth2/v2.0/token", loginBase, tenant)
	}

	scope := cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	p := &Provider{
		appID:      cfg.AppID,
		secret:     cfg.Password,
		endpoint:   endpoint,
		scope:      scope,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "msauth").Logger(),
	}

	if hasCert {
		if len(cfg.Certificate) == 0 || len(cfg.PrivateKey) == 0 {
			return nil, errors.New("msauth: certificate mode requires both certificate and private key")
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("msauth: parse private key: %w", err)
		}
		thumbprint, err := certThumbprint(cfg.Certificate)
		if err != nil {
			return nil, fmt.Errorf("msauth: parse certificate: %w", err)
		}
		p.signKey = key
		p.thumbprint = thumbprint
	}

	return p, nil
}

// certThumbprint computes the base64url SHA-1 thumbprint of the certificate,
// the value Entra ID expects in the assertion's x5t header.
func certThumbprint(pemCert []byte) (string, error) {
	block, _ := pem.Decode(pemCert)
	if block == nil || block.Type != "CERTIFICATE" {
		return "", errors.New("no CERTIFICATE block found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(cert.Raw)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// Token returns a valid bearer token, refreshing it when the cached one is
// absent or within the refresh margin of its expiry.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, expiry := p.token, p.expiry
	p.mu.RUnlock()

	if token != "" && time.Until(expiry) > refreshMargin {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		// A refresh that finished while we were queued is good enough.
		p.mu.RLock()
		cached, cachedExpiry := p.token, p.expiry
		p.mu.RUnlock()
		if cached != "" && cached != token && time.Until(cachedExpiry) > refreshMargin {
			return cached, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token if it is still the given one. Called
// after the Connector answers 401 so the next Token call performs a forced
// refresh without stomping a token refreshed in the meantime.
func (p *Provider) Invalidate(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == token {
		p.token = ""
		p.expiry = time.Time{}
	}
}

func (p *Provider) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.appID)
	form.Set("scope", p.scope)

	if p.secret != "" {
		form.Set("client_secret", p.secret)
	} else {
		assertion, err := p.clientAssertion()
		if err != nil {
			return "", fmt.Errorf("msauth: build client assertion: %w: %v", models.ErrAuthenticationFailed, err)
		}
		form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
		form.Set("client_assertion", assertion)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("msauth: %w: %v", models.ErrAuthenticationFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("msauth: token endpoint unreachable: %w: %v", models.ErrAuthenticationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		p.logger.Error().
			Int("status", resp.StatusCode).
			Msg("token request rejected by identity provider")
		return "", fmt.Errorf("msauth: token request returned %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(body)), models.ErrAuthenticationFailed)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("msauth: decode token response: %w: %v", models.ErrAuthenticationFailed, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("msauth: empty access token in response: %w", models.ErrAuthenticationFailed)
	}

	expiry := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	p.mu.Lock()
	p.token = tokenResp.AccessToken
	p.expiry = expiry
	p.mu.Unlock()

	p.logger.Debug().Time("expiry", expiry).Msg("access token refreshed")

	return tokenResp.AccessToken, nil
}

// clientAssertion builds the RS256-signed JWT exchanged in place of a shared
// secret: issuer and subject are the app id, audience is the token endpoint.
func (p *Provider) clientAssertion() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.appID,
		Subject:   p.appID,
		Audience:  jwt.ClaimStrings{p.endpoint},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["x5t"] = p.thumbprint

	return token.SignedString(p.signKey)
}
