package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	// RefreshCookieName carries the refresh token. Path-scoped to the auth
	// endpoints so it never travels with business requests.
	RefreshCookieName = "velo_refresh"
	refreshCookiePath = "/v1/auth"

	minSecretBytes = 32
)

// Claims are the JWT claims this service issues and validates.
type Claims struct {
	Role      string `json:"role,omitempty"`
	Country   string `json:"country,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService issues and validates access and refresh JWTs. Access tokens are
// stateless: validity is proven by signature and expiry only. Refresh tokens
// are signed with a secret derived from the access secret via a keyed hash,
// so the two can never validate against each other.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	secureCookies bool
	now           func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithSecureCookies toggles Secure + SameSite=Strict on the refresh cookie.
// Enabled in production.
func WithSecureCookies(secure bool) TokenOption {
	return func(s *TokenService) { s.secureCookies = secure }
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs the service. A missing or short signing secret is
// a ConfigurationError; callers treat it as fatal at startup.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < minSecretBytes {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("signing secret must be at least %d bytes, got %d", minSecretBytes, len(secret)),
		}
	}
	s := &TokenService{
		accessSecret:  secret,
		refreshSecret: deriveSecret(secret, "refresh-token"),
		issuer:        "veloeats",
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func deriveSecret(secret []byte, label string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(label))
	return mac.Sum(nil)
}

// IssueAccessToken signs a short-lived access token bearing the principal's
// id, role and country code.
func (s *TokenService) IssueAccessToken(p *Principal) (string, time.Time, error) {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return "", time.Time{}, errors.New("auth: principal is required")
	}
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Role:      string(p.Role),
		Country:   p.CountryCode,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a long-lived refresh token. The returned jti is
// persisted on the principal so rotation can supersede earlier tokens.
func (s *TokenService) IssueRefreshToken(principalID string) (token, jti string, exp time.Time, err error) {
	if strings.TrimSpace(principalID) == "" {
		return "", "", time.Time{}, errors.New("auth: principal id is required")
	}
	now := s.now().UTC()
	exp = now.Add(s.refreshTTL)
	jti = uuid.NewString()
	claims := Claims{
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	signed, signErr := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if signErr != nil {
		return "", "", time.Time{}, fmt.Errorf("sign refresh token: %w", signErr)
	}
	return signed, jti, exp, nil
}

// ValidateAccessToken verifies signature, expiry and token type.
func (s *TokenService) ValidateAccessToken(token string) (*Claims, error) {
	return s.validate(token, tokenTypeAccess, s.accessSecret)
}

// ValidateRefreshToken verifies a refresh token. It never authorizes a
// business operation directly; the only caller is the refresh flow.
func (s *TokenService) ValidateRefreshToken(token string) (*Claims, error) {
	return s.validate(token, tokenTypeRefresh, s.refreshSecret)
}

func (s *TokenService) validate(token, wantType string, secret []byte) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshCookie wraps a refresh token into the HTTP-only auth-path cookie.
func (s *TokenService) RefreshCookie(token string, expiresAt time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if s.secureCookies {
		c.SameSite = http.SameSiteStrictMode
	}
	return c
}

// ClearRefreshCookie returns an expired cookie that removes the refresh token.
// Used on logout and on any refresh validation failure (fail closed).
func (s *TokenService) ClearRefreshCookie() *http.Cookie {
	c := s.RefreshCookie("", time.Unix(0, 0))
	c.MaxAge = -1
	return c
}
