package auth

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestTokenServiceRejectsShortSecret(t *testing.T) {
	_, err := NewTokenService([]byte("short"))
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestAccessTokenRoundtrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewTokenService(testSecret, WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}

	p := &Principal{ID: "u1", Email: "a@b.kz", Role: RoleCustomer, CountryCode: "KZ"}
	token, exp, err := svc.IssueAccessToken(p)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", exp)
	}

	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != "customer" || claims.Country != "KZ" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestAccessTokenExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := NewTokenService(testSecret, WithTokenClock(func() time.Time { return now }))

	token, _, err := svc.IssueAccessToken(&Principal{ID: "u1", Role: RoleDriver})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	later, _ := NewTokenService(testSecret, WithTokenClock(func() time.Time { return now.Add(16 * time.Minute) }))
	if _, err := later.ValidateAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenTypesDoNotCrossValidate(t *testing.T) {
	svc, _ := NewTokenService(testSecret)

	access, _, err := svc.IssueAccessToken(&Principal{ID: "u1", Role: RoleCustomer})
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	refresh, jti, _, err := svc.IssueRefreshToken("u1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if jti == "" {
		t.Fatal("expected a jti")
	}

	if _, err := svc.ValidateAccessToken(refresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not validate as access: %v", err)
	}
	if _, err := svc.ValidateRefreshToken(access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not validate as refresh: %v", err)
	}

	claims, err := svc.ValidateRefreshToken(refresh)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if claims.ID != jti {
		t.Fatalf("jti mismatch: %s != %s", claims.ID, jti)
	}
}

func TestTokenTamperingRejected(t *testing.T) {
	svc, _ := NewTokenService(testSecret)
	token, _, _ := svc.IssueAccessToken(&Principal{ID: "u1", Role: RoleCustomer})

	other, _ := NewTokenService([]byte("ffffffffffffffffffffffffffffffff"))
	if _, err := other.ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with another secret must fail: %v", err)
	}

	if _, err := svc.ValidateAccessToken(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token must fail: %v", err)
	}
}

func TestRefreshCookieFlags(t *testing.T) {
	prod, _ := NewTokenService(testSecret, WithSecureCookies(true))
	c := prod.RefreshCookie("tok", time.Now().Add(time.Hour))
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("production cookie flags wrong: %+v", c)
	}
	if c.Path != "/v1/auth" {
		t.Fatalf("cookie must be path-scoped, got %q", c.Path)
	}

	dev, _ := NewTokenService(testSecret)
	c = dev.RefreshCookie("tok", time.Now().Add(time.Hour))
	if c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("dev cookie flags wrong: %+v", c)
	}

	cleared := dev.ClearRefreshCookie()
	if cleared.MaxAge != -1 || cleared.Value != "" {
		t.Fatalf("clear cookie must expire immediately: %+v", cleared)
	}
}
