package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"veloeats.org/internal/audit"
	"veloeats.org/internal/lockout"
	"veloeats.org/internal/obs"
)

const (
	defaultMaxFailedAttempts = 5
	defaultFailureWindow     = 15 * time.Minute
	defaultLockDuration      = 15 * time.Minute
)

// Service orchestrates the login, refresh and logout flows: pre-auth throttle,
// credential verification, account lockout, second factor, token issuance and
// audit trail, in that order.
type Service struct {
	store    CredentialStore
	tokens   *TokenService
	second   *SecondFactor
	guard    *lockout.Guard
	recorder *audit.Recorder

	maxFailed    int
	window       time.Duration
	lockDuration time.Duration
	now          func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithLockoutPolicy overrides threshold, window and lock duration.
func WithLockoutPolicy(maxFailed int, window, lockFor time.Duration) ServiceOption {
	return func(s *Service) {
		if maxFailed > 0 {
			s.maxFailed = maxFailed
		}
		if window > 0 {
			s.window = window
		}
		if lockFor > 0 {
			s.lockDuration = lockFor
		}
	}
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the login flow dependencies.
func NewService(store CredentialStore, tokens *TokenService, second *SecondFactor, guard *lockout.Guard, recorder *audit.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		tokens:       tokens,
		second:       second,
		guard:        guard,
		recorder:     recorder,
		maxFailed:    defaultMaxFailedAttempts,
		window:       defaultFailureWindow,
		lockDuration: defaultLockDuration,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginInput is a login attempt as seen at the transport boundary.
type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	IP            string
	DeviceID      string
}

// LoginResult carries the issued token pair and the resolved identity.
type LoginResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Principal        *Principal
	AdminProfile     *AdminProfile
}

// Login runs the full authentication flow. The pre-auth throttle is evaluated
// strictly before any credential check, and a locked account never receives a
// password-verification signal.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	if err := s.guard.Allow(ctx, in.IP, email); err != nil {
		var rl *lockout.RateLimitedError
		if errors.As(err, &rl) {
			s.auditFailure(ctx, nil, email, in, audit.ActionLoginRateLimited, "login throttled by pre-auth limiter")
			s.fraudEvent(ctx, nil, email, in, audit.ActionLoginRateLimited, audit.RiskLevelHigh, 0.8)
			obs.LoginAttempts.WithLabelValues("rate_limited").Inc()
			return nil, rl
		}
		return nil, err
	}

	principal, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Unknown email still counts against the origin, costs the same
			// bcrypt comparison and yields the same external error as a
			// wrong password.
			_ = VerifyPassword(dummyPasswordHash, in.Password)
			s.preAuthFailure(ctx, in.IP, email)
			s.auditFailure(ctx, nil, email, in, audit.ActionLoginFailed, "login failed")
			obs.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if principal.IsBlocked {
		s.auditFailure(ctx, principal, email, in, audit.ActionLoginBlocked, "login rejected: account blocked")
		obs.LoginAttempts.WithLabelValues("blocked").Inc()
		return nil, ErrAccountBlocked
	}

	now := s.now()
	if until, locked := principal.LockedUntil(now); locked {
		s.auditFailure(ctx, principal, email, in, audit.ActionLoginLocked, "login rejected: account temporarily locked")
		obs.LoginAttempts.WithLabelValues("locked").Inc()
		return nil, &TemporaryLockoutError{RetryAfter: until.Sub(now)}
	}

	if err := VerifyPassword(principal.PasswordHash, in.Password); err != nil {
		s.preAuthFailure(ctx, in.IP, email)
		lockErr := s.registerFailedAttempt(ctx, principal)
		s.auditFailure(ctx, principal, email, in, audit.ActionLoginFailed, "login failed")
		if lockErr != nil {
			s.fraudEvent(ctx, principal, email, in, audit.ActionLoginLocked, audit.RiskLevelHigh, 0.7)
			obs.LockoutsTriggered.WithLabelValues("account").Inc()
			obs.LoginAttempts.WithLabelValues("locked").Inc()
			return nil, lockErr
		}
		obs.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	// Correct password: unconditionally clear the failure state.
	if err := s.clearLockoutState(ctx, principal); err != nil {
		return nil, err
	}
	if err := s.guard.RegisterSuccess(ctx, in.IP, email); err != nil {
		obs.LogError("pre-auth limiter reset failed", map[string]any{"error": err.Error()})
	}

	var profile *AdminProfile
	if principal.Role == RoleAdmin {
		profile, err = s.store.AdminProfile(ctx, principal.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.auditFailure(ctx, principal, email, in, audit.ActionLoginFailed, "admin login without profile")
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
		if !profile.IsActive {
			s.auditFailure(ctx, principal, email, in, audit.ActionLoginBlocked, "login rejected: admin profile deactivated")
			obs.LoginAttempts.WithLabelValues("blocked").Inc()
			return nil, ErrAccountBlocked
		}
		if profile.TwoFactorEnabled {
			if err := s.checkSecondFactor(ctx, principal, profile, email, in); err != nil {
				return nil, err
			}
		}
	}

	result, err := s.issuePair(ctx, principal)
	if err != nil {
		return nil, err
	}
	result.AdminProfile = profile

	s.recorder.LogAudit(ctx, audit.Entry{
		ActorID:     principal.ID,
		ActorEmail:  principal.Email,
		ActorRole:   string(principal.Role),
		IP:          in.IP,
		Action:      audit.ActionLoginSuccess,
		EntityType:  "principal",
		EntityID:    principal.ID,
		Description: "login succeeded",
		Metadata:    map[string]any{"device_id": in.DeviceID},
		Success:     true,
	})
	if in.DeviceID != "" {
		s.fraudEvent(ctx, principal, email, in, audit.ActionLoginSuccess, audit.RiskLevelLow, 0.1)
	}
	obs.LoginAttempts.WithLabelValues("success").Inc()
	return result, nil
}

// checkSecondFactor gates 2FA-enabled accounts. A missing code is a distinct
// signal, not a credential failure: no lockout counter moves.
func (s *Service) checkSecondFactor(ctx context.Context, principal *Principal, profile *AdminProfile, email string, in LoginInput) error {
	if len(profile.TwoFactorSecret) == 0 {
		// Enabled without a stored secret is a configuration fault, never
		// silently treated as "2FA disabled".
		return &ConfigurationError{Reason: "two-factor enabled but no secret stored"}
	}
	if strings.TrimSpace(in.TwoFactorCode) == "" {
		s.auditFailure(ctx, principal, email, in, audit.ActionLogin2FARequired, "second factor required")
		obs.LoginAttempts.WithLabelValues("2fa_required").Inc()
		return ErrTwoFactorRequired
	}
	ok, err := s.second.Verify(profile.TwoFactorSecret, in.TwoFactorCode)
	if err != nil {
		return err
	}
	if !ok {
		// A wrong code counts against the origin but not the password counter.
		s.preAuthFailure(ctx, in.IP, email)
		s.auditFailure(ctx, principal, email, in, audit.ActionLogin2FAFailed, "invalid second factor code")
		obs.LoginAttempts.WithLabelValues("2fa_failed").Inc()
		return ErrInvalidTwoFactorCode
	}
	return nil
}

// Refresh validates the refresh cookie token, re-checks the principal and
// issues a rotated pair. The presented jti must still be the current one;
// a superseded token fails, which makes rotation single-use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	principal, err := s.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if principal.IsBlocked {
		return nil, ErrAccountBlocked
	}

	newToken, newJTI, newExp, err := s.tokens.IssueRefreshToken(principal.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.RotateRefreshJTI(ctx, principal.ID, claims.ID, newJTI); err != nil {
		if errors.Is(err, ErrConflict) {
			s.recorder.LogAudit(ctx, audit.Entry{
				ActorID:     principal.ID,
				ActorEmail:  principal.Email,
				ActorRole:   string(principal.Role),
				Action:      audit.ActionTokenRefreshFail,
				EntityType:  "principal",
				EntityID:    principal.ID,
				Description: "refresh rejected: superseded token replayed",
				Success:     false,
			})
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	accessToken, accessExp, err := s.tokens.IssueAccessToken(principal)
	if err != nil {
		return nil, err
	}

	var profile *AdminProfile
	if principal.Role == RoleAdmin {
		if p, err := s.store.AdminProfile(ctx, principal.ID); err == nil {
			profile = p
		}
	}

	s.recorder.LogAudit(ctx, audit.Entry{
		ActorID:    principal.ID,
		ActorEmail: principal.Email,
		ActorRole:  string(principal.Role),
		Action:     audit.ActionTokenRefreshed,
		EntityType: "principal",
		EntityID:   principal.ID,
		Success:    true,
	})
	return &LoginResult{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     newToken,
		RefreshExpiresAt: newExp,
		Principal:        principal,
		AdminProfile:     profile,
	}, nil
}

// Logout records the audit event. It never fails: logout must always succeed
// for the client even when the audit write does not.
func (s *Service) Logout(ctx context.Context, principal *Principal, ip string) {
	entry := audit.Entry{
		IP:          ip,
		Action:      audit.ActionLogout,
		EntityType:  "principal",
		Description: "logout",
		Success:     true,
	}
	if principal != nil {
		entry.ActorID = principal.ID
		entry.ActorEmail = principal.Email
		entry.ActorRole = string(principal.Role)
		entry.EntityID = principal.ID
	}
	s.recorder.LogAudit(ctx, entry)
}

func (s *Service) issuePair(ctx context.Context, principal *Principal) (*LoginResult, error) {
	accessToken, accessExp, err := s.tokens.IssueAccessToken(principal)
	if err != nil {
		return nil, err
	}
	refreshToken, jti, refreshExp, err := s.tokens.IssueRefreshToken(principal.ID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetRefreshJTI(ctx, principal.ID, jti); err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
		Principal:        principal,
	}, nil
}

// registerFailedAttempt advances the post-auth counter under the optimistic
// version check, retrying once on a concurrent update. Crossing the threshold
// sets the temporary lock and returns a TemporaryLockoutError.
func (s *Service) registerFailedAttempt(ctx context.Context, principal *Principal) error {
	for attempt := 0; attempt < 2; attempt++ {
		now := s.now().UTC()
		if principal.LastFailedLoginAt != nil && now.Sub(*principal.LastFailedLoginAt) <= s.window {
			principal.FailedLoginAttempts++
		} else {
			principal.FailedLoginAttempts = 1
		}
		principal.LastFailedLoginAt = &now

		var lockErr error
		if principal.FailedLoginAttempts >= s.maxFailed {
			until := now.Add(s.lockDuration)
			principal.TemporaryLockUntil = &until
			lockErr = &TemporaryLockoutError{RetryAfter: s.lockDuration}
		}

		err := s.store.UpdateLockoutFields(ctx, principal)
		if err == nil {
			return lockErr
		}
		if !errors.Is(err, ErrConflict) {
			obs.LogError("lockout update failed", map[string]any{"principal_id": principal.ID, "error": err.Error()})
			return nil
		}
		// Lost the race; re-read and apply on top of the winner's state.
		fresh, ferr := s.store.FindByID(ctx, principal.ID)
		if ferr != nil {
			return nil
		}
		*principal = *fresh
	}
	return nil
}

func (s *Service) clearLockoutState(ctx context.Context, principal *Principal) error {
	if principal.FailedLoginAttempts == 0 && principal.LastFailedLoginAt == nil && principal.TemporaryLockUntil == nil {
		return nil
	}
	principal.FailedLoginAttempts = 0
	principal.LastFailedLoginAt = nil
	principal.TemporaryLockUntil = nil
	err := s.store.UpdateLockoutFields(ctx, principal)
	if errors.Is(err, ErrConflict) {
		fresh, ferr := s.store.FindByID(ctx, principal.ID)
		if ferr != nil {
			return ferr
		}
		fresh.FailedLoginAttempts = 0
		fresh.LastFailedLoginAt = nil
		fresh.TemporaryLockUntil = nil
		*principal = *fresh
		return s.store.UpdateLockoutFields(ctx, principal)
	}
	return err
}

func (s *Service) preAuthFailure(ctx context.Context, ip, email string) {
	if err := s.guard.RegisterFailure(ctx, ip, email); err != nil {
		var rl *lockout.RateLimitedError
		if errors.As(err, &rl) {
			obs.LockoutsTriggered.WithLabelValues("preauth").Inc()
			return
		}
		obs.LogError("pre-auth limiter failure", map[string]any{"error": err.Error()})
	}
}

func (s *Service) auditFailure(ctx context.Context, principal *Principal, email string, in LoginInput, action, description string) {
	entry := audit.Entry{
		ActorEmail:  email,
		IP:          in.IP,
		Action:      action,
		EntityType:  "principal",
		Description: description,
		Metadata:    map[string]any{"device_id": in.DeviceID},
		Success:     false,
	}
	if principal != nil {
		entry.ActorID = principal.ID
		entry.ActorRole = string(principal.Role)
		entry.EntityID = principal.ID
	}
	s.recorder.LogAudit(ctx, entry)
}

func (s *Service) fraudEvent(ctx context.Context, principal *Principal, email string, in LoginInput, action, riskLevel string, riskScore float64) {
	event := audit.FraudEvent{
		ActorType: "principal",
		DeviceID:  in.DeviceID,
		IP:        in.IP,
		Action:    action,
		RiskScore: riskScore,
		RiskLevel: riskLevel,
		Metadata:  map[string]any{"email": email},
	}
	if principal != nil {
		event.ActorID = principal.ID
		event.CountryCode = principal.CountryCode
	}
	s.recorder.LogFraud(ctx, event)
}
