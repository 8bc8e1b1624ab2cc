package audit

// Action types recorded by the auth subsystem.
const (
	ActionLoginSuccess      = "LOGIN_SUCCESS"
	ActionLoginFailed       = "LOGIN_FAILED"
	ActionLoginLocked       = "LOGIN_LOCKED"
	ActionLoginRateLimited  = "LOGIN_RATE_LIMITED"
	ActionLoginBlocked      = "LOGIN_BLOCKED"
	ActionLogin2FARequired  = "LOGIN_2FA_REQUIRED"
	ActionLogin2FAFailed    = "LOGIN_2FA_FAILED"
	ActionTokenRefreshed    = "TOKEN_REFRESHED"
	ActionTokenRefreshFail  = "TOKEN_REFRESH_FAILED"
	ActionLogout            = "LOGOUT"
	ActionImpersonateStart  = "IMPERSONATION_STARTED"
	ActionImpersonateEnd    = "IMPERSONATION_ENDED"
	ActionImpersonateReject = "IMPERSONATION_REJECTED"
	ActionPermissionDenied  = "PERMISSION_DENIED"
	ActionAuditExported     = "AUDIT_EXPORTED"
)

// Risk levels attached to fraud events.
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)
