package impersonation

import "time"

// Mode restricts what an impersonation session may do.
type Mode string

const (
	// ModeViewOnly rejects every mutating request before it reaches a handler.
	ModeViewOnly Mode = "VIEW_ONLY"
	ModeFull     Mode = "FULL"
)

// Status is the session state machine: ACTIVE → ENDED_EXPLICIT | ENDED_EXPIRED.
// Expiry is detected lazily on the next enforcement, not by a timer.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusEndedExplicit Status = "ENDED_EXPLICIT"
	StatusEndedExpired  Status = "ENDED_EXPIRED"
)

// Session is a time-boxed grant letting an admin act as another user.
type Session struct {
	ID                  string
	ImpersonatorAdminID string
	TargetUserID        string
	Mode                Mode
	Status              Status
	IsActive            bool
	Reason              string
	StartedAt           time.Time
	ExpiresAt           time.Time
	EndedAt             *time.Time
	EndedBy             string
}

// RejectedError explains why an impersonated request was refused. The reason
// is safe to surface to the client.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "impersonation: " + e.Reason
}

// Rejection reasons.
const (
	ReasonInvalidSession  = "invalid session"
	ReasonEnded           = "ended"
	ReasonExpired         = "expired"
	ReasonWriteNotAllowed = "write not permitted"
)
