package models

import "time"

// WindowRef identifies the single availability window governing a play request
type WindowRef struct {
	Topic     string `json:"topic" form:"topic"`
	Kind      string `json:"kind" form:"kind"`
	Cohort    string `json:"cohort" form:"cohort"`
	MissionID string `json:"mission_id" form:"mission_id"`
}

// AvailabilityWindow - teacher-configured play window keyed by (topic, kind, cohort)
type AvailabilityWindow struct {
	ID             string     `json:"id" db:"id" yaml:"id"`
	Topic          string     `json:"topic" db:"topic" yaml:"topic"`
	Kind           string     `json:"kind" db:"kind" yaml:"kind"`
	Cohort         string     `json:"cohort" db:"cohort" yaml:"cohort"`
	MissionID      string     `json:"mission_id" db:"mission_id" yaml:"mission_id"`
	IsActive       bool       `json:"is_active" db:"is_active" yaml:"is_active"`
	OpenAt         time.Time  `json:"open_at" db:"open_at" yaml:"open_at"`
	CloseAt        *time.Time `json:"close_at,omitempty" db:"close_at" yaml:"close_at"`
	MaxAttempts    int        `json:"max_attempts" db:"max_attempts" yaml:"max_attempts"` // 0 = unlimited
	TheoryRequired bool       `json:"theory_required" db:"theory_required" yaml:"theory_required"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty" db:"activated_at" yaml:"activated_at"`
}

// CountingSince returns the instant from which attempts count against the cap
func (w *AvailabilityWindow) CountingSince() time.Time {
	if w.ActivatedAt != nil && !w.ActivatedAt.IsZero() {
		return *w.ActivatedAt
	}
	return w.OpenAt
}

// Denial reasons carried by Availability
const (
	ReasonInactive            = "inactive"
	ReasonNotYetOpen          = "not_yet_open"
	ReasonExpired             = "expired"
	ReasonAttemptLimitReached = "attempt_limit_reached"
	ReasonUnavailable         = "unavailable"
)

// UnlimitedAttempts is reported as AttemptsRemaining when the window has no cap
const UnlimitedAttempts = -1

// Availability is the gate's decision. Denials carry the concrete blocking value.
type Availability struct {
	CanPlay           bool       `json:"can_play"`
	MissionID         string     `json:"mission_id,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	Code              string     `json:"code,omitempty"`
	OpensAt           *time.Time `json:"opens_at,omitempty"`
	ClosesAt          *time.Time `json:"closes_at,omitempty"`
	AttemptsUsed      int        `json:"attempts_used"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	MaxAttempts       int        `json:"max_attempts"`
	TheoryRequired    bool       `json:"theory_required"`
}
