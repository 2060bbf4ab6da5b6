package models

import (
	"encoding/json"
	"time"
)

// APIResponse is the generic envelope for every REST response
type APIResponse struct {
	Success   bool        `json:"success"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StartMissionRequest opens or resumes an attempt under a window
type StartMissionRequest struct {
	Topic  string `json:"topic" binding:"required"`
	Kind   string `json:"kind" binding:"required"`
	Cohort string `json:"cohort"`
}

// StartMissionResponse carries either the attempt or the denial
type StartMissionResponse struct {
	Availability Availability `json:"availability"`
	Attempt      *Attempt     `json:"attempt,omitempty"`
	Resumed      bool         `json:"resumed"`
}

// SubmitActivityRequest is one learner answer for one activity
type SubmitActivityRequest struct {
	ActivityID  string          `json:"activity_id" binding:"required"`
	Response    json.RawMessage `json:"response" binding:"required"`
	TimeSpentMs int64           `json:"time_spent_ms"`
}

// FinalizeRequest optionally carries the arcade live-play score
type FinalizeRequest struct {
	Session *SessionScore `json:"session,omitempty"`
}

// ActivityOutcome is the result of recording one activity
type ActivityOutcome struct {
	Result    *ActivityResult `json:"result,omitempty"`
	Duplicate bool            `json:"duplicate"`
	Code      string          `json:"code,omitempty"`
	Attempt   *Attempt        `json:"attempt,omitempty"`
	// ExpectedActivityID names the activity to submit next on OUT_OF_ORDER
	ExpectedActivityID string `json:"expected_activity_id,omitempty"`
}

// CompletionOutcome is the result of finalizing an attempt
type CompletionOutcome struct {
	Attempt       *Attempt         `json:"attempt"`
	Aggregate     MissionAggregate `json:"aggregate"`
	AlreadyFinal  bool             `json:"already_final"`
	Code          string           `json:"code,omitempty"`
	Progress      *ProgressView    `json:"progress,omitempty"`
	NewlyAwarded  []Badge          `json:"newly_awarded,omitempty"`
	RecordedCount int              `json:"recorded_count"`
	ExpectedCount int              `json:"expected_count"`
}
