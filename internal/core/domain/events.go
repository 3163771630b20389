package domain

import "time"

// ChallengeNotification is the out-of-band delivery payload for a login code.
type ChallengeNotification struct {
	EventID   string
	Email     string
	Code      string
	ExpiresAt time.Time
}

// AccessRequestNotification alerts reviewers about a new elevation request.
type AccessRequestNotification struct {
	EventID       string
	RequestID     string
	RequesterID   string
	RequesterName string
	RequestedRole Role
	Reason        string
	Recipients    []string
	SubmittedAt   time.Time
}
