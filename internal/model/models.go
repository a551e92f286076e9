// Package model defines the data models for the staff Slack bot.
package model

import (
	"strings"
	"time"
	"unicode"
)

// StaffUser represents a synced Slack workspace member.
// Mirrors the staff_users table; last write wins per SlackID.
type StaffUser struct {
	SlackID   string    `db:"slack_id"`
	FullName  string    `db:"full_name"`
	PrefName  string    `db:"pref_name"`
	Email     string    `db:"email"`
	Phone     string    `db:"phone"`
	AvatarURL string    `db:"avatar_url"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FirstName returns the capitalized first token of the full name.
func (u *StaffUser) FirstName() string {
	fields := strings.Fields(u.FullName)
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])
	runes := []rune(name)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// AllNames returns the lowercased set of name tokens the user could be
// known as, used to match free-text guesses.
func (u *StaffUser) AllNames() map[string]bool {
	names := make(map[string]bool)
	for _, n := range strings.Fields(u.FullName) {
		names[strings.ToLower(n)] = true
	}
	for _, n := range strings.Fields(u.PrefName) {
		names[strings.ToLower(n)] = true
	}
	return names
}

// QualificationStatus is the admission state of an avatar.
type QualificationStatus int

const (
	StatusUnchecked QualificationStatus = iota
	StatusQualified
	StatusRejected
)

// String returns a human-readable status name.
func (s QualificationStatus) String() string {
	switch s {
	case StatusQualified:
		return "qualified"
	case StatusRejected:
		return "rejected"
	default:
		return "unchecked"
	}
}

// RejectReason explains why an avatar failed qualification.
type RejectReason string

const (
	ReasonNone                RejectReason = ""
	ReasonNoFaceDetected      RejectReason = "no_face_detected"
	ReasonMultipleFaces       RejectReason = "multiple_faces_detected"
	ReasonLowConfidence       RejectReason = "low_confidence"
	ReasonTooSmall            RejectReason = "too_small"
	ReasonDuplicateOfExisting RejectReason = "duplicate_of_existing"
)

// Retryable reports whether a rejection may succeed on a later attempt
// with the same image reference. TooSmall and LowConfidence can improve
// after a higher-resolution re-fetch; NoFaceDetected and MultipleFaces
// are terminal for a given image.
func (r RejectReason) Retryable() bool {
	return r == ReasonLowConfidence || r == ReasonTooSmall
}

// Verdict is the outcome of a single qualification pass.
type Verdict struct {
	Usable     bool
	Reason     RejectReason
	Confidence float64
}

// AvatarRecord tracks one user's avatar through the admission pipeline.
// Owned by the avatar pool; game logic only ever reads snapshot copies.
type AvatarRecord struct {
	UserID        string
	DisplayName   string
	ImageRef      string
	Status        QualificationStatus
	Reason        RejectReason
	Confidence    float64
	LastCheckedAt time.Time
}

// Round is a single guess-who challenge: one target hidden among k
// candidates in randomized order.
type Round struct {
	ID           string
	TargetUserID string
	CandidateIDs []string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the round's guess deadline has passed.
func (r *Round) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Candidate is one selectable option presented to the player.
type Candidate struct {
	UserID      string
	DisplayName string
	ImageRef    string
}

// RoundStart is the payload handed to the chat layer when a round begins.
// The target's avatar is the image shown; candidate names are the options.
type RoundStart struct {
	RoundID        string
	TargetImageRef string
	Candidates     []Candidate
	ExpiresAt      time.Time
}

// Resolution is the outcome of a finished round, returned to the chat
// layer. The target's identity is always revealed.
type Resolution struct {
	RoundID           string
	Correct           bool
	Expired           bool
	TargetUserID      string
	TargetDisplayName string
	Score             int
}
