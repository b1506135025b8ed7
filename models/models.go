package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ReviewStatus is the current stage of a certificate submission.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusAccepted ReviewStatus = "accepted"
	StatusRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) Valid() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusRejected
}

// ActivityType is the fixed set of activity categories a certificate can be
// filed under. The empty value means "no category" and earns no points.
type ActivityType string

const (
	ActivityNCCNSS ActivityType = "NCC/NSS"
	ActivitySports ActivityType = "SPORTS"
	ActivityMusic  ActivityType = "MUSIC/PERFORMING ARTS"
	ActivityNone   ActivityType = ""
)

func (a ActivityType) Valid() bool {
	switch a {
	case ActivityNCCNSS, ActivitySports, ActivityMusic, ActivityNone:
		return true
	}
	return false
}

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type Certificate struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Semester     string       `json:"semester"`
	ActivityType ActivityType `json:"activity_type"`
	CertName     string       `json:"certificate_name"`
	IssueDate    string       `json:"issue_date"`
	Issuer       string       `json:"issuer"`
	ImageName    string       `json:"image_name"`
	ImageData    string       `json:"-"` // base64, never part of JSON listings
	Status       ReviewStatus `json:"status"`
	Points       int          `json:"points"`
	CreatedAt    time.Time    `json:"created_at"`
}
