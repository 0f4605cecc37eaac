package domain

import "strings"

// Category classifies a report on the client side. The backend uses a
// coarser enum; see the gateway package for the (lossy) wire mapping.
type Category string

const (
	CategoryRoadDamage  Category = "road-damage"
	CategoryStreetlight Category = "streetlight"
	CategoryGarbage     Category = "garbage"
	CategoryGraffiti    Category = "graffiti"
	CategoryWaterLeak   Category = "water-leak"
	CategoryNoise       Category = "noise"
	CategoryOther       Category = "other"
)

// Categories lists every client-side category, in display order.
func Categories() []Category {
	return []Category{
		CategoryRoadDamage,
		CategoryStreetlight,
		CategoryGarbage,
		CategoryGraffiti,
		CategoryWaterLeak,
		CategoryNoise,
		CategoryOther,
	}
}

// ParseCategory maps free text to a known category, defaulting to other.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return known
		}
	}
	return CategoryOther
}

// Status is a report's lifecycle state. Transitions are forward-only:
// created -> assigned -> in-progress -> completed.
type Status string

const (
	StatusCreated    Status = "created"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// StatusIndex returns the position of s along the lifecycle, or -1 for a
// status outside the known set (unknown backend values pass through).
func StatusIndex(s Status) int {
	switch s {
	case StatusCreated:
		return 0
	case StatusAssigned:
		return 1
	case StatusInProgress:
		return 2
	case StatusCompleted:
		return 3
	}
	return -1
}

// Role identifies what a signed-in user may do. A user acts as exactly one
// role per session.
type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleVolunteer Role = "volunteer"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes backend role strings (ROLE_CITIZEN, citizen, ...).
func ParseRole(s string) Role {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "role_")
	switch Role(v) {
	case RoleCitizen, RoleVolunteer, RoleAdmin:
		return Role(v)
	}
	return RoleCitizen
}

// Location is where a report was filed.
type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Report is the central entity: a citizen-submitted record of a civic issue.
// IDs are opaque strings assigned by the backend and never reused.
type Report struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Status      Status   `json:"status"`
	Location    Location `json:"location"`
	ImageURL    string   `json:"image_url,omitempty"`
	CitizenID   string   `json:"citizen_id,omitempty"`
	VolunteerID string   `json:"volunteer_id,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// Assigned reports whether the report has a volunteer. The invariant is
// volunteer set <=> status in {assigned, in-progress, completed}.
func (r Report) Assigned() bool {
	return r.VolunteerID != ""
}

// Draft is the citizen input for a new report, before the backend assigns
// identity and timestamps.
type Draft struct {
	Description string
	Category    Category
	Address     string
	Latitude    float64
	Longitude   float64
	ImagePath   string
}

// Actor is the authenticated identity for the current session.
type Actor struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Name  string `json:"name,omitempty"`
	Token string `json:"-"`
}

// VolunteerProfile carries the volunteer-only registration fields and the
// declared skill used by the skill-match projection.
type VolunteerProfile struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	Type         string  `json:"vtype"`
	Area         string  `json:"area"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Skill        string  `json:"skill"`
	Availability bool    `json:"availability"`
}

// Registration is the new-user payload. Volunteer fields are ignored for
// the citizen role.
type Registration struct {
	Name     string
	Email    string
	Password string
	Mobile   string
	Role     Role

	// volunteer only
	Area      string
	Latitude  float64
	Longitude float64
	Skill     string
	Type      string
}

// User is a backend account as seen by the client (admin listings, profile
// enrichment after sign-in).
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile,omitempty"`
	Role   Role   `json:"role"`
}

// ClaimAttempt tracks one in-flight claim. It exists only in memory, to
// support optimistic hiding of the target report and rollback on conflict.
type ClaimAttempt struct {
	ID       string `json:"id"`
	ReportID string `json:"report_id"`
	ActorID  string `json:"actor_id"`
	Started  string `json:"started" format:"date-time"`
}

// Message is a chat entry in the client-only messaging simulation.
type Message struct {
	ID       string `json:"id"`
	ReportID string `json:"report_id"`
	Sender   string `json:"sender"`
	Body     string `json:"body"`
	SentAt   string `json:"sent_at" format:"date-time"`
}
