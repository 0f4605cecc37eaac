package gateway

import (
	"strconv"
	"strings"
	"time"

	"urbanaid/internal/domain"
)

// The backend's wire shapes. Mapping to the domain form is total in both
// directions: unknown or missing fields default safely rather than fail.

// ReportDTO is the backend's report representation.
type ReportDTO struct {
	ID           int64    `json:"id"`
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	ImagePath    string   `json:"imagepath,omitempty"`
	Status       string   `json:"status"`
	Category     string   `json:"category"`
	CitizenID    *int64   `json:"citizenId,omitempty"`
	VolunteerID  *int64   `json:"volunteerId,omitempty"`
	CreationDate string   `json:"creationDate,omitempty"`
	LastUpdated  string   `json:"lastUpdated,omitempty"`
}

// CreateReportDTO is the creation payload for POST /reports.
type CreateReportDTO struct {
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	ImagePath   string   `json:"imagepath,omitempty"`
	Category    string   `json:"category"`
}

// VolunteerDTO is the backend's volunteer profile shape.
type VolunteerDTO struct {
	ID           int64    `json:"id"`
	UserID       *int64   `json:"userId,omitempty"`
	VType        string   `json:"vtype"`
	Area         string   `json:"area"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Skill        string   `json:"skill"`
	Availability bool     `json:"availability"`
}

// UserDTO is the backend's user account shape.
type UserDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile,omitempty"`
	UserType string `json:"userType,omitempty"`
}

// WireCategory maps a client category to the backend Category enum. The map
// is lossy: graffiti and noise collapse to PUBLIC_SAFETY, and everything
// unrecognized goes to ENVIRONMENT.
func WireCategory(c domain.Category) string {
	switch c {
	case domain.CategoryRoadDamage:
		return "ROADS"
	case domain.CategoryStreetlight:
		return "ELECTRICITY"
	case domain.CategoryGarbage:
		return "WASTE_MANAGEMENT"
	case domain.CategoryGraffiti:
		return "PUBLIC_SAFETY"
	case domain.CategoryWaterLeak:
		return "WATER_SUPPLY"
	case domain.CategoryNoise:
		return "PUBLIC_SAFETY"
	default:
		return "ENVIRONMENT"
	}
}

// DomainCategory maps a backend category back. PUBLIC_SAFETY is ambiguous
// (graffiti or noise) and collapses to other; so does anything unknown.
func DomainCategory(cat string) domain.Category {
	switch cat {
	case "ROADS":
		return domain.CategoryRoadDamage
	case "ELECTRICITY":
		return domain.CategoryStreetlight
	case "WASTE_MANAGEMENT":
		return domain.CategoryGarbage
	case "WATER_SUPPLY":
		return domain.CategoryWaterLeak
	default:
		return domain.CategoryOther
	}
}

// WireStatus maps a domain status to the backend Status enum name.
func WireStatus(s domain.Status) string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "-", "_"))
}

// DomainStatus normalizes a backend status. Unknown values pass through
// lowercased and hyphenated rather than failing.
func DomainStatus(s string) domain.Status {
	return domain.Status(strings.ToLower(strings.ReplaceAll(s, "_", "-")))
}

// ToReport maps a wire DTO to the domain shape. Title derives from the
// first line of the description.
func ToReport(dto ReportDTO, baseURL string) domain.Report {
	title := "Report"
	if dto.Description != "" {
		title = strings.SplitN(dto.Description, "\n", 2)[0]
	}
	var img string
	if dto.ImagePath != "" {
		img = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(dto.ImagePath, "/")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	created := dto.CreationDate
	if created == "" {
		created = now
	}
	updated := dto.LastUpdated
	if updated == "" {
		updated = now
	}
	return domain.Report{
		ID:          formatID(dto.ID),
		Title:       title,
		Description: dto.Description,
		Category:    DomainCategory(dto.Category),
		Status:      DomainStatus(dto.Status),
		Location: domain.Location{
			Address:   dto.Location,
			Latitude:  deref(dto.Latitude),
			Longitude: deref(dto.Longitude),
		},
		ImageURL:    img,
		CitizenID:   formatOptionalID(dto.CitizenID),
		VolunteerID: formatOptionalID(dto.VolunteerID),
		CreatedAt:   created,
		UpdatedAt:   updated,
	}
}

// ToCreateDTO maps a citizen draft to the creation payload.
func ToCreateDTO(d domain.Draft) CreateReportDTO {
	lat := d.Latitude
	lng := d.Longitude
	return CreateReportDTO{
		Description: d.Description,
		Location:    d.Address,
		Latitude:    &lat,
		Longitude:   &lng,
		ImagePath:   d.ImagePath,
		Category:    WireCategory(d.Category),
	}
}

// ToVolunteerProfile maps the wire volunteer shape.
func ToVolunteerProfile(dto VolunteerDTO) domain.VolunteerProfile {
	return domain.VolunteerProfile{
		ID:           formatID(dto.ID),
		UserID:       formatOptionalID(dto.UserID),
		Type:         dto.VType,
		Area:         dto.Area,
		Latitude:     deref(dto.Latitude),
		Longitude:    deref(dto.Longitude),
		Skill:        dto.Skill,
		Availability: dto.Availability,
	}
}

// ToUser maps the wire user shape.
func ToUser(dto UserDTO) domain.User {
	return domain.User{
		ID:     formatID(dto.ID),
		Name:   dto.Name,
		Email:  dto.Email,
		Mobile: dto.Mobile,
		Role:   domain.ParseRole(dto.UserType),
	}
}

// ParseReportID validates a report id from user input or a route parameter.
// A malformed id is "not found", never sent to the backend.
func ParseReportID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, &NotFoundError{Message: "report " + id + " not found"}
	}
	return n, nil
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func formatOptionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return formatID(*id)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
