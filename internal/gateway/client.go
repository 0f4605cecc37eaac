package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"urbanaid/internal/domain"
)

// Client is the typed boundary to the UrbanAid backend. It owns no state
// beyond the connection settings; every call is a plain request/response.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// SignInResult is the backend's sign-in response.
type SignInResult struct {
	JWT     string `json:"jwt"`
	Role    string `json:"role"`
	UserID  int64  `json:"userId"`
	Message string `json:"message,omitempty"`
}

// SignIn authenticates with email and password. The caller persists the
// returned token; the client itself stays stateless.
func (c *Client) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	var resp SignInResult
	err := c.do(ctx, http.MethodPost, "users/signin", map[string]any{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return resp, err
	}
	if resp.JWT == "" {
		return resp, &AuthError{Message: "sign-in response missing token"}
	}
	return resp, nil
}

// Register submits a new-user payload. Volunteers go to the dedicated
// endpoint with the nested user object; everyone else registers as citizen.
func (c *Client) Register(ctx context.Context, reg domain.Registration) error {
	if reg.Role == domain.RoleVolunteer {
		vtype := reg.Type
		if vtype == "" {
			vtype = "GENERAL_HELP"
		}
		body := map[string]any{
			"user": map[string]any{
				"name":     reg.Name,
				"email":    reg.Email,
				"password": reg.Password,
				"mobile":   reg.Mobile,
				"userType": "ROLE_VOLUNTEER",
			},
			"vtype":        vtype,
			"area":         reg.Area,
			"latitude":     reg.Latitude,
			"longitude":    reg.Longitude,
			"availability": true,
			"skill":        reg.Skill,
		}
		return c.do(ctx, http.MethodPost, "volunteers/register", body, nil)
	}
	body := map[string]any{
		"email":    reg.Email,
		"mobile":   reg.Mobile,
		"bio":      "",
		"name":     reg.Name,
		"password": reg.Password,
		"userType": "ROLE_CITIZEN",
	}
	return c.do(ctx, http.MethodPost, "users/register", body, nil)
}

// GetUser fetches an account by id.
func (c *Client) GetUser(ctx context.Context, userID string) (domain.User, error) {
	id, err := ParseReportID(userID)
	if err != nil {
		return domain.User{}, err
	}
	var dto UserDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("users/%d", id), nil, &dto); err != nil {
		return domain.User{}, err
	}
	return ToUser(dto), nil
}

// UploadImage posts a multipart image and returns the stored file path.
// The backend sometimes answers with a bare string and sometimes with a
// one-element array; both forms are accepted.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/reports/upload-image", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", classify(resp.StatusCode, data)
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err == nil && len(paths) > 0 {
		return paths[0], nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		return single, nil
	}
	return strings.Trim(strings.TrimSpace(string(data)), `"`), nil
}

// CreateReport submits a citizen draft. Draft.ImagePath must already be an
// uploaded path (see UploadImage); the two-step order matters because the
// report payload carries the path, not the bytes.
func (c *Client) CreateReport(ctx context.Context, d domain.Draft, citizenID string) (domain.Report, error) {
	id, err := ParseReportID(citizenID)
	if err != nil {
		return domain.Report{}, err
	}
	var dto ReportDTO
	endpoint := fmt.Sprintf("reports?citizenId=%d", id)
	if err := c.do(ctx, http.MethodPost, endpoint, ToCreateDTO(d), &dto); err != nil {
		return domain.Report{}, err
	}
	return ToReport(dto, c.BaseURL), nil
}

// MyReports lists reports scoped by the bearer token: owned reports for a
// citizen, assigned reports for a volunteer.
func (c *Client) MyReports(ctx context.Context) ([]domain.Report, error) {
	return c.listReports(ctx, "reports/my")
}

// NearbyReports lists unassigned reports a volunteer can claim.
func (c *Client) NearbyReports(ctx context.Context, volunteerID string) ([]domain.Report, error) {
	id, err := ParseReportID(volunteerID)
	if err != nil {
		return nil, err
	}
	return c.listReports(ctx, fmt.Sprintf("reports/nearby?volunteerId=%d", id))
}

// GetReport fetches a single report by id.
func (c *Client) GetReport(ctx context.Context, reportID string) (domain.Report, error) {
	id, err := ParseReportID(reportID)
	if err != nil {
		return domain.Report{}, err
	}
	var dto ReportDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("reports/%d", id), nil, &dto); err != nil {
		return domain.Report{}, err
	}
	return ToReport(dto, c.BaseURL), nil
}

// ClaimReport attempts an atomic claim. A *ConflictError means another
// volunteer won the race.
func (c *Client) ClaimReport(ctx context.Context, reportID, volunteerID string) (domain.Report, error) {
	rid, err := ParseReportID(reportID)
	if err != nil {
		return domain.Report{}, err
	}
	vid, err := ParseReportID(volunteerID)
	if err != nil {
		return domain.Report{}, err
	}
	var dto ReportDTO
	endpoint := fmt.Sprintf("reports/%d/claim?volunteerId=%d", rid, vid)
	if err := c.do(ctx, http.MethodPut, endpoint, nil, &dto); err != nil {
		return domain.Report{}, err
	}
	return ToReport(dto, c.BaseURL), nil
}

// UpdateStatus transitions a report's status on the backend.
func (c *Client) UpdateStatus(ctx context.Context, reportID string, status domain.Status, volunteerID string) (domain.Report, error) {
	rid, err := ParseReportID(reportID)
	if err != nil {
		return domain.Report{}, err
	}
	vid, err := ParseReportID(volunteerID)
	if err != nil {
		return domain.Report{}, err
	}
	var dto ReportDTO
	endpoint := fmt.Sprintf("reports/%d/status?status=%s&volunteerId=%d", rid, url.QueryEscape(WireStatus(status)), vid)
	if err := c.do(ctx, http.MethodPut, endpoint, nil, &dto); err != nil {
		return domain.Report{}, err
	}
	return ToReport(dto, c.BaseURL), nil
}

// MyVolunteerProfile returns the signed-in volunteer's profile.
func (c *Client) MyVolunteerProfile(ctx context.Context) (domain.VolunteerProfile, error) {
	var dto VolunteerDTO
	if err := c.do(ctx, http.MethodGet, "volunteers/me", nil, &dto); err != nil {
		return domain.VolunteerProfile{}, err
	}
	return ToVolunteerProfile(dto), nil
}

// SetAvailability toggles the volunteer's availability flag.
func (c *Client) SetAvailability(ctx context.Context, volunteerID string, available bool) error {
	id, err := ParseReportID(volunteerID)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("volunteers/%d/availability", id), map[string]any{
		"availability": available,
	}, nil)
}

// AdminReports lists every report (admin only).
func (c *Client) AdminReports(ctx context.Context) ([]domain.Report, error) {
	return c.listReports(ctx, "admin/reports")
}

// AdminUsers lists every account (admin only).
func (c *Client) AdminUsers(ctx context.Context) ([]domain.User, error) {
	var dtos []UserDTO
	if err := c.do(ctx, http.MethodGet, "admin/users", nil, &dtos); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(dtos))
	for _, dto := range dtos {
		users = append(users, ToUser(dto))
	}
	return users, nil
}

// AdminVolunteers lists every volunteer profile (admin only).
func (c *Client) AdminVolunteers(ctx context.Context) ([]domain.VolunteerProfile, error) {
	var dtos []VolunteerDTO
	if err := c.do(ctx, http.MethodGet, "admin/volunteers", nil, &dtos); err != nil {
		return nil, err
	}
	profiles := make([]domain.VolunteerProfile, 0, len(dtos))
	for _, dto := range dtos {
		profiles = append(profiles, ToVolunteerProfile(dto))
	}
	return profiles, nil
}

func (c *Client) listReports(ctx context.Context, endpoint string) ([]domain.Report, error) {
	var dtos []ReportDTO
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &dtos); err != nil {
		return nil, err
	}
	reports := make([]domain.Report, 0, len(dtos))
	for _, dto := range dtos {
		reports = append(reports, ToReport(dto, c.BaseURL))
	}
	return reports, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	reqURL := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return classify(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	// Absent token: the request proceeds without the header (public
	// endpoints only).
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
}

// httpClient never writes back to the struct: requests may be in flight
// concurrently on the same Client.
func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
