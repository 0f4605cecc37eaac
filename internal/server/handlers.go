package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"urbanaid/internal/gateway"
	"urbanaid/internal/repo"
)

const (
	roleCitizen   = "ROLE_CITIZEN"
	roleVolunteer = "ROLE_VOLUNTEER"
	roleAdmin     = "ROLE_ADMIN"
)

var statusRank = map[string]int{
	"CREATED":     0,
	"ASSIGNED":    1,
	"IN_PROGRESS": 2,
	"COMPLETED":   3,
}

type signInInput struct {
	Body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
}

type signInOutput struct {
	Body gateway.SignInResult
}

type registerInput struct {
	Body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Mobile   string `json:"mobile,omitempty"`
		Bio      string `json:"bio,omitempty"`
		UserType string `json:"userType,omitempty"`
	}
}

type userOutput struct {
	Body gateway.UserDTO
}

type volunteerRegisterInput struct {
	Body struct {
		User struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
			Mobile   string `json:"mobile,omitempty"`
			UserType string `json:"userType,omitempty"`
		} `json:"user"`
		VType        string  `json:"vtype,omitempty"`
		Area         string  `json:"area,omitempty"`
		Latitude     float64 `json:"latitude,omitempty"`
		Longitude    float64 `json:"longitude,omitempty"`
		Availability bool    `json:"availability,omitempty"`
		Skill        string  `json:"skill,omitempty"`
	}
}

type reportOutput struct {
	Body gateway.ReportDTO
}

type reportListOutput struct {
	Body []gateway.ReportDTO
}

func (s *server) registerAuth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "sign-in",
		Method:      http.MethodPost,
		Path:        "/users/signin",
		Summary:     "Exchange credentials for a JWT",
	}, func(ctx context.Context, in *signInInput) (*signInOutput, error) {
		u, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(in.Body.Email))
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !repo.VerifyPassword(u.PasswordHash, in.Body.Password)) {
			return nil, newAPIError(http.StatusUnauthorized, "Invalid email or password")
		}
		if err != nil {
			return nil, err
		}
		token, err := issueToken(s.auth, u.ID, u.UserType, s.now())
		if err != nil {
			return nil, err
		}
		out := &signInOutput{}
		out.Body = gateway.SignInResult{JWT: token, Role: u.UserType, UserID: u.ID}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "register-citizen",
		Method:      http.MethodPost,
		Path:        "/users/register",
		Summary:     "Create a citizen account",
	}, func(ctx context.Context, in *registerInput) (*userOutput, error) {
		row, err := s.createUser(ctx, in.Body.Name, in.Body.Email, in.Body.Password, in.Body.Mobile, roleCitizen)
		if err != nil {
			return nil, err
		}
		return &userOutput{Body: toUserDTO(row)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "register-volunteer",
		Method:      http.MethodPost,
		Path:        "/volunteers/register",
		Summary:     "Create a volunteer account with its profile",
	}, func(ctx context.Context, in *volunteerRegisterInput) (*userOutput, error) {
		u := in.Body.User
		row, err := s.createUser(ctx, u.Name, u.Email, u.Password, u.Mobile, roleVolunteer)
		if err != nil {
			return nil, err
		}
		vtype := in.Body.VType
		if vtype == "" {
			vtype = "GENERAL_HELP"
		}
		_, err = s.repo.InsertVolunteer(ctx, repo.VolunteerRow{
			UserID:       row.ID,
			VType:        vtype,
			Area:         in.Body.Area,
			Latitude:     in.Body.Latitude,
			Longitude:    in.Body.Longitude,
			Skill:        in.Body.Skill,
			Availability: in.Body.Availability,
		})
		if err != nil {
			return nil, err
		}
		return &userOutput{Body: toUserDTO(row)}, nil
	})
}

func (s *server) createUser(ctx context.Context, name, email, password, mobile, userType string) (repo.UserRow, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return repo.UserRow{}, newAPIError(http.StatusBadRequest, "Name, email and password are required")
	}
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return repo.UserRow{}, newAPIError(http.StatusBadRequest, "Email already registered")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return repo.UserRow{}, err
	}
	row := repo.UserRow{
		Name:         name,
		Email:        email,
		Mobile:       mobile,
		PasswordHash: repo.HashPassword(password),
		UserType:     userType,
		CreatedAt:    s.timestamp(),
	}
	id, err := s.repo.InsertUser(ctx, row)
	if err != nil {
		return repo.UserRow{}, err
	}
	row.ID = id
	return row, nil
}

func (s *server) registerUsers(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Fetch an account by id",
	}, func(ctx context.Context, in *struct {
		ID int64 `path:"id"`
	}) (*userOutput, error) {
		row, err := s.repo.GetUser(ctx, in.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newAPIError(http.StatusNotFound, "User not found")
		}
		if err != nil {
			return nil, err
		}
		return &userOutput{Body: toUserDTO(row)}, nil
	})
}

func (s *server) registerReports(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "create-report",
		Method:      http.MethodPost,
		Path:        "/reports",
		Summary:     "Submit a new report",
	}, func(ctx context.Context, in *struct {
		CitizenID int64 `query:"citizenId"`
		Body      gateway.CreateReportDTO
	}) (*reportOutput, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "Authentication required")
		}
		desc := strings.TrimSpace(in.Body.Description)
		if len(desc) < 10 || len(desc) > 500 {
			return nil, newAPIError(http.StatusBadRequest, "Description must be between 10 and 500 characters")
		}
		if strings.TrimSpace(in.Body.Location) == "" {
			return nil, newAPIError(http.StatusBadRequest, "Location is required")
		}
		if in.Body.Latitude == nil || in.Body.Longitude == nil {
			return nil, newAPIError(http.StatusBadRequest, "Latitude and longitude are required")
		}
		citizenID := in.CitizenID
		if citizenID == 0 {
			citizenID = p.UserID
		}
		now := s.timestamp()
		row := repo.ReportRow{
			Description:  desc,
			Location:     in.Body.Location,
			Latitude:     nullFloat(in.Body.Latitude),
			Longitude:    nullFloat(in.Body.Longitude),
			ImagePath:    nullString(in.Body.ImagePath),
			Category:     in.Body.Category,
			Status:       "CREATED",
			CitizenID:    citizenID,
			CreationDate: now,
			LastUpdated:  now,
		}
		id, err := s.repo.InsertReport(ctx, row)
		if err != nil {
			return nil, err
		}
		row.ID = id
		return &reportOutput{Body: toReportDTO(row)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-reports",
		Method:      http.MethodGet,
		Path:        "/reports/my",
		Summary:     "List the caller's reports",
	}, func(ctx context.Context, _ *struct{}) (*reportListOutput, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "Authentication required")
		}
		var (
			rows []repo.ReportRow
			err  error
		)
		if p.Role == roleVolunteer {
			rows, err = s.repo.ListReportsByVolunteer(ctx, p.UserID)
		} else {
			rows, err = s.repo.ListReportsByCitizen(ctx, p.UserID)
		}
		if err != nil {
			return nil, err
		}
		return &reportListOutput{Body: toReportDTOs(rows)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "nearby-reports",
		Method:      http.MethodGet,
		Path:        "/reports/nearby",
		Summary:     "List unclaimed reports",
	}, func(ctx context.Context, in *struct {
		VolunteerID int64 `query:"volunteerId"`
	}) (*reportListOutput, error) {
		rows, err := s.repo.ListUnassignedReports(ctx)
		if err != nil {
			return nil, err
		}
		return &reportListOutput{Body: toReportDTOs(rows)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Fetch a report by id",
	}, func(ctx context.Context, in *struct {
		ID int64 `path:"id"`
	}) (*reportOutput, error) {
		row, err := s.getReport(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		return &reportOutput{Body: toReportDTO(row)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-report",
		Method:      http.MethodPut,
		Path:        "/reports/{id}/claim",
		Summary:     "Atomically assign an unclaimed report to a volunteer",
	}, func(ctx context.Context, in *struct {
		ID          int64 `path:"id"`
		VolunteerID int64 `query:"volunteerId"`
	}) (*reportOutput, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "Authentication required")
		}
		if p.Role != roleVolunteer {
			return nil, newAPIError(http.StatusForbidden, "Only volunteers can claim reports")
		}
		if _, err := s.getReport(ctx, in.ID); err != nil {
			return nil, err
		}
		volunteerID := in.VolunteerID
		if volunteerID == 0 {
			volunteerID = p.UserID
		}
		won, err := s.repo.ClaimIfCreated(ctx, in.ID, volunteerID, s.timestamp())
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, newAPIError(http.StatusConflict, "Report already assigned or closed")
		}
		row, err := s.getReport(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		return &reportOutput{Body: toReportDTO(row)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report-status",
		Method:      http.MethodPut,
		Path:        "/reports/{id}/status",
		Summary:     "Advance a report's status",
	}, func(ctx context.Context, in *struct {
		ID          int64  `path:"id"`
		Status      string `query:"status"`
		VolunteerID int64  `query:"volunteerId"`
	}) (*reportOutput, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "Authentication required")
		}
		next := normalizeStatus(in.Status)
		rank, known := statusRank[next]
		if !known || next == "CREATED" {
			return nil, newAPIError(http.StatusBadRequest, fmt.Sprintf("Invalid status %q", in.Status))
		}
		row, err := s.getReport(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		if !row.VolunteerID.Valid || row.VolunteerID.Int64 != p.UserID {
			return nil, newAPIError(http.StatusForbidden, "You are not authorized to update this report")
		}
		if cur, ok := statusRank[row.Status]; ok && rank <= cur {
			return nil, newAPIError(http.StatusConflict, "Report already assigned or closed")
		}
		if err := s.repo.UpdateReportStatus(ctx, in.ID, next, s.timestamp()); err != nil {
			return nil, err
		}
		row, err = s.getReport(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		return &reportOutput{Body: toReportDTO(row)}, nil
	})
}

func (s *server) getReport(ctx context.Context, id int64) (repo.ReportRow, error) {
	row, err := s.repo.GetReport(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return repo.ReportRow{}, newAPIError(http.StatusNotFound, "Report not found")
	}
	return row, err
}

func (s *server) registerVolunteers(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "my-volunteer-profile",
		Method:      http.MethodGet,
		Path:        "/volunteers/me",
		Summary:     "Fetch the caller's volunteer profile",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body gateway.VolunteerDTO
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "Authentication required")
		}
		row, err := s.repo.GetVolunteerByUserID(ctx, p.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, newAPIError(http.StatusNotFound, "Volunteer not found")
		}
		if err != nil {
			return nil, err
		}
		return &struct {
			Body gateway.VolunteerDTO
		}{Body: toVolunteerDTO(row)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-availability",
		Method:      http.MethodPut,
		Path:        "/volunteers/{id}/availability",
		Summary:     "Toggle a volunteer's availability",
	}, func(ctx context.Context, in *struct {
		ID   int64 `path:"id"`
		Body struct {
			Availability bool `json:"availability"`
		}
	}) (*struct{}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "Authentication required")
		}
		if p.Role != roleAdmin && p.UserID != in.ID {
			return nil, newAPIError(http.StatusForbidden, "You can only change your own availability")
		}
		if err := s.repo.SetAvailability(ctx, in.ID, in.Body.Availability); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, "Volunteer not found")
			}
			return nil, err
		}
		return nil, nil
	})
}

func (s *server) registerAdmin(api huma.API) {
	requireAdmin := func(ctx context.Context) error {
		p, ok := principalFromContext(ctx)
		if !ok {
			return newAPIError(http.StatusUnauthorized, "Authentication required")
		}
		if p.Role != roleAdmin {
			return newAPIError(http.StatusForbidden, "Admin access required")
		}
		return nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "admin-reports",
		Method:      http.MethodGet,
		Path:        "/admin/reports",
		Summary:     "List every report",
	}, func(ctx context.Context, _ *struct{}) (*reportListOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		rows, err := s.repo.ListReports(ctx)
		if err != nil {
			return nil, err
		}
		return &reportListOutput{Body: toReportDTOs(rows)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-users",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "List every account",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []gateway.UserDTO
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		rows, err := s.repo.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		dtos := make([]gateway.UserDTO, 0, len(rows))
		for _, row := range rows {
			dtos = append(dtos, toUserDTO(row))
		}
		return &struct {
			Body []gateway.UserDTO
		}{Body: dtos}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-volunteers",
		Method:      http.MethodGet,
		Path:        "/admin/volunteers",
		Summary:     "List every volunteer profile",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []gateway.VolunteerDTO
	}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		rows, err := s.repo.ListVolunteers(ctx)
		if err != nil {
			return nil, err
		}
		dtos := make([]gateway.VolunteerDTO, 0, len(rows))
		for _, row := range rows {
			dtos = append(dtos, toVolunteerDTO(row))
		}
		return &struct {
			Body []gateway.VolunteerDTO
		}{Body: dtos}, nil
	})
}

func toReportDTO(row repo.ReportRow) gateway.ReportDTO {
	dto := gateway.ReportDTO{
		ID:           row.ID,
		Description:  row.Description,
		Location:     row.Location,
		Status:       row.Status,
		Category:     row.Category,
		CreationDate: row.CreationDate,
		LastUpdated:  row.LastUpdated,
	}
	citizen := row.CitizenID
	dto.CitizenID = &citizen
	if row.Latitude.Valid {
		v := row.Latitude.Float64
		dto.Latitude = &v
	}
	if row.Longitude.Valid {
		v := row.Longitude.Float64
		dto.Longitude = &v
	}
	if row.ImagePath.Valid {
		dto.ImagePath = row.ImagePath.String
	}
	if row.VolunteerID.Valid {
		v := row.VolunteerID.Int64
		dto.VolunteerID = &v
	}
	return dto
}

func toReportDTOs(rows []repo.ReportRow) []gateway.ReportDTO {
	dtos := make([]gateway.ReportDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toReportDTO(row))
	}
	return dtos
}

func toUserDTO(row repo.UserRow) gateway.UserDTO {
	return gateway.UserDTO{
		ID:       row.ID,
		Name:     row.Name,
		Email:    row.Email,
		Mobile:   row.Mobile,
		UserType: row.UserType,
	}
}

func toVolunteerDTO(row repo.VolunteerRow) gateway.VolunteerDTO {
	userID := row.UserID
	lat := row.Latitude
	lng := row.Longitude
	return gateway.VolunteerDTO{
		ID:           row.ID,
		UserID:       &userID,
		VType:        row.VType,
		Area:         row.Area,
		Latitude:     &lat,
		Longitude:    &lng,
		Skill:        row.Skill,
		Availability: row.Availability,
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
