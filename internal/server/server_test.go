package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"urbanaid/internal/db"
	"urbanaid/internal/gateway"
	"urbanaid/internal/migrate"
	"urbanaid/internal/repo"
)

type testServer struct {
	URL    string
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	handler, err := New(Config{Repo: r, Workspace: workspace, Auth: AuthConfig{JWTSecret: "test-secret"}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Repo:   r,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func registerCitizen(t *testing.T, srv *testServer, email string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users/register", map[string]any{
		"name":     "Test Citizen",
		"email":    email,
		"password": "pass1234",
		"mobile":   "9876543210",
		"userType": "ROLE_CITIZEN",
	}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register citizen status %d: %s", res.StatusCode, data)
	}
}

func registerVolunteer(t *testing.T, srv *testServer, email, skill string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/volunteers/register", map[string]any{
		"user": map[string]any{
			"name":     "Test Volunteer",
			"email":    email,
			"password": "pass1234",
			"mobile":   "9876543211",
		},
		"vtype":        "GENERAL_HELP",
		"area":         "Downtown",
		"latitude":     12.9,
		"longitude":    77.6,
		"availability": true,
		"skill":        skill,
	}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register volunteer status %d: %s", res.StatusCode, data)
	}
}

func signIn(t *testing.T, srv *testServer, email string) gateway.SignInResult {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users/signin", map[string]any{
		"email":    email,
		"password": "pass1234",
	}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("signin status %d: %s", res.StatusCode, data)
	}
	var result gateway.SignInResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal signin: %v", err)
	}
	if result.JWT == "" {
		t.Fatalf("signin returned no token: %s", data)
	}
	return result
}

func createReport(t *testing.T, srv *testServer, token string, description string) gateway.ReportDTO {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/reports", map[string]any{
		"description": description,
		"location":    "Main St",
		"latitude":    12.9,
		"longitude":   77.6,
		"category":    "ROADS",
	}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create report status %d: %s", res.StatusCode, data)
	}
	var dto gateway.ReportDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	return dto
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t)
	registerCitizen(t, srv, "c@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/users/signin", map[string]any{
		"email":    "c@example.com",
		"password": "wrong",
	}, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password status %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Message == "" {
		t.Fatalf("error envelope missing message: %s", data)
	}
}

func TestCreateReportValidation(t *testing.T) {
	srv := newTestServer(t)
	registerCitizen(t, srv, "c@example.com")
	token := signIn(t, srv, "c@example.com").JWT

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/reports", map[string]any{
		"description": "short",
		"location":    "Main St",
		"category":    "ROADS",
	}, token)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("short description status %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Message != "Description must be between 10 and 500 characters" {
		t.Fatalf("message = %q", envelope.Message)
	}
}

func TestClaimExclusivity(t *testing.T) {
	srv := newTestServer(t)
	registerCitizen(t, srv, "c@example.com")
	registerVolunteer(t, srv, "v1@example.com", "road")
	registerVolunteer(t, srv, "v2@example.com", "road")

	citizen := signIn(t, srv, "c@example.com")
	v1 := signIn(t, srv, "v1@example.com")
	v2 := signIn(t, srv, "v2@example.com")

	report := createReport(t, srv, citizen.JWT, "Pothole on Main St, deep one")
	if report.VolunteerID != nil {
		t.Fatalf("fresh report already has volunteerId %d", *report.VolunteerID)
	}

	url := srv.URL + "/reports/" + itoa(report.ID) + "/claim"
	res, data := doJSON(t, srv.Client(), http.MethodPut, url, nil, v1.JWT)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("first claim status %d: %s", res.StatusCode, data)
	}
	var claimed gateway.ReportDTO
	if err := json.Unmarshal(data, &claimed); err != nil {
		t.Fatalf("unmarshal claimed: %v", err)
	}
	if claimed.Status != "ASSIGNED" || claimed.VolunteerID == nil || *claimed.VolunteerID != v1.UserID {
		t.Fatalf("claimed report = %+v", claimed)
	}

	// second volunteer loses the race deterministically
	res, data = doJSON(t, srv.Client(), http.MethodPut, url, nil, v2.JWT)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second claim status %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal conflict: %v", err)
	}
	if envelope.Message != "Report already assigned or closed" {
		t.Fatalf("conflict message = %q", envelope.Message)
	}

	// claimed report no longer appears nearby
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/reports/nearby", nil, v2.JWT)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("nearby status %d: %s", res.StatusCode, data)
	}
	var nearby []gateway.ReportDTO
	if err := json.Unmarshal(data, &nearby); err != nil {
		t.Fatalf("unmarshal nearby: %v", err)
	}
	for _, r := range nearby {
		if r.ID == report.ID {
			t.Fatalf("claimed report still nearby: %+v", r)
		}
	}
}

func TestStatusUpdateAuthorization(t *testing.T) {
	srv := newTestServer(t)
	registerCitizen(t, srv, "c@example.com")
	registerVolunteer(t, srv, "v1@example.com", "road")
	registerVolunteer(t, srv, "v2@example.com", "road")

	citizen := signIn(t, srv, "c@example.com")
	v1 := signIn(t, srv, "v1@example.com")
	v2 := signIn(t, srv, "v2@example.com")

	report := createReport(t, srv, citizen.JWT, "Streetlight out on 2nd Ave")
	claimURL := srv.URL + "/reports/" + itoa(report.ID) + "/claim"
	if res, data := doJSON(t, srv.Client(), http.MethodPut, claimURL, nil, v1.JWT); res.StatusCode != http.StatusOK {
		t.Fatalf("claim status %d: %s", res.StatusCode, data)
	}

	statusURL := srv.URL + "/reports/" + itoa(report.ID) + "/status?status="

	// only the assignee may advance
	res, data := doJSON(t, srv.Client(), http.MethodPut, statusURL+"IN_PROGRESS", nil, v2.JWT)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-assignee status %d: %s", res.StatusCode, data)
	}

	// CREATED is never a valid target
	res, data = doJSON(t, srv.Client(), http.MethodPut, statusURL+"CREATED", nil, v1.JWT)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("created target status %d: %s", res.StatusCode, data)
	}

	// forward along the lifecycle
	res, data = doJSON(t, srv.Client(), http.MethodPut, statusURL+"IN_PROGRESS", nil, v1.JWT)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("to in_progress status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPut, statusURL+"COMPLETED", nil, v1.JWT)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("to completed status %d: %s", res.StatusCode, data)
	}
	var final gateway.ReportDTO
	if err := json.Unmarshal(data, &final); err != nil {
		t.Fatalf("unmarshal final: %v", err)
	}
	if final.Status != "COMPLETED" {
		t.Fatalf("final status = %s", final.Status)
	}

	// no moving backward
	res, data = doJSON(t, srv.Client(), http.MethodPut, statusURL+"IN_PROGRESS", nil, v1.JWT)
	if res.StatusCode == http.StatusOK {
		t.Fatalf("backward transition accepted: %s", data)
	}
}

func TestAdminGating(t *testing.T) {
	srv := newTestServer(t)
	registerCitizen(t, srv, "c@example.com")
	citizen := signIn(t, srv, "c@example.com")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/admin/users", nil, citizen.JWT)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("citizen admin access status %d: %s", res.StatusCode, data)
	}

	ctx := context.Background()
	if _, err := srv.Repo.InsertUser(ctx, repo.UserRow{
		Name:         "Admin",
		Email:        "admin@example.com",
		PasswordHash: repo.HashPassword("pass1234"),
		UserType:     "ROLE_ADMIN",
		CreatedAt:    "2026-01-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("insert admin: %v", err)
	}
	admin := signIn(t, srv, "admin@example.com")
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/admin/users", nil, admin.JWT)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin users status %d: %s", res.StatusCode, data)
	}
	var users []gateway.UserDTO
	if err := json.Unmarshal(data, &users); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %+v", users)
	}
}

func TestRequestsWithoutTokenRejected(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/reports/my", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status %d: %s", res.StatusCode, data)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
