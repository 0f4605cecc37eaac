package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"urbanaid/internal/repo"
)

// Config for the stub backend handler.
type Config struct {
	Repo      repo.Repo
	Workspace string
	Auth      AuthConfig
	Now       func() time.Time
}

// server carries the wiring shared by all handlers.
type server struct {
	repo repo.Repo
	auth AuthConfig
	now  func() time.Time
}

func (s *server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// apiError is the stub's error envelope: the status code plus a message
// field, which is what the client's error classifier reads.
type apiError struct {
	status  int
	Message string `json:"message"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

func newAPIError(status int, message string) huma.StatusError {
	return &apiError{status: status, Message: message}
}

// New returns an HTTP handler implementing the UrbanAid REST surface the
// client consumes. It serves at the root path, like the real backend.
func New(cfg Config) (http.Handler, error) {
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "urbanaid-dev-secret"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &server{repo: cfg.Repo, auth: cfg.Auth, now: cfg.Now}

	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// schema validation failures are payload rejections
			status = http.StatusBadRequest
		}
		return newAPIError(status, msg)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(cfg.Auth))

	uploads := filepath.Join(cfg.Workspace, ".urbanaid", "uploads")
	if err := os.MkdirAll(uploads, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	router.Post("/reports/upload-image", s.handleUpload(uploads))
	router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploads))))

	hcfg := huma.DefaultConfig("UrbanAid stub API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)

	s.registerAuth(api)
	s.registerUsers(api)
	s.registerReports(api)
	s.registerVolunteers(api)
	s.registerAdmin(api)

	return router, nil
}

// handleUpload stores a multipart image and answers with the relative path
// the report payload should carry, as a JSON string.
func (s *server) handleUpload(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart payload")
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "image field is required")
			return
		}
		defer file.Close()
		path, err := saveUpload(dir, header, file)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "store image failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "%q", path)
	}
}

func saveUpload(dir string, header *multipart.FileHeader, file io.Reader) (string, error) {
	ext := filepath.Ext(header.Filename)
	name := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		return "", err
	}
	return "uploads/" + name, nil
}

func normalizeStatus(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
