package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/api/handlers"
	"github.com/rohits-web03/esigned/internal/api/services"
	"github.com/rohits-web03/esigned/internal/apperr"
	"github.com/rohits-web03/esigned/internal/config"
	"github.com/rohits-web03/esigned/internal/logging"
	"github.com/rohits-web03/esigned/internal/models"
	"github.com/rohits-web03/esigned/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adminID = uuid.New()
	userID  = uuid.New()
)

// stubAccounts authenticates "admin-token" and "user-token" and grants every
// capability to the admin only.
type stubAccounts struct {
	passwordUpdated bool
}

func (s *stubAccounts) Authenticate(token string) (uuid.UUID, error) {
	switch token {
	case "admin-token":
		return adminID, nil
	case "user-token":
		return userID, nil
	case "":
		return uuid.Nil, apperr.Auth("No token")
	default:
		return uuid.Nil, apperr.Auth("Invalid token")
	}
}

func (s *stubAccounts) Authorize(_ context.Context, id uuid.UUID, _ models.Capability) (*models.User, error) {
	if id != adminID {
		return nil, apperr.Forbidden("Admin access required. Only ADMIN users can perform this action.").
			WithType(apperr.TypeAdminRequired)
	}
	return &models.User{ID: id, Role: models.RoleAdmin}, nil
}

func (s *stubAccounts) Register(context.Context, services.RegisterInput) (*services.RegisterResult, error) {
	return &services.RegisterResult{RequiresActivation: true, EmailSent: true}, nil
}

func (s *stubAccounts) Activate(context.Context, string, string) error { return nil }
func (s *stubAccounts) ResendCode(context.Context, string) error       { return nil }

func (s *stubAccounts) Login(context.Context, string, string) (*services.LoginResult, error) {
	return nil, apperr.Auth("Invalid credentials")
}

func (s *stubAccounts) UpdateAdminPassword(context.Context, string) error {
	s.passwordUpdated = true
	return nil
}

type stubDocuments struct {
	uploadCalled bool
	listedFor    uuid.UUID
	downloadID   string
}

func (s *stubDocuments) Upload(context.Context, services.UploadInput) (*models.Document, error) {
	s.uploadCalled = true
	return nil, apperr.Conflict("File already exists").WithType(apperr.TypeDuplicateFile)
}

func (s *stubDocuments) Sign(context.Context, services.SignInput) (*services.SignResult, error) {
	return &services.SignResult{SignedPath: "storage/signed/x.pdf"}, nil
}

func (s *stubDocuments) List(_ context.Context, id uuid.UUID) ([]models.Document, error) {
	s.listedFor = id
	return []models.Document{}, nil
}

func (s *stubDocuments) View(context.Context, uuid.UUID, string) (*services.FileStream, error) {
	return nil, apperr.Forbidden("Access denied")
}

func (s *stubDocuments) DownloadSigned(_ context.Context, docID string) (*services.FileStream, error) {
	s.downloadID = docID
	return nil, apperr.NotFound("Signed document not available")
}

func newTestRouter(t *testing.T) (http.Handler, *stubAccounts, *stubDocuments) {
	t.Helper()
	accounts, docs := &stubAccounts{}, &stubDocuments{}
	cfg := &config.Config{
		CorsOrigins:  []string{"http://localhost:5173"},
		MaxJSONBytes: 1 << 20,
	}
	logger := logging.Discard()
	router := SetupRouter(Deps{
		Config:     cfg,
		Logger:     logger,
		Handler:    handlers.New(accounts, docs, logger, 10<<20),
		Auth:       accounts,
		Authorizer: accounts,
	})
	return router, accounts, docs
}

func do(t *testing.T, h http.Handler, req *http.Request, token string) (*httptest.ResponseRecorder, utils.Payload) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var p utils.Payload
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	}
	return rec, p
}

func TestHealth(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec, _ := do(t, router, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)
	do(t, router, httptest.NewRequest(http.MethodGet, "/health", nil), "")

	rec, _ := do(t, router, httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "esigned_http_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	router, _, _ := newTestRouter(t)

	for _, path := range []string{"/nope", "/api/auth/nope"} {
		rec, p := do(t, router, httptest.NewRequest(http.MethodGet, path, nil), "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "Route not found", p.Message)
	}
}

func TestPublicAuthRoutes(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, p := do(t, router, httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"a","email":"a@example.com","password":"p"}`)), "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, p.Success)

	rec, _ = do(t, router, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"username":"a","password":"p"}`)), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDocumentsRequireToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec, p := do(t, router, httptest.NewRequest(http.MethodGet, "/api/documents", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token", p.Message)

	rec, p = do(t, router, httptest.NewRequest(http.MethodGet, "/api/documents", nil), "forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", p.Message)
}

func TestListDocuments(t *testing.T) {
	router, _, docs := newTestRouter(t)

	for _, path := range []string{"/api/documents", "/api/documents/"} {
		rec, p := do(t, router, httptest.NewRequest(http.MethodGet, path, nil), "user-token")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, []any{}, p.Data)
		assert.Equal(t, userID, docs.listedFor)
	}
}

func uploadRequest(t *testing.T) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "contract.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_NonAdminRejectedBeforeUpload(t *testing.T) {
	router, _, docs := newTestRouter(t)

	rec, p := do(t, router, uploadRequest(t), "user-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperr.TypeAdminRequired, p.ErrorType)
	assert.False(t, docs.uploadCalled, "upload pipeline must not run for non-admins")
}

func TestUpload_AdminReachesPipeline(t *testing.T) {
	router, _, docs := newTestRouter(t)

	rec, p := do(t, router, uploadRequest(t), "admin-token")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperr.TypeDuplicateFile, p.ErrorType)
	assert.True(t, docs.uploadCalled)
}

func TestUpdateAdminPasswordIsGated(t *testing.T) {
	router, accounts, _ := newTestRouter(t)
	body := `{"newPassword":"secret1"}`

	rec, _ := do(t, router, httptest.NewRequest(http.MethodPost, "/api/auth/update-admin-password", strings.NewReader(body)), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, router, httptest.NewRequest(http.MethodPost, "/api/auth/update-admin-password", strings.NewReader(body)), "user-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, accounts.passwordUpdated)

	rec, _ = do(t, router, httptest.NewRequest(http.MethodPost, "/api/auth/update-admin-password", strings.NewReader(body)), "admin-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, accounts.passwordUpdated)
}

func TestDownloadPassesPathValue(t *testing.T) {
	router, _, docs := newTestRouter(t)

	rec, p := do(t, router, httptest.NewRequest(http.MethodGet, "/api/documents/download/doc-123", nil), "user-token")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Signed document not available", p.Message)
	assert.Equal(t, "doc-123", docs.downloadID)
}

func TestViewForbidden(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec, _ := do(t, router, httptest.NewRequest(http.MethodGet, "/api/documents/view/doc-123", nil), "user-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
