package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/api/middleware"
	"github.com/rohits-web03/esigned/internal/api/services"
	"github.com/rohits-web03/esigned/internal/apperr"
	"github.com/rohits-web03/esigned/internal/models"
	"github.com/rohits-web03/esigned/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	registered  services.RegisterInput
	activated   [2]string
	resent      string
	newPassword string
	err         error
}

func (f *fakeAccounts) Register(_ context.Context, in services.RegisterInput) (*services.RegisterResult, error) {
	f.registered = in
	if f.err != nil {
		return nil, f.err
	}
	return &services.RegisterResult{RequiresActivation: true, EmailSent: true}, nil
}

func (f *fakeAccounts) Activate(_ context.Context, email, code string) error {
	f.activated = [2]string{email, code}
	return f.err
}

func (f *fakeAccounts) ResendCode(_ context.Context, email string) error {
	f.resent = email
	return f.err
}

func (f *fakeAccounts) Login(_ context.Context, username, _ string) (*services.LoginResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.LoginResult{Token: "tok", User: services.UserSummary{Username: username}}, nil
}

func (f *fakeAccounts) UpdateAdminPassword(_ context.Context, p string) error {
	f.newPassword = p
	return f.err
}

type fakeDocuments struct {
	upload   services.UploadInput
	uploaded []byte
	sign     services.SignInput
	viewer   uuid.UUID
	stream   *services.FileStream
	docs     []models.Document
	err      error
}

func (f *fakeDocuments) Upload(_ context.Context, in services.UploadInput) (*models.Document, error) {
	f.upload = in
	if in.Body == nil {
		return nil, apperr.Validation("No file uploaded")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, apperr.Internal("Error processing uploaded file").Wrap(err)
	}
	f.uploaded = data
	if f.err != nil {
		return nil, f.err
	}
	return &models.Document{ID: uuid.New(), Filename: in.Filename, Status: models.StatusPending}, nil
}

func (f *fakeDocuments) Sign(_ context.Context, in services.SignInput) (*services.SignResult, error) {
	f.sign = in
	if f.err != nil {
		return nil, f.err
	}
	return &services.SignResult{SignedPath: "storage/signed/" + in.SignerID.String() + "_contract.pdf"}, nil
}

func (f *fakeDocuments) List(context.Context, uuid.UUID) ([]models.Document, error) {
	return f.docs, f.err
}

func (f *fakeDocuments) View(_ context.Context, userID uuid.UUID, _ string) (*services.FileStream, error) {
	f.viewer = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeDocuments) DownloadSigned(context.Context, string) (*services.FileStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func newTestHandler(maxUpload int64) (*Handler, *fakeAccounts, *fakeDocuments) {
	a, d := &fakeAccounts{}, &fakeDocuments{}
	return New(a, d, nil, maxUpload), a, d
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), id))
}

func payloadOf(t *testing.T, rec *httptest.ResponseRecorder) utils.Payload {
	t.Helper()
	var p utils.Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p), rec.Body.String())
	return p
}

func bodyOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestRegister(t *testing.T) {
	h, accounts, _ := newTestHandler(0)
	rec := httptest.NewRecorder()

	h.Register(rec, jsonRequest(http.MethodPost, "/api/auth/register",
		`{"username":"alice","email":"a@example.com","password":"pw"}`))

	assert.Equal(t, http.StatusCreated, rec.Code)
	p := payloadOf(t, rec)
	assert.True(t, p.Success)
	assert.Equal(t, "User registered successfully. Please check your email for activation code.", p.Message)
	assert.Equal(t, map[string]any{"requiresActivation": true, "emailSent": true}, p.Data)
	assert.Equal(t, services.RegisterInput{Username: "alice", Email: "a@example.com", Password: "pw"}, accounts.registered)
}

func TestRegister_Errors(t *testing.T) {
	h, accounts, _ := newTestHandler(0)

	rec := httptest.NewRecorder()
	h.Register(rec, jsonRequest(http.MethodPost, "/api/auth/register", `{"username":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid input", payloadOf(t, rec).Message)

	accounts.err = apperr.Conflict("Username already exists").WithStatus(http.StatusBadRequest)
	rec = httptest.NewRecorder()
	h.Register(rec, jsonRequest(http.MethodPost, "/api/auth/register", `{"username":"alice"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p := payloadOf(t, rec)
	assert.False(t, p.Success)
	assert.Equal(t, "Username already exists", p.Message)
}

func TestLogin(t *testing.T) {
	h, accounts, _ := newTestHandler(0)

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	p := payloadOf(t, rec)
	assert.Equal(t, "Login successful", p.Message)
	data := p.Data.(map[string]any)
	assert.Equal(t, "tok", data["token"])

	accounts.err = apperr.Auth("Account not activated. Please check your email for activation code.").
		WithDetail("requiresActivation", true).
		WithDetail("email", "a@example.com")
	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := bodyOf(t, rec)
	assert.Equal(t, true, body["requiresActivation"])
	assert.Equal(t, "a@example.com", body["email"])
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body, "data")
}

func TestActivate_AcceptsCodeAlias(t *testing.T) {
	h, accounts, _ := newTestHandler(0)

	rec := httptest.NewRecorder()
	h.Activate(rec, jsonRequest(http.MethodPost, "/api/auth/activate", `{"email":"a@example.com","code":"123456"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"a@example.com", "123456"}, accounts.activated)
	assert.Equal(t, "Account activated successfully! You can now login.", payloadOf(t, rec).Message)

	rec = httptest.NewRecorder()
	h.Activate(rec, jsonRequest(http.MethodPost, "/api/auth/activate",
		`{"email":"a@example.com","activationCode":"654321","code":"111111"}`))
	assert.Equal(t, [2]string{"a@example.com", "654321"}, accounts.activated)
}

func TestActivate_RateLimited(t *testing.T) {
	h, accounts, _ := newTestHandler(0)
	accounts.err = apperr.RateLimited("Too many activation attempts. Please try again later.")

	rec := httptest.NewRecorder()
	h.Activate(rec, jsonRequest(http.MethodPost, "/api/auth/activate", `{"email":"a@example.com","code":"1"}`))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestResendActivation(t *testing.T) {
	h, accounts, _ := newTestHandler(0)

	rec := httptest.NewRecorder()
	h.ResendActivation(rec, jsonRequest(http.MethodPost, "/api/auth/resend-activation", `{"email":"a@example.com"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@example.com", accounts.resent)

	accounts.err = apperr.Delivery("Failed to send activation email")
	rec = httptest.NewRecorder()
	h.ResendActivation(rec, jsonRequest(http.MethodPost, "/api/auth/resend-activation", `{"email":"a@example.com"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send activation email", payloadOf(t, rec).Message)
}

func TestUpdateAdminPassword(t *testing.T) {
	h, accounts, _ := newTestHandler(0)

	rec := httptest.NewRecorder()
	h.UpdateAdminPassword(rec, jsonRequest(http.MethodPost, "/api/auth/update-admin-password", `{"newPassword":"secret1"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secret1", accounts.newPassword)
	assert.Equal(t, "Admin password updated successfully", payloadOf(t, rec).Message)
}

func multipartRequest(t *testing.T, field, filename, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadDocument(t *testing.T) {
	h, _, docs := newTestHandler(0)
	uploader := uuid.New()

	rec := httptest.NewRecorder()
	h.UploadDocument(rec, asUser(multipartRequest(t, "file", "contract.pdf", "application/pdf", []byte("%PDF-1.4")), uploader))

	assert.Equal(t, http.StatusOK, rec.Code)
	p := payloadOf(t, rec)
	assert.Equal(t, "Document uploaded successfully", p.Message)
	assert.Equal(t, "contract.pdf", p.Data.(map[string]any)["filename"])
	assert.Equal(t, uploader, docs.upload.UploaderID)
	assert.Equal(t, "application/pdf", docs.upload.ContentType)
	assert.Equal(t, "%PDF-1.4", string(docs.uploaded))
}

func TestUploadDocument_NoFile(t *testing.T) {
	h, _, docs := newTestHandler(0)

	rec := httptest.NewRecorder()
	h.UploadDocument(rec, asUser(multipartRequest(t, "other", "contract.pdf", "application/pdf", []byte("x")), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", payloadOf(t, rec).Message)
	assert.Nil(t, docs.upload.Body)

	rec = httptest.NewRecorder()
	h.UploadDocument(rec, asUser(jsonRequest(http.MethodPost, "/api/documents/upload", `{}`), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", payloadOf(t, rec).Message)
}

func TestUploadDocument_TooLarge(t *testing.T) {
	h, _, _ := newTestHandler(1 << 20)
	body := bytes.Repeat([]byte("a"), 1<<20+10)

	rec := httptest.NewRecorder()
	h.UploadDocument(rec, asUser(multipartRequest(t, "file", "big.pdf", "application/pdf", body), uuid.New()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File too large. Maximum size is 1MB.", payloadOf(t, rec).Message)
}

func TestUploadDocument_ExactLimit(t *testing.T) {
	h, _, docs := newTestHandler(1 << 20)
	body := bytes.Repeat([]byte("a"), 1<<20)

	rec := httptest.NewRecorder()
	h.UploadDocument(rec, asUser(multipartRequest(t, "file", "edge.pdf", "application/pdf", body), uuid.New()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, docs.uploaded, 1<<20)
}

func TestUploadDocument_Duplicate(t *testing.T) {
	h, _, docs := newTestHandler(0)
	docs.err = apperr.Conflict(`File "contract.pdf" already exists.`).
		WithType(apperr.TypeDuplicateFile).
		WithDetail("filename", "contract.pdf")

	rec := httptest.NewRecorder()
	h.UploadDocument(rec, asUser(multipartRequest(t, "file", "contract.pdf", "application/pdf", []byte("%PDF")), uuid.New()))

	assert.Equal(t, http.StatusConflict, rec.Code)
	p := payloadOf(t, rec)
	assert.Equal(t, apperr.TypeDuplicateFile, p.ErrorType)
	assert.Equal(t, "contract.pdf", bodyOf(t, rec)["filename"])
}

func TestUploadDocument_RequiresUser(t *testing.T) {
	h, _, _ := newTestHandler(0)
	rec := httptest.NewRecorder()
	h.UploadDocument(rec, multipartRequest(t, "file", "contract.pdf", "application/pdf", []byte("x")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignDocument(t *testing.T) {
	h, _, docs := newTestHandler(0)
	signer := uuid.New()

	rec := httptest.NewRecorder()
	h.SignDocument(rec, asUser(jsonRequest(http.MethodPost, "/api/documents/sign",
		`{"docId":"abc","signatureImageBase64":"data:image/png;base64,AAAA"}`), signer))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.SignInput{SignerID: signer, DocID: "abc", SignatureImageBase64: "data:image/png;base64,AAAA"}, docs.sign)
	data := payloadOf(t, rec).Data.(map[string]any)
	assert.Equal(t, "storage/signed/"+signer.String()+"_contract.pdf", data["signedPath"])
}

func TestSignDocument_Errors(t *testing.T) {
	h, _, docs := newTestHandler(0)

	cases := []struct {
		err    error
		status int
		typ    string
	}{
		{apperr.NotFound("Document not found"), http.StatusNotFound, ""},
		{apperr.EncryptedDocument("encrypted").WithType(apperr.TypeEncryptedPDF), http.StatusBadRequest, apperr.TypeEncryptedPDF},
		{apperr.Conflict("Document was modified concurrently."), http.StatusConflict, ""},
	}
	for _, tc := range cases {
		docs.err = tc.err
		rec := httptest.NewRecorder()
		h.SignDocument(rec, asUser(jsonRequest(http.MethodPost, "/api/documents/sign", `{"docId":"x","signatureImageBase64":"y"}`), uuid.New()))
		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, tc.typ, payloadOf(t, rec).ErrorType)
	}
}

func TestListDocuments(t *testing.T) {
	h, _, docs := newTestHandler(0)
	docs.docs = []models.Document{}

	rec := httptest.NewRecorder()
	h.ListDocuments(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/documents", nil), uuid.New()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Documents retrieved successfully","data":[]}`, rec.Body.String())
}

func TestDownloadSigned(t *testing.T) {
	h, _, docs := newTestHandler(0)
	docs.stream = &services.FileStream{Name: "u_contract.pdf", Body: io.NopCloser(strings.NewReader("%PDF-signed"))}

	req := httptest.NewRequest(http.MethodGet, "/api/documents/download/abc", nil)
	req.SetPathValue("docId", "abc")
	rec := httptest.NewRecorder()
	h.DownloadSigned(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=u_contract.pdf`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-signed", rec.Body.String())
}

func TestDownloadSigned_NotAvailable(t *testing.T) {
	h, _, docs := newTestHandler(0)
	docs.err = apperr.NotFound("Signed document not available")

	rec := httptest.NewRecorder()
	h.DownloadSigned(rec, httptest.NewRequest(http.MethodGet, "/api/documents/download/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Signed document not available", payloadOf(t, rec).Message)
}

func TestViewDocument(t *testing.T) {
	h, _, docs := newTestHandler(0)
	viewer := uuid.New()
	docs.stream = &services.FileStream{Name: "my contract.pdf", Body: io.NopCloser(strings.NewReader("%PDF"))}

	rec := httptest.NewRecorder()
	h.ViewDocument(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/documents/view/abc", nil), viewer))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, viewer, docs.viewer)
	assert.Equal(t, `inline; filename="my contract.pdf"`, rec.Header().Get("Content-Disposition"))

	docs.err = apperr.Forbidden("Access denied")
	rec = httptest.NewRecorder()
	h.ViewDocument(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/documents/view/abc", nil), viewer))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLimitedReader(t *testing.T) {
	l := &limitedReader{r: strings.NewReader("abcdef"), n: 6}
	got, err := io.ReadAll(l)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(got))

	l = &limitedReader{r: strings.NewReader("abcdefg"), n: 6}
	_, err = io.ReadAll(l)
	assert.ErrorIs(t, err, errFileTooLarge)
}
