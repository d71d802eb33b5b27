package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/apperr"
	"github.com/rohits-web03/esigned/internal/logging"
	"github.com/rohits-web03/esigned/internal/metrics"
	"github.com/rohits-web03/esigned/internal/models"
	"github.com/rohits-web03/esigned/internal/pdfsign"
	"github.com/rohits-web03/esigned/internal/repositories"
)

const pdfContentType = "application/pdf"

type DocumentStore interface {
	Create(ctx context.Context, d *models.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListBySigner(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	MarkSigned(ctx context.Context, id uuid.UUID, expectedVersion int64, signedPath string) error
}

// DocumentService runs the upload and signing pipelines.
type DocumentService struct {
	docs   DocumentStore
	files  repositories.FileStore
	logger *slog.Logger
}

func NewDocumentService(docs DocumentStore, files repositories.FileStore, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DocumentService{docs: docs, files: files, logger: logger}
}

type UploadInput struct {
	UploaderID  uuid.UUID
	Filename    string
	ContentType string
	Body        io.Reader
}

// FileStream is an open stored file handed to the HTTP layer.
type FileStream struct {
	Name string
	Body io.ReadCloser
}

// cleanFilename reduces a client supplied name to its base name.
func cleanFilename(name string) (string, bool) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "", false
	}
	base := filepath.Base(name)
	switch base {
	case ".", "..", "/":
		return "", false
	}
	return base, true
}

// pdfError maps a pdfsign failure onto the document error kinds.
func pdfError(err error, signing bool) *apperr.Error {
	switch {
	case errors.Is(err, pdfsign.ErrEncrypted):
		msg := "This PDF document is encrypted or password-protected. Please use an unencrypted PDF file."
		if signing {
			msg = "This PDF document is encrypted or password-protected. Please use an unencrypted PDF file for signing."
		}
		return apperr.EncryptedDocument(msg).Wrap(err)
	case errors.Is(err, pdfsign.ErrCorrupt):
		return apperr.CorruptDocument("This PDF document appears to be corrupted or invalid. Please use a valid PDF file.").Wrap(err)
	default:
		return apperr.Processing("Unable to process this PDF document. Please ensure it is a valid, unencrypted PDF file.").Wrap(err)
	}
}

func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (doc *models.Document, err error) {
	defer func() {
		metrics.UploadsTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if in.Body == nil {
		return nil, apperr.Validation("No file uploaded")
	}
	if in.ContentType != pdfContentType {
		return nil, apperr.Validation("Only PDF files are allowed")
	}
	name, ok := cleanFilename(in.Filename)
	if !ok {
		return nil, apperr.Validation("Invalid filename")
	}

	staged, err := s.files.Stage(ctx, in.Body)
	if err != nil {
		return nil, apperr.Internal("Error processing uploaded file").Wrap(err)
	}

	exists, err := s.files.Exists(ctx, repositories.AreaUploads, name)
	if err != nil {
		s.discard(ctx, staged)
		return nil, apperr.Internal("Error processing uploaded file").Wrap(err)
	}
	if exists {
		s.discard(ctx, staged)
		return nil, apperr.Conflict(fmt.Sprintf("File %q already exists. Please choose a different file or rename the existing one.", name)).
			WithType(apperr.TypeDuplicateFile).
			WithDetail("filename", name)
	}

	stored, err := s.files.Promote(ctx, staged, repositories.AreaUploads, name)
	if err != nil {
		s.discard(ctx, staged)
		return nil, apperr.Internal("Error processing uploaded file").Wrap(err)
	}

	data, err := s.readAll(ctx, stored)
	if err != nil {
		s.remove(ctx, stored)
		return nil, apperr.Internal("Error processing uploaded file").Wrap(err)
	}
	if _, err := pdfsign.Inspect(data); err != nil {
		s.remove(ctx, stored)
		s.logger.Info("rejected uploaded pdf", slog.String("filename", name), logging.Err(err))
		return nil, pdfError(err, false)
	}

	doc = &models.Document{
		Filename:     name,
		OriginalPath: stored,
		Status:       models.StatusPending,
		Signers:      []models.DocumentSigner{{UserID: in.UploaderID}},
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		s.remove(ctx, stored)
		return nil, apperr.Internal("Upload failed. Please try again.").Wrap(err)
	}

	s.logger.Info("document uploaded",
		slog.String("document_id", doc.ID.String()),
		slog.String("filename", name),
		slog.String("uploader_id", in.UploaderID.String()))
	return doc, nil
}

type SignInput struct {
	SignerID             uuid.UUID
	DocID                string
	SignatureImageBase64 string
}

type SignResult struct {
	SignedPath string `json:"signedPath"`
}

func (s *DocumentService) Sign(ctx context.Context, in SignInput) (res *SignResult, err error) {
	defer func() {
		metrics.SignaturesTotal.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if strings.TrimSpace(in.DocID) == "" {
		return nil, apperr.Validation("Document ID is required")
	}
	if in.SignatureImageBase64 == "" {
		return nil, apperr.Validation("Signature data is required")
	}

	doc, err := s.find(ctx, in.DocID)
	if err != nil {
		return nil, err
	}

	data, err := s.readAll(ctx, doc.OriginalPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.NotFound("Original document file not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to read document").Wrap(err)
	}
	if _, err := pdfsign.Inspect(data); err != nil {
		return nil, pdfError(err, true)
	}

	img, err := pdfsign.DecodeSignature(in.SignatureImageBase64)
	switch {
	case errors.Is(err, pdfsign.ErrSignatureFormat):
		return nil, apperr.Validation("Invalid signature data format")
	case err != nil:
		return nil, apperr.Validation("Invalid signature image").Wrap(err)
	}

	signed, err := pdfsign.Stamp(data, img)
	if err != nil {
		return nil, pdfError(err, true)
	}

	signedPath, err := s.files.Put(ctx, repositories.AreaSigned, in.SignerID.String()+"_"+doc.Filename, signed)
	if err != nil {
		return nil, apperr.Internal("Failed to store signed document").Wrap(err)
	}

	if err := s.docs.MarkSigned(ctx, doc.ID, doc.Version, signedPath); err != nil {
		if errors.Is(err, repositories.ErrStale) {
			return nil, apperr.Conflict("Document was modified concurrently. Please reload and try again.")
		}
		return nil, apperr.Internal("Failed to update document").Wrap(err)
	}

	s.logger.Info("document signed",
		slog.String("document_id", doc.ID.String()),
		slog.String("signer_id", in.SignerID.String()))
	return &SignResult{SignedPath: signedPath}, nil
}

// List returns the documents userID is a signer of, newest first.
func (s *DocumentService) List(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	docs, err := s.docs.ListBySigner(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("Failed to fetch documents").Wrap(err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// View opens the original PDF for one of its signers.
func (s *DocumentService) View(ctx context.Context, userID uuid.UUID, docID string) (*FileStream, error) {
	doc, err := s.find(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.HasSigner(userID) {
		return nil, apperr.Forbidden("Access denied")
	}
	return s.open(ctx, doc.OriginalPath, doc.Filename, "Original file not found on server")
}

func (s *DocumentService) DownloadSigned(ctx context.Context, docID string) (*FileStream, error) {
	doc, err := s.find(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.SignedPath == nil || *doc.SignedPath == "" {
		return nil, apperr.NotFound("Signed document not available")
	}
	return s.open(ctx, *doc.SignedPath, path.Base(filepath.ToSlash(*doc.SignedPath)), "Signed file not found on server")
}

func (s *DocumentService) find(ctx context.Context, docID string) (*models.Document, error) {
	id, err := uuid.Parse(strings.TrimSpace(docID))
	if err != nil {
		return nil, apperr.NotFound("Document not found")
	}
	doc, err := s.docs.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperr.NotFound("Document not found")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load document").Wrap(err)
	}
	return doc, nil
}

func (s *DocumentService) open(ctx context.Context, stored, name, missing string) (*FileStream, error) {
	rc, err := s.files.Open(ctx, stored)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("stored file missing", slog.String("path", stored))
		return nil, apperr.NotFound(missing)
	}
	if err != nil {
		return nil, apperr.Internal("Failed to open file").Wrap(err)
	}
	return &FileStream{Name: name, Body: rc}, nil
}

func (s *DocumentService) readAll(ctx context.Context, stored string) ([]byte, error) {
	rc, err := s.files.Open(ctx, stored)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *DocumentService) discard(ctx context.Context, staged string) {
	if err := s.files.Discard(ctx, staged); err != nil {
		s.logger.Error("failed to discard staged upload", slog.String("path", staged), logging.Err(err))
	}
}

func (s *DocumentService) remove(ctx context.Context, stored string) {
	if err := s.files.Remove(ctx, stored); err != nil {
		s.logger.Error("failed to clean up stored file", slog.String("path", stored), logging.Err(err))
	}
}
