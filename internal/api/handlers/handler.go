package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/api/middleware"
	"github.com/rohits-web03/esigned/internal/api/services"
	"github.com/rohits-web03/esigned/internal/apperr"
	"github.com/rohits-web03/esigned/internal/logging"
	"github.com/rohits-web03/esigned/internal/models"
	"github.com/rohits-web03/esigned/internal/utils"
)

const defaultMaxUpload = 10 << 20

type AccountAPI interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResult, error)
	Activate(ctx context.Context, email, code string) error
	ResendCode(ctx context.Context, email string) error
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	UpdateAdminPassword(ctx context.Context, newPassword string) error
}

type DocumentAPI interface {
	Upload(ctx context.Context, in services.UploadInput) (*models.Document, error)
	Sign(ctx context.Context, in services.SignInput) (*services.SignResult, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	View(ctx context.Context, userID uuid.UUID, docID string) (*services.FileStream, error)
	DownloadSigned(ctx context.Context, docID string) (*services.FileStream, error)
}

// Handler serves the auth and document routes.
type Handler struct {
	accounts  AccountAPI
	documents DocumentAPI
	logger    *slog.Logger
	maxUpload int64
}

func New(accounts AccountAPI, documents DocumentAPI, logger *slog.Logger, maxUpload int64) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{accounts: accounts, documents: documents, logger: logger, maxUpload: maxUpload}
}

// fail writes err and logs anything that ended up as a server error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.JSONError(w, err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logging.Err(err),
		)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.Validation("Request body too large").Wrap(err)
		}
		return apperr.Validation("Invalid input").Wrap(err)
	}
	return nil
}

func currentUser(r *http.Request) (uuid.UUID, error) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		return uuid.Nil, apperr.Auth("Authentication required")
	}
	return id, nil
}
