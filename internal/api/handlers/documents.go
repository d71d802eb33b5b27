package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/rohits-web03/esigned/internal/api/services"
	"github.com/rohits-web03/esigned/internal/apperr"
	"github.com/rohits-web03/esigned/internal/logging"
	"github.com/rohits-web03/esigned/internal/utils"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

var errFileTooLarge = errors.New("file exceeds upload limit")

// limitedReader fails once more than n bytes have been read.
type limitedReader struct {
	r io.Reader
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.n < 0 {
		return 0, errFileTooLarge
	}
	if int64(len(p)) > l.n+1 {
		p = p[:l.n+1]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n < 0 {
		return n, errFileTooLarge
	}
	return n, err
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.Is(err, errFileTooLarge) || errors.As(err, &mbe)
}

func (h *Handler) tooLargeError() error {
	return apperr.Validation(fmt.Sprintf("File too large. Maximum size is %dMB.", h.maxUpload>>20))
}

// UploadDocument godoc
// @Summary Upload a PDF for signing
// @Description Admin only. The uploader becomes the document's first signer.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "PDF document"
// @Success 200 {object} utils.Payload{data=models.Document}
// @Failure 400 {object} utils.Payload
// @Failure 403 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Failure 500 {object} utils.Payload
// @Router /api/documents/upload [post]
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	in := services.UploadInput{UploaderID: userID}

	mr, err := r.MultipartReader()
	if err == nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				if isTooLarge(err) {
					h.fail(w, r, h.tooLargeError())
					return
				}
				h.fail(w, r, apperr.Validation("Invalid upload form").Wrap(err))
				return
			}
			if part.FormName() != "file" || part.FileName() == "" {
				part.Close()
				continue
			}

			mediaType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			in.Filename = part.FileName()
			in.ContentType = mediaType
			in.Body = &limitedReader{r: part, n: h.maxUpload}
			defer part.Close()
			break
		}
	}

	doc, err := h.documents.Upload(r.Context(), in)
	if err != nil {
		if isTooLarge(err) {
			h.fail(w, r, h.tooLargeError())
			return
		}
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Document uploaded successfully",
		Data:    doc,
	})
}

// ListDocuments godoc
// @Summary List the caller's documents
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Success 200 {object} utils.Payload{data=[]models.Document}
// @Failure 500 {object} utils.Payload
// @Router /api/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	docs, err := h.documents.List(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Documents retrieved successfully",
		Data:    docs,
	})
}

type signRequest struct {
	DocID                string `json:"docId"`
	SignatureImageBase64 string `json:"signatureImageBase64"`
}

// SignDocument godoc
// @Summary Stamp a signature image onto the first page
// @Tags Documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body signRequest true "Document id and signature image (base64 or data URI)"
// @Success 200 {object} utils.Payload{data=services.SignResult}
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Failure 500 {object} utils.Payload
// @Router /api/documents/sign [post]
func (h *Handler) SignDocument(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var in signRequest
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.documents.Sign(r.Context(), services.SignInput{
		SignerID:             userID,
		DocID:                in.DocID,
		SignatureImageBase64: in.SignatureImageBase64,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Document signed successfully",
		Data:    res,
	})
}

// DownloadSigned godoc
// @Summary Download the signed PDF
// @Tags Documents
// @Produce application/pdf
// @Security BearerAuth
// @Param docId path string true "Document ID"
// @Success 200 {file} binary
// @Failure 404 {object} utils.Payload
// @Router /api/documents/download/{docId} [get]
func (h *Handler) DownloadSigned(w http.ResponseWriter, r *http.Request) {
	stream, err := h.documents.DownloadSigned(r.Context(), r.PathValue("docId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serveFile(w, r, stream, "attachment")
}

// ViewDocument godoc
// @Summary View the original PDF
// @Description Only signers of the document may view it.
// @Tags Documents
// @Produce application/pdf
// @Security BearerAuth
// @Param docId path string true "Document ID"
// @Success 200 {file} binary
// @Failure 403 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/documents/view/{docId} [get]
func (h *Handler) ViewDocument(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	stream, err := h.documents.View(r.Context(), userID, r.PathValue("docId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.serveFile(w, r, stream, "inline")
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, stream *services.FileStream, disposition string) {
	defer stream.Body.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": stream.Name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream.Body); err != nil {
		h.logger.Warn("file stream interrupted",
			slog.String("path", r.URL.Path),
			slog.String("file", stream.Name),
			logging.Err(err),
		)
	}
}
