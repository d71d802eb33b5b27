package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/rohits-web03/esigned/internal/models"
	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts the document together with its signer rows.
func (r *DocumentRepository) Create(ctx context.Context, d *models.Document) error {
	return translate(r.db.WithContext(ctx).Create(d).Error)
}

func (r *DocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var d models.Document
	err := r.db.WithContext(ctx).Preload("Signers").Where("id = ?", id).First(&d).Error
	if err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *DocumentRepository) ListBySigner(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).
		Preload("Signers").
		Joins("JOIN document_signers ON document_signers.document_id = documents.id").
		Where("document_signers.user_id = ?", userID).
		Order("documents.created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// MarkSigned flips the document to signed only if nobody else wrote it since
// expectedVersion was read.
func (r *DocumentRepository) MarkSigned(ctx context.Context, id uuid.UUID, expectedVersion int64, signedPath string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"signed_path": signedPath,
			"status":      models.StatusSigned,
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}
