package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentSigner grants a user view/sign access to a document.
type DocumentSigner struct {
	DocumentID uuid.UUID `json:"documentId" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `json:"userId" gorm:"type:uuid;primaryKey;index"`
	CreatedAt  time.Time `json:"createdAt" gorm:"autoCreateTime"`
}
