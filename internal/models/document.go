package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentStatus string

const (
	StatusPending DocumentStatus = "pending"
	StatusSigned  DocumentStatus = "signed"
)

type Document struct {
	ID           uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	Filename     string           `json:"filename" gorm:"index;not null"`
	OriginalPath string           `json:"originalPath" gorm:"not null"` // written once by upload
	SignedPath   *string          `json:"signedPath,omitempty"`
	Status       DocumentStatus   `json:"status" gorm:"type:varchar(16);not null;default:pending"`
	Version      int64            `json:"-" gorm:"not null;default:0"`
	Signers      []DocumentSigner `json:"-" gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time        `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt    time.Time        `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (d *Document) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	return nil
}

func (d *Document) SignerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.Signers))
	for _, s := range d.Signers {
		ids = append(ids, s.UserID)
	}
	return ids
}

func (d *Document) HasSigner(userID uuid.UUID) bool {
	for _, s := range d.Signers {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// MarshalJSON renders signers as a flat list of user ids.
func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return json.Marshal(struct {
		plain
		Signers []uuid.UUID `json:"signers"`
	}{plain: plain(d), Signers: d.SignerIDs()})
}
