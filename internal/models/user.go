package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Capability is a permission derived from a user's role.
type Capability string

const (
	CapUploadDocuments   Capability = "documents:upload"
	CapManageAdminSecret Capability = "admin:password"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {CapUploadDocuments, CapManageAdminSecret},
	RoleUser:  nil,
}

type User struct {
	ID                    uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Username              string     `json:"username" gorm:"uniqueIndex;not null"`
	Email                 string     `json:"email" gorm:"uniqueIndex;not null"`
	Password              string     `json:"-" gorm:"not null"`
	Role                  Role       `json:"role" gorm:"type:varchar(16);not null;default:user"`
	IsActivated           bool       `json:"isActivated" gorm:"not null;default:false"`
	ActivationCode        *string    `json:"-" gorm:"type:varchar(6)"`
	ActivationCodeExpires *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt             time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// Can reports whether the user's role grants c.
func (u *User) Can(c Capability) bool {
	for _, have := range roleCapabilities[u.Role] {
		if have == c {
			return true
		}
	}
	return false
}

// SetActivationCode replaces any pending code.
func (u *User) SetActivationCode(code string, expires time.Time) {
	u.ActivationCode = &code
	u.ActivationCodeExpires = &expires
}

// MarkActivated clears the pending code; it cannot be reused afterwards.
func (u *User) MarkActivated() {
	u.IsActivated = true
	u.ActivationCode = nil
	u.ActivationCodeExpires = nil
}
