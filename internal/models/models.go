package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the durable identity record. ActiveRefreshToken holds the sha256
// digest of the last issued refresh token, never the token itself; an empty
// value means no live session. PasswordHash and the session digest are
// excluded from every serialized form.
type User struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey"   json:"id"`
	Username           string    `gorm:"not null"               json:"username"`
	Email              string    `gorm:"uniqueIndex;not null"   json:"email"`
	PasswordHash       string    `gorm:"not null"               json:"-"`
	Topic              string    `gorm:"not null;default:pending" json:"topic"`
	ActiveRefreshToken string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
