package model

import (
	"time"

	"github.com/google/uuid"
)

// UserModel mirrors the 'users' table. PostgreSQL generates UUIDs via gen_random_uuid().
// Email and the embedded token slots are nullable; NULL means the slot is empty.
type UserModel struct {
	ID                  uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Handle              string    `gorm:"type:varchar(50);unique;not null"`
	Email               *string   `gorm:"type:varchar(255);unique"`
	Nickname            string    `gorm:"type:varchar(50);unique;not null"`
	PasswordHash        string    `gorm:"type:varchar(255);not null"`
	IsVerified          bool      `gorm:"not null;default:false"`
	VerificationToken   *string   `gorm:"type:text;index"`
	ResetToken          *string   `gorm:"type:text"`
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Accounts      []AccountModel      `gorm:"foreignKey:UserID"`
	RefreshTokens []RefreshTokenModel `gorm:"foreignKey:UserID"`
}

// TableName explicitly sets the table name for GORM.
func (UserModel) TableName() string {
	return "users"
}
