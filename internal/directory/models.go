package directory

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Roles recognized by the panel.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type UserRecord struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	DisplayName  string `gorm:"size:128"`
	PasswordHash string `gorm:"size:255"` // bcrypt hash
	Role         string `gorm:"size:16;default:user"`
	Active       bool   `gorm:"default:true"`
}

// AccountRecord assigns one bot account identifier (IGG id) to a panel user.
type AccountRecord struct {
	gorm.Model
	Identifier string `gorm:"uniqueIndex;size:64;not null"`
	UserID     uint   `gorm:"index;not null"`
	Note       string `gorm:"size:256"`
}

type SubscriptionRecord struct {
	gorm.Model
	AccountID uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

type ActivityRecord struct {
	gorm.Model
	Username   string         `gorm:"index;size:64"`
	Action     string         `gorm:"size:64;not null"`
	Identifier string         `gorm:"index;size:64"`
	Detail     datatypes.JSON `gorm:"type:json"`
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserRecord{}, &AccountRecord{}, &SubscriptionRecord{}, &ActivityRecord{})
}
