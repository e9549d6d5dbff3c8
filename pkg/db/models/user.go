package models

import (
	"time"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// User is an account that either buys (buyer) or sells through a shop (shop).
type User struct {
	ID           int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string         `gorm:"column:email;type:varchar(254);not null;uniqueIndex:ux_users_email"`
	PasswordHash string         `gorm:"column:password_hash;not null"`
	FirstName    string         `gorm:"column:first_name;type:varchar(150);not null;default:''"`
	LastName     string         `gorm:"column:last_name;type:varchar(150);not null;default:''"`
	Company      string         `gorm:"column:company;type:varchar(40);not null;default:''"`
	Position     string         `gorm:"column:position;type:varchar(40);not null;default:''"`
	Type         enums.UserType `gorm:"column:type;type:varchar(5);not null;default:'buyer'"`
	IsActive     bool           `gorm:"column:is_active;not null;default:false"`
	IsStaff      bool           `gorm:"column:is_staff;not null;default:false"`
	LastLoginAt  *time.Time     `gorm:"column:last_login_at"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// ConfirmEmailToken is the one-time key mailed after registration.
type ConfirmEmailToken struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	User      *User     `gorm:"foreignKey:UserID"`
	Key       string    `gorm:"column:key;type:varchar(64);not null;uniqueIndex:ux_confirm_tokens_key"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ConfirmEmailToken) TableName() string { return "confirm_email_tokens" }

// PasswordResetToken is the one-time key mailed when a user asks to reset
// their password.
type PasswordResetToken struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	User      *User     `gorm:"foreignKey:UserID"`
	Key       string    `gorm:"column:key;type:varchar(64);not null;uniqueIndex:ux_password_reset_tokens_key"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Contact is a delivery address and phone owned by a user.
type Contact struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	City      string    `gorm:"column:city;type:varchar(50);not null"`
	Street    string    `gorm:"column:street;type:varchar(100);not null"`
	House     string    `gorm:"column:house;type:varchar(15);not null;default:''"`
	Structure string    `gorm:"column:structure;type:varchar(15);not null;default:''"`
	Building  string    `gorm:"column:building;type:varchar(15);not null;default:''"`
	Apartment string    `gorm:"column:apartment;type:varchar(15);not null;default:''"`
	Phone     string    `gorm:"column:phone;type:varchar(20);not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
