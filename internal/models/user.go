package models

import (
	"time"

	"gorm.io/gorm"
)

// UserType represents the role of a user on the marketplace
type UserType string

const (
	UserTypeAdmin    UserType = "admin"
	UserTypeProducer UserType = "producer"
	UserTypeCustomer UserType = "customer"
)

// User represents a buyer, producer or operator account
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	FirebaseUID string   `gorm:"type:varchar(128);uniqueIndex" json:"firebase_uid"`
	Name        string   `gorm:"type:varchar(255)" json:"name"`
	Phone       string   `gorm:"type:varchar(50)" json:"phone"`
	Email       string   `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	UserType    UserType `gorm:"type:varchar(20);default:'customer'" json:"user_type"`

	// NotifyByEmail controls whether settlement/refund mails are sent
	NotifyByEmail bool `gorm:"default:true" json:"notify_by_email"`

	// Relationships
	Events    []Event    `gorm:"foreignKey:ProducerID" json:"events,omitempty"`
	Purchases []Purchase `gorm:"foreignKey:BuyerID" json:"purchases,omitempty"`
	Transfers []Transfer `gorm:"foreignKey:ProducerID" json:"transfers,omitempty"`
}
