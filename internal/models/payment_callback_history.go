package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentCallbackHistory stores every provider webhook notification as
// received, before any processing, for audit and replay.
type PaymentCallbackHistory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PaymentGateway PaymentGateway  `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	PaymentID      string          `gorm:"type:varchar(64);index" json:"payment_id"`
	Metadata       json.RawMessage `gorm:"type:jsonb" json:"metadata"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}
