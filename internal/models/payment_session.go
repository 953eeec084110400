package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type PaymentGateway string

const (
	PaymentGatewayMercadoPago PaymentGateway = "mercadopago"
	PaymentGatewayManual      PaymentGateway = "manual"
)

// PaymentSession tracks one provider checkout preference opened for a
// purchase. Only one session per purchase is active at a time; forcing a new
// session deactivates the previous one.
type PaymentSession struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	PurchaseID       uint            `gorm:"index" json:"purchase_id"`
	BuyerID          uint            `gorm:"index" json:"buyer_id"`
	PaymentGateway   PaymentGateway  `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	PreferenceID     string          `gorm:"type:varchar(100);index" json:"preference_id"`
	InitPoint        string          `gorm:"type:text" json:"init_point"`
	IsActive         bool            `gorm:"default:true" json:"is_active"`
	RequestMetadata  json.RawMessage `gorm:"type:jsonb" json:"request_metadata"`
	ResponseMetadata json.RawMessage `gorm:"type:jsonb" json:"response_metadata"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}
