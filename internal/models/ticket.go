package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TicketStatus represents whether a ticket is still valid
type TicketStatus string

const (
	TicketStatusValid    TicketStatus = "valid"
	TicketStatusRefunded TicketStatus = "refunded"
)

// Ticket represents one admission unit within a purchase. The unit base
// price is captured at purchase time so later ticket-type price edits do not
// change what was sold.
type Ticket struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PurchaseID   uint   `gorm:"index" json:"purchase_id"`
	TicketTypeID uint   `gorm:"index" json:"ticket_type_id"`
	EventID      uint   `gorm:"index" json:"event_id"`
	Code         string `gorm:"type:varchar(36);uniqueIndex" json:"code"`

	UnitBasePrice decimal.Decimal `gorm:"type:decimal(15,2)" json:"unit_base_price"`
	Status        TicketStatus    `gorm:"type:varchar(20);default:'valid'" json:"status"`

	// Relationships
	Purchase   Purchase   `gorm:"foreignKey:PurchaseID" json:"purchase,omitempty"`
	TicketType TicketType `gorm:"foreignKey:TicketTypeID" json:"ticket_type,omitempty"`
}
