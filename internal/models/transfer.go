package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransferStatus represents the state of a producer payout
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusCancelled TransferStatus = "cancelled"
	TransferStatusFailed    TransferStatus = "failed"
)

// Transfer represents the scheduled payout of a purchase's base amount to
// its producer. A transfer may only complete once the linked purchase is
// paid, marked ready, and the money release hold has elapsed.
type Transfer struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PurchaseID uint `gorm:"uniqueIndex" json:"purchase_id"`
	ProducerID uint `gorm:"index" json:"producer_id"`
	EventID    uint `gorm:"index" json:"event_id"`

	// Amount equals the purchase's base amount; commission and operating
	// costs stay with the platform
	Amount decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`

	Status        TransferStatus `gorm:"type:varchar(20);default:'pending';index:idx_transfers_status_scheduled,priority:1" json:"status"`
	ScheduledAt   time.Time      `gorm:"index:idx_transfers_status_scheduled,priority:2" json:"scheduled_at"`
	TransferredAt *time.Time     `json:"transferred_at,omitempty"`

	// Relationships
	Purchase Purchase `gorm:"foreignKey:PurchaseID" json:"purchase,omitempty"`
	Producer User     `gorm:"foreignKey:ProducerID" json:"producer,omitempty"`
}
