package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ticketera/internal/pricing"
)

// RefundRequestStatus represents the review state of a refund claim
type RefundRequestStatus string

const (
	RefundRequestStatusPending  RefundRequestStatus = "pending"
	RefundRequestStatusApproved RefundRequestStatus = "approved"
	RefundRequestStatusRejected RefundRequestStatus = "rejected"
)

// RefundRequest represents a claim against a purchase, or against a single
// ticket of it when TicketID is set. RefundAmount stays null until the
// policy evaluator runs during approval and never exceeds the purchase total.
type RefundRequest struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PurchaseID uint  `gorm:"index" json:"purchase_id"`
	TicketID   *uint `gorm:"index" json:"ticket_id,omitempty"`

	Reason pricing.RefundReason `gorm:"type:varchar(50)" json:"reason"`
	Detail string               `gorm:"type:text" json:"detail"`

	Status             RefundRequestStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	RefundAmount       decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"refund_amount"`
	ServiceFeeRefunded bool                `gorm:"default:false" json:"service_fee_refunded"`

	// ProviderRefundID is the payment provider's refund identifier, set on
	// approval once the provider accepts the refund
	ProviderRefundID *string    `gorm:"type:varchar(64)" json:"provider_refund_id,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	ProcessedBy      *uint      `json:"processed_by,omitempty"`

	// Relationships
	Purchase Purchase `gorm:"foreignKey:PurchaseID" json:"purchase,omitempty"`
	Ticket   *Ticket  `gorm:"foreignKey:TicketID" json:"ticket,omitempty"`
}
