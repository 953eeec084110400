package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus represents the payment lifecycle of a purchase
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// SettlementStatus represents how far a purchase's funds are along the
// release path to the producer
type SettlementStatus string

const (
	SettlementStatusPending     SettlementStatus = "pending"
	SettlementStatusReady       SettlementStatus = "ready"
	SettlementStatusTransferred SettlementStatus = "transferred"
)

// Purchase represents one checkout transaction with its full financial
// breakdown. The monetary columns always reconcile:
// total = base + commission, net = total - operating costs.
type Purchase struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UUID    string `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	EventID uint   `gorm:"index" json:"event_id"`
	BuyerID uint   `gorm:"index" json:"buyer_id"`

	TotalAmount      decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_amount"`
	BaseAmount       decimal.Decimal `gorm:"type:decimal(15,2)" json:"base_amount"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"commission_amount"`

	MercadoPagoCommission decimal.Decimal `gorm:"type:decimal(15,2)" json:"mercadopago_commission"`
	IVACommission         decimal.Decimal `gorm:"type:decimal(15,2)" json:"iva_commission"`
	IIBBRetention         decimal.Decimal `gorm:"type:decimal(15,2)" json:"iibb_retention"`
	OperatingCostsTotal   decimal.Decimal `gorm:"type:decimal(15,2)" json:"operating_costs_total"`

	NetAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"net_amount"`
	NetMargin decimal.Decimal `gorm:"type:decimal(15,2)" json:"net_margin"`

	MoneyReleaseDate time.Time `gorm:"index" json:"money_release_date"`

	PaymentStatus    PaymentStatus    `gorm:"type:varchar(20);default:'pending';index" json:"payment_status"`
	SettlementStatus SettlementStatus `gorm:"type:varchar(20);default:'pending';index" json:"settlement_status"`

	// PaymentID is the provider-side payment identifier, set once the
	// provider confirms the payment
	PaymentID *string `gorm:"type:varchar(64);index" json:"payment_id,omitempty"`

	// Relationships
	Event          Event           `gorm:"foreignKey:EventID" json:"event,omitempty"`
	Buyer          User            `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	Tickets        []Ticket        `gorm:"foreignKey:PurchaseID" json:"tickets,omitempty"`
	Transfers      []Transfer      `gorm:"foreignKey:PurchaseID" json:"transfers,omitempty"`
	RefundRequests []RefundRequest `gorm:"foreignKey:PurchaseID" json:"refund_requests,omitempty"`
}
