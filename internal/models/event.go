package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Event represents a published event sellable through the marketplace
type Event struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	UUID        string    `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	ProducerID  uint      `gorm:"index" json:"producer_id"`
	Name        string    `gorm:"type:varchar(255)" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Venue       string    `gorm:"type:varchar(255)" json:"venue"`
	StartDate   time.Time `gorm:"index" json:"start_date"`
	IsPublished bool      `gorm:"default:false" json:"is_published"`

	// Relationships
	Producer    User         `gorm:"foreignKey:ProducerID" json:"producer,omitempty"`
	TicketTypes []TicketType `gorm:"foreignKey:EventID" json:"ticket_types,omitempty"`
	Purchases   []Purchase   `gorm:"foreignKey:EventID" json:"purchases,omitempty"`
}

// TicketType represents one price tier of an event
type TicketType struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	EventID uint   `gorm:"index" json:"event_id"`
	Name    string `gorm:"type:varchar(255)" json:"name"`

	// Price is the producer-set base price, excluding platform commission
	Price decimal.Decimal `gorm:"type:decimal(15,2)" json:"price"`
	Stock int             `json:"stock"`

	// Relationships
	Event Event `gorm:"foreignKey:EventID" json:"event,omitempty"`
}
