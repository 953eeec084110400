package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"gorm.io/gorm"

	"ticketera/internal/models"
	"ticketera/internal/pricing"
)

var (
	// ErrInsufficientStock means a requested ticket type sold out first.
	ErrInsufficientStock = errors.New("not enough tickets in stock")

	// ErrPaymentAlreadyMade means the purchase was already confirmed paid.
	ErrPaymentAlreadyMade = errors.New("payment already made")
)

// CheckoutItem is one requested ticket type and quantity
type CheckoutItem struct {
	TicketTypeID uint `json:"ticket_type_id"`
	Quantity     int  `json:"quantity"`
}

// PaymentService orchestrates checkout: purchase creation with the full
// financial breakdown, provider preference sessions, and webhook-driven
// status transitions.
type PaymentService struct {
	db         *gorm.DB
	mpClient   *MercadoPagoService
	settlement *SettlementService
}

func NewPaymentService(db *gorm.DB, mpClient *MercadoPagoService, settlement *SettlementService) *PaymentService {
	return &PaymentService{db: db, mpClient: mpClient, settlement: settlement}
}

// CreatePurchase reserves stock, computes the financial breakdown and
// persists the purchase with its tickets in one transaction. The pending
// transfer record is created afterwards, best-effort: its absence never
// fails a checkout and is repaired by reconciliation.
func (s *PaymentService) CreatePurchase(ctx context.Context, buyer *models.User, event *models.Event, items []CheckoutItem) (*models.Purchase, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("checkout requires at least one item")
	}

	var purchase models.Purchase

	err := s.db.Transaction(func(tx *gorm.DB) error {
		lineItems := make([]pricing.LineItem, 0, len(items))
		ticketTypes := make([]models.TicketType, 0, len(items))

		for _, item := range items {
			var tt models.TicketType
			if err := tx.Where("id = ? AND event_id = ?", item.TicketTypeID, event.ID).First(&tt).Error; err != nil {
				return fmt.Errorf("ticket type %d not found: %w", item.TicketTypeID, err)
			}

			// Conditional decrement so concurrent checkouts cannot oversell
			res := tx.Model(&models.TicketType{}).
				Where("id = ? AND stock >= ?", tt.ID, item.Quantity).
				Update("stock", gorm.Expr("stock - ?", item.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrInsufficientStock
			}

			lineItems = append(lineItems, pricing.LineItem{
				UnitBasePrice: tt.Price,
				Quantity:      item.Quantity,
			})
			ticketTypes = append(ticketTypes, tt)
		}

		now := time.Now()
		quote, err := pricing.CalculateTotalPrice(lineItems)
		if err != nil {
			return err
		}
		breakdown, err := pricing.CalculateFinancialBreakdown(quote.BasePrice, now)
		if err != nil {
			return err
		}

		purchase = models.Purchase{
			UUID:                  uuid.New().String(),
			EventID:               event.ID,
			BuyerID:               buyer.ID,
			TotalAmount:           breakdown.TotalAmount,
			BaseAmount:            breakdown.BaseAmount,
			CommissionAmount:      breakdown.CommissionAmount,
			MercadoPagoCommission: breakdown.OperatingCosts.MercadoPagoCommission,
			IVACommission:         breakdown.OperatingCosts.IVACommission,
			IIBBRetention:         breakdown.OperatingCosts.IIBBRetention,
			OperatingCostsTotal:   breakdown.OperatingCosts.Total,
			NetAmount:             breakdown.NetAmount,
			NetMargin:             breakdown.NetMargin,
			MoneyReleaseDate:      breakdown.MoneyReleaseDate,
			PaymentStatus:         models.PaymentStatusPending,
			SettlementStatus:      models.SettlementStatusPending,
		}
		if err := tx.Create(&purchase).Error; err != nil {
			return fmt.Errorf("failed to create purchase: %w", err)
		}

		for i, item := range items {
			for n := 0; n < item.Quantity; n++ {
				ticket := models.Ticket{
					PurchaseID:    purchase.ID,
					TicketTypeID:  ticketTypes[i].ID,
					EventID:       event.ID,
					Code:          uuid.New().String(),
					UnitBasePrice: ticketTypes[i].Price,
					Status:        models.TicketStatusValid,
				}
				if err := tx.Create(&ticket).Error; err != nil {
					return fmt.Errorf("failed to create ticket: %w", err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// Best-effort: checkout must not fail on this
	if _, err := s.settlement.CreateTransfer(&purchase, event.ProducerID); err != nil {
		log.Printf("Transfer creation deferred to reconciliation: %v", err)
	}

	return &purchase, nil
}

// InitiateCheckoutResult holds the result of an initiation attempt
type InitiateCheckoutResult struct {
	PreferenceID string
	InitPoint    string
	IsExisting   bool
}

// InitiateCheckout opens (or resumes) the provider checkout session for a
// purchase and returns the redirect init point.
func (s *PaymentService) InitiateCheckout(ctx context.Context, purchase *models.Purchase, event *models.Event, buyer *models.User, forceNew bool, callbackURL, notificationURL string) (*InitiateCheckoutResult, error) {
	if purchase.PaymentStatus == models.PaymentStatusCompleted {
		return nil, ErrPaymentAlreadyMade
	}

	// 1. Reuse an existing active session unless the caller forces a new one
	var existing models.PaymentSession
	err := s.db.Where("purchase_id = ? AND is_active = ?", purchase.ID, true).
		Order("created_at desc").First(&existing).Error
	if err == nil {
		if !forceNew && existing.InitPoint != "" {
			return &InitiateCheckoutResult{
				PreferenceID: existing.PreferenceID,
				InitPoint:    existing.InitPoint,
				IsExisting:   true,
			}, nil
		}
		existing.IsActive = false
		s.db.Save(&existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. Create a new preference. The buyer pays the full total; the
	// base/commission split is internal to the platform.
	total, _ := purchase.TotalAmount.Float64()
	req := preference.Request{
		Items: []preference.ItemRequest{
			{
				ID:         purchase.UUID,
				Title:      fmt.Sprintf("Tickets for %s", event.Name),
				Quantity:   1,
				UnitPrice:  total,
				CurrencyID: "ARS",
			},
		},
		ExternalReference: purchase.UUID,
		NotificationURL:   notificationURL,
		BackURLs: &preference.BackURLsRequest{
			Success: callbackURL,
			Pending: callbackURL,
			Failure: callbackURL,
		},
	}

	resp, err := s.mpClient.CreatePreference(ctx, req)
	if err != nil {
		return nil, err
	}

	// 3. Record the session with raw payloads for audit
	reqBytes, _ := json.Marshal(req)
	respBytes, _ := json.Marshal(resp)

	session := models.PaymentSession{
		PurchaseID:       purchase.ID,
		BuyerID:          buyer.ID,
		PaymentGateway:   models.PaymentGatewayMercadoPago,
		PreferenceID:     resp.ID,
		InitPoint:        resp.InitPoint,
		IsActive:         true,
		RequestMetadata:  reqBytes,
		ResponseMetadata: respBytes,
	}
	if err := s.db.Create(&session).Error; err != nil {
		log.Printf("Failed to record payment session for purchase %d: %v", purchase.ID, err)
	}

	return &InitiateCheckoutResult{
		PreferenceID: resp.ID,
		InitPoint:    resp.InitPoint,
		IsExisting:   false,
	}, nil
}

// HandlePaymentNotification processes a provider webhook by re-fetching the
// payment and transitioning the purchase accordingly. The notification
// payload itself is never trusted for status.
func (s *PaymentService) HandlePaymentNotification(ctx context.Context, paymentID int) error {
	payment, err := s.mpClient.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}

	var purchase models.Purchase
	if err := s.db.Where("uuid = ?", payment.ExternalReference).First(&purchase).Error; err != nil {
		return fmt.Errorf("no purchase for external reference %q: %w", payment.ExternalReference, err)
	}

	providerID := fmt.Sprintf("%d", payment.ID)

	switch payment.Status {
	case "approved":
		return s.markAsPaid(ctx, &purchase, providerID)
	case "refunded", "charged_back":
		return s.markAsRefunded(ctx, &purchase)
	case "rejected", "cancelled":
		res := s.db.Model(&models.Purchase{}).
			Where("id = ? AND payment_status = ?", purchase.ID, models.PaymentStatusPending).
			Update("payment_status", models.PaymentStatusFailed)
		if res.Error != nil {
			return res.Error
		}
		s.deactivateSessions(purchase.ID)
		return nil
	default:
		// pending / in_process: nothing to do yet
		return nil
	}
}

// markAsPaid confirms the purchase. The conditional update keeps repeated
// notifications idempotent; only the first one transitions the record. A
// confirmed purchase is immediately settlement-ready; the time gate is what
// holds the payout back.
func (s *PaymentService) markAsPaid(ctx context.Context, purchase *models.Purchase, providerPaymentID string) error {
	res := s.db.Model(&models.Purchase{}).
		Where("id = ? AND payment_status = ?", purchase.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"payment_status":    models.PaymentStatusCompleted,
			"settlement_status": models.SettlementStatusReady,
			"payment_id":        providerPaymentID,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark purchase %d as paid: %w", purchase.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("Purchase %d already processed, ignoring duplicate notification", purchase.ID)
		return nil
	}

	s.deactivateSessions(purchase.ID)

	log.Printf("Purchase %d confirmed paid (provider payment %s)", purchase.ID, providerPaymentID)
	return nil
}

// markAsRefunded reacts to a provider-side refund/chargeback: the purchase
// is marked refunded and any in-flight transfer is cancelled.
func (s *PaymentService) markAsRefunded(ctx context.Context, purchase *models.Purchase) error {
	res := s.db.Model(&models.Purchase{}).
		Where("id = ? AND payment_status IN ?", purchase.ID,
			[]models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusCompleted}).
		Update("payment_status", models.PaymentStatusRefunded)
	if res.Error != nil {
		return fmt.Errorf("failed to mark purchase %d as refunded: %w", purchase.ID, res.Error)
	}

	if _, err := s.settlement.CancelTransfersForPurchase(ctx, purchase.ID); err != nil {
		return err
	}
	return nil
}

func (s *PaymentService) deactivateSessions(purchaseID uint) {
	if err := s.db.Model(&models.PaymentSession{}).
		Where("purchase_id = ? AND is_active = ?", purchaseID, true).
		Update("is_active", false).Error; err != nil {
		log.Printf("Failed to deactivate sessions for purchase %d: %v", purchaseID, err)
	}
}
