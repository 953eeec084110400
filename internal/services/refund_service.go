package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ticketera/internal/models"
	"ticketera/internal/pricing"
)

var (
	// ErrRefundAlreadyRequested means an open claim already exists for the purchase.
	ErrRefundAlreadyRequested = errors.New("a refund request already exists for this purchase")

	// ErrRefundNotPending means the request was already approved or rejected.
	ErrRefundNotPending = errors.New("refund request has already been processed")

	// ErrPurchaseNotRefundable means the purchase was never confirmed paid.
	ErrPurchaseNotRefundable = errors.New("purchase is not eligible for refund")

	// ErrTicketNotInPurchase means the ticket does not belong to the claimed purchase.
	ErrTicketNotInPurchase = errors.New("ticket does not belong to this purchase")
)

// RefundProvider is the slice of the payment provider the refund flow
// needs. *MercadoPagoService satisfies it.
type RefundProvider interface {
	RefundPayment(ctx context.Context, paymentID int) (*refund.Response, error)
	PartialRefundPayment(ctx context.Context, paymentID int, amount float64) (*refund.Response, error)
}

// RefundService drives refund claims: buyer request, admin decision,
// provider refund, and the purchase/transfer fallout of an approval.
type RefundService struct {
	db         *gorm.DB
	mpClient   RefundProvider
	settlement *SettlementService
}

func NewRefundService(db *gorm.DB, mpClient RefundProvider, settlement *SettlementService) *RefundService {
	return &RefundService{db: db, mpClient: mpClient, settlement: settlement}
}

// RequestRefund files a claim against a purchase, or a single ticket of it
// when ticketID is set. The amount stays unset until approval evaluates the
// policy.
func (s *RefundService) RequestRefund(ctx context.Context, buyerID uint, purchaseID uint, ticketID *uint, reason pricing.RefundReason, detail string) (*models.RefundRequest, error) {
	var purchase models.Purchase
	if err := s.db.First(&purchase, purchaseID).Error; err != nil {
		return nil, fmt.Errorf("purchase %d not found: %w", purchaseID, err)
	}

	if purchase.BuyerID != buyerID {
		return nil, fmt.Errorf("purchase %d does not belong to buyer %d", purchaseID, buyerID)
	}
	if purchase.PaymentStatus != models.PaymentStatusCompleted {
		return nil, ErrPurchaseNotRefundable
	}

	var open int64
	err := s.db.Model(&models.RefundRequest{}).
		Where("purchase_id = ? AND status IN ?", purchaseID,
			[]models.RefundRequestStatus{models.RefundRequestStatusPending, models.RefundRequestStatusApproved}).
		Count(&open).Error
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, ErrRefundAlreadyRequested
	}

	if ticketID != nil {
		var ticket models.Ticket
		if err := s.db.First(&ticket, *ticketID).Error; err != nil {
			return nil, fmt.Errorf("ticket %d not found: %w", *ticketID, err)
		}
		if ticket.PurchaseID != purchase.ID {
			return nil, ErrTicketNotInPurchase
		}
	}

	request := models.RefundRequest{
		PurchaseID: purchase.ID,
		TicketID:   ticketID,
		Reason:     reason,
		Detail:     detail,
		Status:     models.RefundRequestStatusPending,
	}
	if err := s.db.Create(&request).Error; err != nil {
		return nil, fmt.Errorf("failed to create refund request: %w", err)
	}

	log.Printf("Refund request %d created for purchase %d (reason %s)", request.ID, purchase.ID, reason)
	return &request, nil
}

// PreviewRefund evaluates the policy for a purchase without touching any
// record, so callers can show what a claim would yield.
func (s *RefundService) PreviewRefund(purchase *models.Purchase, event *models.Event, reason pricing.RefundReason) pricing.RefundCalculation {
	return pricing.EvaluateRefund(pricing.RefundInput{
		TotalAmount: purchase.TotalAmount,
		BaseAmount:  purchase.BaseAmount,
		PurchasedAt: purchase.CreatedAt,
		EventStart:  event.StartDate,
	}, reason)
}

// Reject closes a pending request without any money movement
func (s *RefundService) Reject(ctx context.Context, requestID uint, adminID uint) (*models.RefundRequest, error) {
	var request models.RefundRequest
	if err := s.db.First(&request, requestID).Error; err != nil {
		return nil, fmt.Errorf("refund request %d not found: %w", requestID, err)
	}
	if request.Status != models.RefundRequestStatusPending {
		return nil, ErrRefundNotPending
	}

	now := time.Now()
	res := s.db.Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", request.ID, models.RefundRequestStatusPending).
		Updates(map[string]interface{}{
			"status":       models.RefundRequestStatusRejected,
			"processed_at": &now,
			"processed_by": adminID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrRefundNotPending
	}

	request.Status = models.RefundRequestStatusRejected
	request.ProcessedAt = &now
	request.ProcessedBy = &adminID
	return &request, nil
}

// Approve evaluates the policy, issues the provider refund and records the
// outcome. A zero policy result is still a valid approval: the request
// closes with amount 0 and no money moves.
func (s *RefundService) Approve(ctx context.Context, requestID uint, adminID uint) (*models.RefundRequest, error) {
	var request models.RefundRequest
	if err := s.db.Preload("Purchase").Preload("Purchase.Event").Preload("Ticket").First(&request, requestID).Error; err != nil {
		return nil, fmt.Errorf("refund request %d not found: %w", requestID, err)
	}
	if request.Status != models.RefundRequestStatusPending {
		return nil, ErrRefundNotPending
	}

	purchase := request.Purchase
	if purchase.PaymentStatus != models.PaymentStatusCompleted || purchase.PaymentID == nil {
		return nil, ErrPurchaseNotRefundable
	}

	calc := pricing.EvaluateRefund(pricing.RefundInput{
		TotalAmount: purchase.TotalAmount,
		BaseAmount:  purchase.BaseAmount,
		PurchasedAt: purchase.CreatedAt,
		EventStart:  purchase.Event.StartDate,
	}, request.Reason)

	amount := calc.RefundableAmount
	if request.Ticket != nil && purchase.BaseAmount.IsPositive() {
		// Ticket-level claim: refund that ticket's proportional share
		share := request.Ticket.UnitBasePrice.Div(purchase.BaseAmount)
		amount = calc.RefundableAmount.Mul(share).Round(2)
	}

	var providerRefundID *string
	if amount.IsPositive() {
		paymentID, err := strconv.Atoi(*purchase.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("invalid provider payment id %q: %w", *purchase.PaymentID, err)
		}

		if amount.Equal(purchase.TotalAmount) {
			resp, err := s.mpClient.RefundPayment(ctx, paymentID)
			if err != nil {
				return nil, err
			}
			id := fmt.Sprintf("%d", resp.ID)
			providerRefundID = &id
		} else {
			amountFloat, _ := amount.Float64()
			resp, err := s.mpClient.PartialRefundPayment(ctx, paymentID, amountFloat)
			if err != nil {
				return nil, err
			}
			id := fmt.Sprintf("%d", resp.ID)
			providerRefundID = &id
		}
	}

	now := time.Now()
	res := s.db.Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", request.ID, models.RefundRequestStatusPending).
		Updates(map[string]interface{}{
			"status":               models.RefundRequestStatusApproved,
			"refund_amount":        amount,
			"service_fee_refunded": calc.ServiceFeeRefundable,
			"provider_refund_id":   providerRefundID,
			"processed_at":         &now,
			"processed_by":         adminID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to another operator; the provider refund (if any)
		// already went through, so surface loudly instead of silently.
		return nil, fmt.Errorf("refund request %d processed concurrently after provider refund: %w", request.ID, ErrRefundNotPending)
	}

	if amount.IsPositive() {
		if request.Ticket != nil {
			s.applyTicketRefund(ctx, &purchase, request.Ticket)
		} else {
			s.applyPurchaseRefund(ctx, &purchase)
		}
	}

	request.Status = models.RefundRequestStatusApproved
	request.RefundAmount = decimal.NewNullDecimal(amount)
	request.ServiceFeeRefunded = calc.ServiceFeeRefundable
	request.ProviderRefundID = providerRefundID
	request.ProcessedAt = &now
	request.ProcessedBy = &adminID

	log.Printf("Refund request %d approved: purchase %d, amount %s", request.ID, purchase.ID, amount)
	return &request, nil
}

// applyPurchaseRefund marks the whole purchase refunded and cancels any
// in-flight transfer so refunded funds can never be paid out.
func (s *RefundService) applyPurchaseRefund(ctx context.Context, purchase *models.Purchase) {
	if err := s.db.Model(&models.Purchase{}).
		Where("id = ? AND payment_status = ?", purchase.ID, models.PaymentStatusCompleted).
		Update("payment_status", models.PaymentStatusRefunded).Error; err != nil {
		log.Printf("Failed to mark purchase %d as refunded: %v", purchase.ID, err)
	}
	if err := s.db.Model(&models.Ticket{}).
		Where("purchase_id = ?", purchase.ID).
		Update("status", models.TicketStatusRefunded).Error; err != nil {
		log.Printf("Failed to mark tickets of purchase %d as refunded: %v", purchase.ID, err)
	}
	if _, err := s.settlement.CancelTransfersForPurchase(ctx, purchase.ID); err != nil {
		log.Printf("Failed to cancel transfers for purchase %d: %v", purchase.ID, err)
	}
}

// applyTicketRefund voids a single ticket and shrinks the pending payout by
// its base share. The purchase itself stays completed.
func (s *RefundService) applyTicketRefund(ctx context.Context, purchase *models.Purchase, ticket *models.Ticket) {
	if err := s.db.Model(&models.Ticket{}).
		Where("id = ?", ticket.ID).
		Update("status", models.TicketStatusRefunded).Error; err != nil {
		log.Printf("Failed to mark ticket %d as refunded: %v", ticket.ID, err)
	}
	if err := s.db.Model(&models.Transfer{}).
		Where("purchase_id = ? AND status = ?", purchase.ID, models.TransferStatusPending).
		Update("amount", gorm.Expr("amount - ?", ticket.UnitBasePrice)).Error; err != nil {
		log.Printf("Failed to adjust transfer amount for purchase %d: %v", purchase.ID, err)
	}
}
