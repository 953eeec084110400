package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/shopspring/decimal"

	"ticketera/internal/models"
	"ticketera/internal/pricing"
)

type partialRefundCall struct {
	paymentID int
	amount    float64
}

// fakeRefundProvider records provider calls instead of hitting Mercado Pago.
type fakeRefundProvider struct {
	mu      sync.Mutex
	full    []int
	partial []partialRefundCall
}

func (f *fakeRefundProvider) RefundPayment(ctx context.Context, paymentID int) (*refund.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.full = append(f.full, paymentID)
	return &refund.Response{ID: 9001}, nil
}

func (f *fakeRefundProvider) PartialRefundPayment(ctx context.Context, paymentID int, amount float64) (*refund.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partial = append(f.partial, partialRefundCall{paymentID: paymentID, amount: amount})
	return &refund.Response{ID: 9002}, nil
}

func TestApproveFullRefundCancelsTransfer(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeRefundProvider{}
	svc := NewRefundService(db, provider, NewSettlementService(db, nil))
	purchase, transfer := seedPaidPurchase(t, db, 48*time.Hour)

	request := models.RefundRequest{
		PurchaseID: purchase.ID,
		Reason:     pricing.ReasonEventCancellation,
		Status:     models.RefundRequestStatusPending,
	}
	if err := db.Create(&request).Error; err != nil {
		t.Fatalf("failed to create refund request: %v", err)
	}

	got, err := svc.Approve(context.Background(), request.ID, 1)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if len(provider.full) != 1 || provider.full[0] != 123456 {
		t.Errorf("expected one full refund for payment 123456, got %v", provider.full)
	}
	if len(provider.partial) != 0 {
		t.Errorf("expected no partial refunds, got %v", provider.partial)
	}
	if got.Status != models.RefundRequestStatusApproved {
		t.Errorf("expected status %q, got %q", models.RefundRequestStatusApproved, got.Status)
	}
	if !got.RefundAmount.Valid || !got.RefundAmount.Decimal.Equal(decimal.NewFromInt(1150)) {
		t.Errorf("expected refund amount 1150, got %v", got.RefundAmount)
	}

	var reloaded models.Purchase
	if err := db.First(&reloaded, purchase.ID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if reloaded.PaymentStatus != models.PaymentStatusRefunded {
		t.Errorf("expected payment status %q, got %q", models.PaymentStatusRefunded, reloaded.PaymentStatus)
	}

	var tr models.Transfer
	if err := db.First(&tr, transfer.ID).Error; err != nil {
		t.Fatalf("failed to reload transfer: %v", err)
	}
	if tr.Status != models.TransferStatusCancelled {
		t.Errorf("expected transfer status %q, got %q", models.TransferStatusCancelled, tr.Status)
	}
}

// A ticket-level claim refunds that ticket's proportional share of the
// purchase total and shrinks the pending payout by its base price.
func TestApproveTicketRefundIsProportional(t *testing.T) {
	db := openTestDB(t)
	provider := &fakeRefundProvider{}
	svc := NewRefundService(db, provider, NewSettlementService(db, nil))
	purchase, transfer := seedPaidPurchase(t, db, 48*time.Hour)

	tickets := []models.Ticket{
		{PurchaseID: purchase.ID, EventID: purchase.EventID, Code: uuid.New().String(), UnitBasePrice: decimal.NewFromInt(400), Status: models.TicketStatusValid},
		{PurchaseID: purchase.ID, EventID: purchase.EventID, Code: uuid.New().String(), UnitBasePrice: decimal.NewFromInt(600), Status: models.TicketStatusValid},
	}
	if err := db.Create(&tickets).Error; err != nil {
		t.Fatalf("failed to create tickets: %v", err)
	}

	request := models.RefundRequest{
		PurchaseID: purchase.ID,
		TicketID:   &tickets[0].ID,
		Reason:     pricing.ReasonEventCancellation,
		Status:     models.RefundRequestStatusPending,
	}
	if err := db.Create(&request).Error; err != nil {
		t.Fatalf("failed to create refund request: %v", err)
	}

	got, err := svc.Approve(context.Background(), request.ID, 1)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	// 400/1000 of the 1150 total
	if len(provider.partial) != 1 {
		t.Fatalf("expected one partial refund, got %v", provider.partial)
	}
	if provider.partial[0].paymentID != 123456 {
		t.Errorf("expected payment id 123456, got %d", provider.partial[0].paymentID)
	}
	if provider.partial[0].amount != 460 {
		t.Errorf("expected partial refund of 460, got %v", provider.partial[0].amount)
	}
	if len(provider.full) != 0 {
		t.Errorf("expected no full refund, got %v", provider.full)
	}
	if !got.RefundAmount.Valid || !got.RefundAmount.Decimal.Equal(decimal.NewFromInt(460)) {
		t.Errorf("expected refund amount 460, got %v", got.RefundAmount)
	}

	var reloaded models.Purchase
	if err := db.First(&reloaded, purchase.ID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if reloaded.PaymentStatus != models.PaymentStatusCompleted {
		t.Errorf("purchase must stay completed on a ticket refund, got %q", reloaded.PaymentStatus)
	}

	var tr models.Transfer
	if err := db.First(&tr, transfer.ID).Error; err != nil {
		t.Fatalf("failed to reload transfer: %v", err)
	}
	if !tr.Amount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected transfer amount shrunk to 600, got %s", tr.Amount)
	}
	if tr.Status != models.TransferStatusPending {
		t.Errorf("expected transfer to stay pending, got %q", tr.Status)
	}

	var refundedTicket models.Ticket
	if err := db.First(&refundedTicket, tickets[0].ID).Error; err != nil {
		t.Fatalf("failed to reload ticket: %v", err)
	}
	if refundedTicket.Status != models.TicketStatusRefunded {
		t.Errorf("expected ticket status %q, got %q", models.TicketStatusRefunded, refundedTicket.Status)
	}
}
