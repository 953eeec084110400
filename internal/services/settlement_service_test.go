package services

import (
	"errors"
	"testing"
	"time"

	"ticketera/internal/models"
	"ticketera/internal/pricing"
)

func TestCheckTransferEligibilityAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	released := now.Add(-pricing.MoneyReleaseDelay)

	tests := []struct {
		name     string
		purchase models.Purchase
		wantErr  error
	}{
		{
			"eligible",
			models.Purchase{
				PaymentStatus:    models.PaymentStatusCompleted,
				SettlementStatus: models.SettlementStatusReady,
			},
			nil,
		},
		{
			"refunded purchase",
			models.Purchase{
				PaymentStatus:    models.PaymentStatusRefunded,
				SettlementStatus: models.SettlementStatusReady,
			},
			ErrPurchaseRefunded,
		},
		{
			"payment still pending",
			models.Purchase{
				PaymentStatus:    models.PaymentStatusPending,
				SettlementStatus: models.SettlementStatusReady,
			},
			ErrPaymentNotCompleted,
		},
		{
			"payment failed",
			models.Purchase{
				PaymentStatus:    models.PaymentStatusFailed,
				SettlementStatus: models.SettlementStatusReady,
			},
			ErrPaymentNotCompleted,
		},
		{
			"settlement not ready",
			models.Purchase{
				PaymentStatus:    models.PaymentStatusCompleted,
				SettlementStatus: models.SettlementStatusPending,
			},
			ErrSettlementNotReady,
		},
		{
			"already transferred",
			models.Purchase{
				PaymentStatus:    models.PaymentStatusCompleted,
				SettlementStatus: models.SettlementStatusTransferred,
			},
			ErrSettlementNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.purchase.CreatedAt = released
			err := CheckTransferEligibilityAt(&tt.purchase, now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckTransferEligibilityAt() = %v; want %v", err, tt.wantErr)
			}
		})
	}
}

// A purchase inside the hold must surface the exact remaining hours, not a
// generic failure.
func TestCheckTransferEligibilityTimeGate(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	purchase := models.Purchase{
		PaymentStatus:    models.PaymentStatusCompleted,
		SettlementStatus: models.SettlementStatusReady,
	}
	purchase.CreatedAt = now.Add(-100 * time.Hour)

	err := CheckTransferEligibilityAt(&purchase, now)
	var pendingErr *ReleasePendingError
	if !errors.As(err, &pendingErr) {
		t.Fatalf("error = %v; want *ReleasePendingError", err)
	}
	if pendingErr.RemainingHours != 140 {
		t.Errorf("remaining hours = %d; want 140", pendingErr.RemainingHours)
	}
}

// The refund check must win over everything else: a refunded purchase is
// never reported as merely "not ready".
func TestRefundCheckTakesPrecedence(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	purchase := models.Purchase{
		PaymentStatus:    models.PaymentStatusRefunded,
		SettlementStatus: models.SettlementStatusPending,
	}
	purchase.CreatedAt = now.Add(-10 * time.Hour)

	if err := CheckTransferEligibilityAt(&purchase, now); !errors.Is(err, ErrPurchaseRefunded) {
		t.Errorf("error = %v; want ErrPurchaseRefunded", err)
	}
}
