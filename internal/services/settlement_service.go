package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"ticketera/internal/models"
	"ticketera/internal/pricing"
)

// Domain-rule errors surfaced by the transfer state machine. They are kept
// distinct from persistence errors so callers can tell "not eligible" apart
// from "the database was unreachable".
var (
	// ErrTransferNotPending means the transfer already left the pending state.
	ErrTransferNotPending = errors.New("transfer is not pending")

	// ErrPaymentNotCompleted means the linked purchase was never confirmed paid.
	ErrPaymentNotCompleted = errors.New("purchase payment is not completed")

	// ErrSettlementNotReady means the purchase funds are not marked ready for release.
	ErrSettlementNotReady = errors.New("purchase settlement is not ready")

	// ErrPurchaseRefunded means the purchase was refunded; its transfer must never complete.
	ErrPurchaseRefunded = errors.New("purchase refunded")

	// ErrTransferConflict means a concurrent attempt changed the transfer first.
	// Callers should re-read state instead of retrying blindly.
	ErrTransferConflict = errors.New("transfer state changed concurrently")
)

// ReleasePendingError reports that the money release hold has not elapsed,
// with the exact remaining wait.
type ReleasePendingError struct {
	RemainingHours int
}

func (e *ReleasePendingError) Error() string {
	return fmt.Sprintf("funds not yet released: %d hour(s) remaining until transfer", e.RemainingHours)
}

// SettlementService drives producer payouts through
// pending -> completed/cancelled/failed. All transitions are conditional
// updates keyed on the current status, never blind overwrites.
type SettlementService struct {
	db    *gorm.DB
	cache *RedisCache
}

// NewSettlementService creates the settlement service. cache may be nil; the
// Redis lock is an extra guard on top of the conditional update, not a
// correctness requirement.
func NewSettlementService(db *gorm.DB, cache *RedisCache) *SettlementService {
	return &SettlementService{db: db, cache: cache}
}

// CheckTransferEligibilityAt reports why a purchase's funds cannot move at
// the given instant, or nil when every condition holds. The time gate alone
// is necessary but not sufficient: payment and settlement status are part of
// the predicate.
func CheckTransferEligibilityAt(purchase *models.Purchase, now time.Time) error {
	if purchase.PaymentStatus == models.PaymentStatusRefunded {
		return ErrPurchaseRefunded
	}
	if purchase.PaymentStatus != models.PaymentStatusCompleted {
		return ErrPaymentNotCompleted
	}
	if purchase.SettlementStatus != models.SettlementStatusReady {
		return ErrSettlementNotReady
	}
	if !pricing.CanTransferAt(purchase.CreatedAt, now) {
		return &ReleasePendingError{RemainingHours: pricing.RemainingReleaseHoursAt(purchase.CreatedAt, now)}
	}
	return nil
}

// CreateTransfer creates the pending payout record for a purchase. Callers
// treat failure as best-effort: a missing transfer is recoverable by the
// reconciliation task, so checkout never fails on this.
func (s *SettlementService) CreateTransfer(purchase *models.Purchase, producerID uint) (*models.Transfer, error) {
	transfer := models.Transfer{
		PurchaseID:  purchase.ID,
		ProducerID:  producerID,
		EventID:     purchase.EventID,
		Amount:      purchase.BaseAmount,
		Status:      models.TransferStatusPending,
		ScheduledAt: purchase.MoneyReleaseDate,
	}
	if err := s.db.Create(&transfer).Error; err != nil {
		return nil, fmt.Errorf("failed to create transfer for purchase %d: %w", purchase.ID, err)
	}
	return &transfer, nil
}

// CompleteTransfer attempts the pending -> completed transition. The
// purchase is re-read under the lock immediately before committing so a
// refund approved concurrently aborts the attempt instead of racing it.
// Exactly one of any concurrent attempts succeeds; the rest observe
// ErrTransferConflict.
func (s *SettlementService) CompleteTransfer(ctx context.Context, transferID uint) (*models.Transfer, error) {
	var transfer models.Transfer
	if err := s.db.First(&transfer, transferID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transfer %d: %w", transferID, err)
	}

	if transfer.Status != models.TransferStatusPending {
		return nil, ErrTransferNotPending
	}

	if s.cache != nil {
		lockName := fmt.Sprintf("transfer:purchase:%d", transfer.PurchaseID)
		ok, err := s.cache.AcquireLock(ctx, lockName, 30*time.Second)
		if err != nil {
			log.Printf("Transfer lock error for purchase %d: %v", transfer.PurchaseID, err)
		} else if !ok {
			return nil, ErrTransferConflict
		} else {
			defer func() {
				if err := s.cache.ReleaseLock(ctx, lockName); err != nil {
					log.Printf("Transfer lock release error for purchase %d: %v", transfer.PurchaseID, err)
				}
			}()
		}
	}

	// Fresh read: the gate is checked every time, never a cached decision.
	var purchase models.Purchase
	if err := s.db.First(&purchase, transfer.PurchaseID).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch purchase %d: %w", transfer.PurchaseID, err)
	}

	now := time.Now()
	if err := CheckTransferEligibilityAt(&purchase, now); err != nil {
		if errors.Is(err, ErrPurchaseRefunded) {
			// A refunded purchase's payout must never complete; close the
			// transfer out instead of leaving it pending forever.
			if _, cancelErr := s.CancelTransfersForPurchase(ctx, purchase.ID); cancelErr != nil {
				log.Printf("Failed to cancel transfer for refunded purchase %d: %v", purchase.ID, cancelErr)
			}
		}
		return nil, err
	}

	// The purchase state is folded into the conditional update so the
	// commit itself verifies the payment is still completed and the
	// settlement still ready. A refund approved between the read above
	// and this statement makes the update match zero rows.
	res := s.db.Model(&models.Transfer{}).
		Where("id = ? AND status = ?", transfer.ID, models.TransferStatusPending).
		Where("EXISTS (SELECT 1 FROM purchases WHERE purchases.id = transfers.purchase_id AND purchases.payment_status = ? AND purchases.settlement_status = ? AND purchases.deleted_at IS NULL)",
			models.PaymentStatusCompleted, models.SettlementStatusReady).
		Updates(map[string]interface{}{
			"status":         models.TransferStatusCompleted,
			"transferred_at": &now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to complete transfer %d: %w", transfer.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost a race; re-read to report what actually blocked the commit.
		var fresh models.Transfer
		if err := s.db.First(&fresh, transfer.ID).Error; err == nil && fresh.Status != models.TransferStatusPending {
			return nil, ErrTransferConflict
		}
		var freshPurchase models.Purchase
		if err := s.db.First(&freshPurchase, transfer.PurchaseID).Error; err == nil {
			if err := CheckTransferEligibilityAt(&freshPurchase, time.Now()); err != nil {
				if errors.Is(err, ErrPurchaseRefunded) {
					if _, cancelErr := s.CancelTransfersForPurchase(ctx, freshPurchase.ID); cancelErr != nil {
						log.Printf("Failed to cancel transfer for refunded purchase %d: %v", freshPurchase.ID, cancelErr)
					}
				}
				return nil, err
			}
		}
		return nil, ErrTransferConflict
	}

	if err := s.db.Model(&models.Purchase{}).
		Where("id = ? AND settlement_status = ?", purchase.ID, models.SettlementStatusReady).
		Update("settlement_status", models.SettlementStatusTransferred).Error; err != nil {
		log.Printf("Failed to mark purchase %d as transferred: %v", purchase.ID, err)
	}

	transfer.Status = models.TransferStatusCompleted
	transfer.TransferredAt = &now

	log.Printf("Transfer %d completed: purchase %d, producer %d, amount %s",
		transfer.ID, transfer.PurchaseID, transfer.ProducerID, transfer.Amount)

	return &transfer, nil
}

// CancelTransfersForPurchase cancels any in-flight transfer of the purchase.
// Idempotent: transfers already cancelled (or completed) are left untouched
// and no error is returned for them.
func (s *SettlementService) CancelTransfersForPurchase(ctx context.Context, purchaseID uint) (int64, error) {
	res := s.db.Model(&models.Transfer{}).
		Where("purchase_id = ? AND status IN ?", purchaseID,
			[]models.TransferStatus{models.TransferStatusPending, models.TransferStatusFailed}).
		Update("status", models.TransferStatusCancelled)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to cancel transfers for purchase %d: %w", purchaseID, res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("Cancelled %d transfer(s) for purchase %d", res.RowsAffected, purchaseID)
	}
	return res.RowsAffected, nil
}

// FailTransfer marks a pending transfer as failed. Failed transfers are
// terminal for the automatic sweep; only ReopenTransfer brings them back.
func (s *SettlementService) FailTransfer(ctx context.Context, transferID uint) error {
	res := s.db.Model(&models.Transfer{}).
		Where("id = ? AND status = ?", transferID, models.TransferStatusPending).
		Update("status", models.TransferStatusFailed)
	if res.Error != nil {
		return fmt.Errorf("failed to fail transfer %d: %w", transferID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTransferConflict
	}
	return nil
}

// ReopenTransfer is the explicit operator action that puts a failed transfer
// back to pending for a fresh completion attempt.
func (s *SettlementService) ReopenTransfer(ctx context.Context, transferID uint) error {
	res := s.db.Model(&models.Transfer{}).
		Where("id = ? AND status = ?", transferID, models.TransferStatusFailed).
		Update("status", models.TransferStatusPending)
	if res.Error != nil {
		return fmt.Errorf("failed to reopen transfer %d: %w", transferID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTransferNotPending
	}
	return nil
}

// SweepResult summarizes one settlement sweep run
type SweepResult struct {
	Due          int
	Completed    int
	Skipped      int
	Conflicts    int
	CompletedIDs []uint
}

// ProcessDueTransfers runs the completion transition on every pending
// transfer whose schedule has arrived. Ineligible transfers are skipped and
// logged, not failed: their purchase may still become eligible later.
func (s *SettlementService) ProcessDueTransfers(ctx context.Context) (SweepResult, error) {
	var due []models.Transfer
	err := s.db.
		Where("status = ? AND scheduled_at <= ?", models.TransferStatusPending, time.Now()).
		Find(&due).Error
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to fetch due transfers: %w", err)
	}

	result := SweepResult{Due: len(due)}
	for _, transfer := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		_, err := s.CompleteTransfer(ctx, transfer.ID)
		switch {
		case err == nil:
			result.Completed++
			result.CompletedIDs = append(result.CompletedIDs, transfer.ID)
		case errors.Is(err, ErrTransferConflict), errors.Is(err, ErrTransferNotPending):
			result.Conflicts++
		default:
			result.Skipped++
			log.Printf("Transfer %d skipped: %v", transfer.ID, err)
		}
	}
	return result, nil
}

// ReconcileMissingTransfers backfills the pending transfer record for
// completed purchases that have none, picking up checkouts where the
// best-effort creation failed.
func (s *SettlementService) ReconcileMissingTransfers(ctx context.Context) (int, error) {
	var orphans []models.Purchase
	err := s.db.
		Joins("LEFT JOIN transfers ON transfers.purchase_id = purchases.id AND transfers.deleted_at IS NULL").
		Where("purchases.payment_status = ? AND transfers.id IS NULL", models.PaymentStatusCompleted).
		Preload("Event").
		Find(&orphans).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find purchases without transfers: %w", err)
	}

	created := 0
	for i := range orphans {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}

		purchase := &orphans[i]
		if _, err := s.CreateTransfer(purchase, purchase.Event.ProducerID); err != nil {
			log.Printf("Reconciliation failed for purchase %d: %v", purchase.ID, err)
			continue
		}
		created++
		log.Printf("Backfilled transfer for purchase %d", purchase.ID)
	}
	return created, nil
}
