package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ticketera/internal/models"
	"ticketera/internal/pricing"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ticketera.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// seedPaidPurchase creates a completed, ready-to-settle purchase of
// base 1000 / total 1150 with its pending transfer, backdated by age so
// time-gate behavior can be controlled per test. The provider payment id
// is always "123456".
func seedPaidPurchase(t *testing.T, db *gorm.DB, age time.Duration) (*models.Purchase, *models.Transfer) {
	t.Helper()

	producer := models.User{
		FirebaseUID: "fb-" + uuid.New().String(),
		Name:        "Producer",
		Email:       uuid.New().String() + "@example.com",
		UserType:    models.UserTypeProducer,
	}
	if err := db.Create(&producer).Error; err != nil {
		t.Fatalf("failed to create producer: %v", err)
	}

	event := models.Event{
		UUID:        uuid.New().String(),
		ProducerID:  producer.ID,
		Name:        "Festival de Prueba",
		StartDate:   time.Now().Add(30 * 24 * time.Hour),
		IsPublished: true,
	}
	if err := db.Create(&event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	createdAt := time.Now().Add(-age)
	paymentID := "123456"
	purchase := models.Purchase{
		CreatedAt:        createdAt,
		UUID:             uuid.New().String(),
		EventID:          event.ID,
		BuyerID:          producer.ID,
		TotalAmount:      decimal.NewFromInt(1150),
		BaseAmount:       decimal.NewFromInt(1000),
		CommissionAmount: decimal.NewFromInt(150),
		MoneyReleaseDate: createdAt.Add(pricing.MoneyReleaseDelay),
		PaymentStatus:    models.PaymentStatusCompleted,
		SettlementStatus: models.SettlementStatusReady,
		PaymentID:        &paymentID,
	}
	if err := db.Create(&purchase).Error; err != nil {
		t.Fatalf("failed to create purchase: %v", err)
	}

	transfer, err := NewSettlementService(db, nil).CreateTransfer(&purchase, producer.ID)
	if err != nil {
		t.Fatalf("failed to create transfer: %v", err)
	}
	return &purchase, transfer
}

func TestCompleteTransferExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	svc := NewSettlementService(db, nil)
	purchase, transfer := seedPaidPurchase(t, db, pricing.MoneyReleaseDelay+time.Hour)

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CompleteTransfer(context.Background(), transfer.ID); err == nil {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if completed != 1 {
		t.Fatalf("expected exactly 1 successful completion out of %d attempts, got %d", attempts, completed)
	}

	var final models.Transfer
	if err := db.First(&final, transfer.ID).Error; err != nil {
		t.Fatalf("failed to reload transfer: %v", err)
	}
	if final.Status != models.TransferStatusCompleted {
		t.Errorf("expected transfer status %q, got %q", models.TransferStatusCompleted, final.Status)
	}
	if final.TransferredAt == nil {
		t.Error("expected transferred_at to be set")
	}

	var reloaded models.Purchase
	if err := db.First(&reloaded, purchase.ID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if reloaded.SettlementStatus != models.SettlementStatusTransferred {
		t.Errorf("expected settlement status %q, got %q", models.SettlementStatusTransferred, reloaded.SettlementStatus)
	}
}

func TestCompleteTransferSecondAttemptRejected(t *testing.T) {
	db := openTestDB(t)
	svc := NewSettlementService(db, nil)
	_, transfer := seedPaidPurchase(t, db, pricing.MoneyReleaseDelay+time.Hour)

	if _, err := svc.CompleteTransfer(context.Background(), transfer.ID); err != nil {
		t.Fatalf("first completion failed: %v", err)
	}
	_, err := svc.CompleteTransfer(context.Background(), transfer.ID)
	if !errors.Is(err, ErrTransferNotPending) {
		t.Errorf("expected ErrTransferNotPending on second attempt, got %v", err)
	}
}

func TestCompleteTransferRefundedPurchaseCancels(t *testing.T) {
	db := openTestDB(t)
	svc := NewSettlementService(db, nil)
	purchase, transfer := seedPaidPurchase(t, db, pricing.MoneyReleaseDelay+time.Hour)

	if err := db.Model(&models.Purchase{}).
		Where("id = ?", purchase.ID).
		Update("payment_status", models.PaymentStatusRefunded).Error; err != nil {
		t.Fatalf("failed to mark purchase refunded: %v", err)
	}

	_, err := svc.CompleteTransfer(context.Background(), transfer.ID)
	if !errors.Is(err, ErrPurchaseRefunded) {
		t.Fatalf("expected ErrPurchaseRefunded, got %v", err)
	}

	var final models.Transfer
	if err := db.First(&final, transfer.ID).Error; err != nil {
		t.Fatalf("failed to reload transfer: %v", err)
	}
	if final.Status != models.TransferStatusCancelled {
		t.Errorf("expected transfer status %q, got %q", models.TransferStatusCancelled, final.Status)
	}
}

// The refund can land between the eligibility read and the conditional
// update. A callback flips the purchase to refunded right before the
// transfer row is written, so the commit must match zero rows and the
// transfer must end up cancelled, never completed.
func TestCompleteTransferAbortsWhenRefundLandsMidFlight(t *testing.T) {
	db := openTestDB(t)
	svc := NewSettlementService(db, nil)
	purchase, transfer := seedPaidPurchase(t, db, pricing.MoneyReleaseDelay+time.Hour)

	flipped := false
	err := db.Callback().Update().Before("gorm:update").Register("refund_mid_flight", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Model.(*models.Transfer); !ok || flipped {
			return
		}
		flipped = true
		if err := db.Session(&gorm.Session{NewDB: true}).Model(&models.Purchase{}).
			Where("id = ?", purchase.ID).
			Update("payment_status", models.PaymentStatusRefunded).Error; err != nil {
			t.Errorf("failed to flip purchase mid-flight: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	_, completeErr := svc.CompleteTransfer(context.Background(), transfer.ID)
	if completeErr == nil {
		t.Fatal("expected completion to abort after concurrent refund, got success")
	}
	if !errors.Is(completeErr, ErrPurchaseRefunded) {
		t.Errorf("expected ErrPurchaseRefunded, got %v", completeErr)
	}

	var final models.Transfer
	if err := db.First(&final, transfer.ID).Error; err != nil {
		t.Fatalf("failed to reload transfer: %v", err)
	}
	if final.Status == models.TransferStatusCompleted {
		t.Error("refunded purchase must never end with a completed transfer")
	}
	if final.Status != models.TransferStatusCancelled {
		t.Errorf("expected transfer status %q, got %q", models.TransferStatusCancelled, final.Status)
	}

	var reloaded models.Purchase
	if err := db.First(&reloaded, purchase.ID).Error; err != nil {
		t.Fatalf("failed to reload purchase: %v", err)
	}
	if reloaded.SettlementStatus == models.SettlementStatusTransferred {
		t.Error("refunded purchase must never be marked transferred")
	}
}
