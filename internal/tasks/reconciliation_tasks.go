package tasks

import (
	"context"
	"log"

	"gorm.io/gorm"

	"ticketera/internal/models"
	"ticketera/internal/services"
)

// ReconcileTransfersTaskDef backfills transfers for completed purchases that
// ended up without one, usually because transfer creation failed at checkout.
type ReconcileTransfersTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *ReconcileTransfersTaskDef) TaskID() string {
	return "reconcile_missing_transfers"
}

// HandleExecution creates transfers for paid purchases missing one
func (t *ReconcileTransfersTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	settlement := services.NewSettlementService(db, workerRedisCache())

	created, err := settlement.ReconcileMissingTransfers(ctx)
	if err != nil {
		return nil, err
	}

	if created > 0 {
		log.Printf("Reconciliation created %d missing transfers", created)
	}

	return map[string]interface{}{
		"status":  "success",
		"created": created,
	}, nil
}

// ReconcileTransfersTask is the singleton instance of ReconcileTransfersTaskDef
var ReconcileTransfersTask = &ReconcileTransfersTaskDef{}
