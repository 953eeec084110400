package tasks

import (
	"context"
	"log"
	"os"
	"sync"

	"gorm.io/gorm"

	"ticketera/internal/models"
	"ticketera/internal/services"
)

var (
	workerCacheOnce sync.Once
	workerCache     *services.RedisCache
)

// workerRedisCache lazily connects to Redis for task execution. The sweep
// works without it, so a missing or unreachable Redis only costs the
// cross-process locking.
func workerRedisCache() *services.RedisCache {
	workerCacheOnce.Do(func() {
		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			return
		}
		cache, err := services.NewRedisCache(redisURL)
		if err != nil {
			log.Printf("Redis unavailable for worker, continuing without locks: %v", err)
			return
		}
		workerCache = cache
	})
	return workerCache
}

// ProcessDueTransfersTaskDef runs the settlement sweep: it completes every
// pending transfer whose money release date has passed.
type ProcessDueTransfersTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *ProcessDueTransfersTaskDef) TaskID() string {
	return "process_due_transfers"
}

// HandleExecution completes all due pending transfers
func (t *ProcessDueTransfersTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	settlement := services.NewSettlementService(db, workerRedisCache())

	result, err := settlement.ProcessDueTransfers(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("Settlement sweep: %d due, %d completed, %d skipped, %d conflicts",
		result.Due, result.Completed, result.Skipped, result.Conflicts)

	for _, id := range result.CompletedIDs {
		var transfer models.Transfer
		if err := db.Preload("Producer").Preload("Purchase.Event").First(&transfer, id).Error; err != nil {
			log.Printf("Could not load completed transfer %d for notification: %v", id, err)
			continue
		}
		SendNotificationTask.Enqueue(db, SendNotificationArgs{
			Kind:      NotificationTransferCompleted,
			UserID:    transfer.ProducerID,
			EventName: transfer.Purchase.Event.Name,
			Amount:    transfer.Amount,
		})
	}

	return map[string]interface{}{
		"status":    "success",
		"due":       result.Due,
		"completed": result.Completed,
		"skipped":   result.Skipped,
		"conflicts": result.Conflicts,
	}, nil
}

// ProcessDueTransfersTask is the singleton instance of ProcessDueTransfersTaskDef
var ProcessDueTransfersTask = &ProcessDueTransfersTaskDef{}
