package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ticketera/internal/models"
	"ticketera/internal/services"
)

// Notification kinds
const (
	NotificationTransferCompleted = "transfer_completed"
	NotificationRefundProcessed   = "refund_processed"
)

// SendNotificationArgs defines the arguments for a notification task
type SendNotificationArgs struct {
	Kind         string          `json:"kind"`
	UserID       uint            `json:"user_id"`
	EventName    string          `json:"event_name"`
	Amount       decimal.Decimal `json:"amount"`
	Approved     bool            `json:"approved"`
	AttemptCount int             `json:"attempt_count"`
}

// SendNotificationTaskDef delivers transactional emails for settlement and
// refund outcomes
type SendNotificationTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *SendNotificationTaskDef) TaskID() string {
	return "send_notification"
}

// CreateTask builds a one-time ScheduledTask record for this task
func (t *SendNotificationTaskDef) CreateTask(args SendNotificationArgs) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), args, time.Now(), nil, models.ScheduledTaskTypeOneTime, 3)
}

// Enqueue persists a one-time notification task. Failures are logged and
// swallowed so a broken task queue never blocks the triggering operation.
func (t *SendNotificationTaskDef) Enqueue(db *gorm.DB, args SendNotificationArgs) {
	task, err := t.CreateTask(args)
	if err != nil {
		log.Printf("Failed to build notification task: %v", err)
		return
	}
	if err := db.Create(task).Error; err != nil {
		log.Printf("Failed to enqueue notification task: %v", err)
	}
}

// HandleExecution sends the notification email, honoring the recipient's
// opt-out flag
func (t *SendNotificationTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	var args SendNotificationArgs
	if err := decodeArgs(task, &args); err != nil {
		return nil, err
	}

	var user models.User
	if err := db.First(&user, args.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]interface{}{"status": "skipped", "message": "recipient not found"}, nil
		}
		return nil, fmt.Errorf("failed to fetch recipient: %w", err)
	}

	if !user.NotifyByEmail {
		log.Printf("Notifications disabled for %s, skipping", user.Email)
		return map[string]interface{}{"status": "skipped", "message": "notifications disabled"}, nil
	}

	emailService := services.NewEmailService()

	var sendErr error
	switch args.Kind {
	case NotificationTransferCompleted:
		sendErr = emailService.SendTransferCompleted(user.Email, args.EventName, args.Amount)
	case NotificationRefundProcessed:
		sendErr = emailService.SendRefundProcessed(user.Email, args.EventName, args.Amount, args.Approved)
	default:
		return nil, fmt.Errorf("unknown notification kind %q", args.Kind)
	}

	if sendErr != nil {
		if args.AttemptCount+1 < task.MaxAttempt {
			log.Printf("Failed to email %s, rescheduling: %v", user.Email, sendErr)

			retryArgs := args
			retryArgs.AttemptCount++

			retryTask, err := BuildScheduledTask(t.TaskID(), retryArgs, time.Now().Add(5*time.Minute), nil, models.ScheduledTaskTypeOneTime, task.MaxAttempt)
			if err == nil {
				db.Create(retryTask)
			} else {
				log.Printf("Failed to create retry task: %v", err)
			}
		}
		return nil, fmt.Errorf("failed to send %s email: %w", args.Kind, sendErr)
	}

	return map[string]interface{}{
		"status":    "success",
		"kind":      args.Kind,
		"recipient": user.Email,
	}, nil
}

// SendNotificationTask is the singleton instance of SendNotificationTaskDef
var SendNotificationTask = &SendNotificationTaskDef{}
