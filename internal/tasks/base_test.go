package tasks

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ticketera/internal/models"
)

func TestBuildScheduledTask(t *testing.T) {
	due := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	args := SendNotificationArgs{
		Kind:      NotificationTransferCompleted,
		UserID:    42,
		EventName: "Festival de Invierno",
		Amount:    decimal.RequireFromString("1000.00"),
	}

	task, err := BuildScheduledTask("send_notification", args, due, nil, models.ScheduledTaskTypeOneTime, 3)
	if err != nil {
		t.Fatalf("BuildScheduledTask error: %v", err)
	}

	if task.TaskName != "send_notification" {
		t.Errorf("task name = %q; want send_notification", task.TaskName)
	}
	if task.Status != models.ScheduledTaskStatusActive {
		t.Errorf("status = %q; want active", task.Status)
	}
	if !task.Due.Equal(due) {
		t.Errorf("due = %v; want %v", task.Due, due)
	}
	if task.Arguments["kind"] != NotificationTransferCompleted {
		t.Errorf("arguments kind = %v; want %s", task.Arguments["kind"], NotificationTransferCompleted)
	}
}

// Args built by BuildScheduledTask must decode back into the typed struct
// unchanged, since that is exactly what HandleExecution does.
func TestDecodeArgsRoundTrip(t *testing.T) {
	args := SendNotificationArgs{
		Kind:         NotificationRefundProcessed,
		UserID:       7,
		EventName:    "Teatro Colón",
		Amount:       decimal.RequireFromString("383.33"),
		Approved:     true,
		AttemptCount: 1,
	}

	task, err := BuildScheduledTask("send_notification", args, time.Now(), nil, models.ScheduledTaskTypeOneTime, 3)
	if err != nil {
		t.Fatalf("BuildScheduledTask error: %v", err)
	}

	var decoded SendNotificationArgs
	if err := decodeArgs(*task, &decoded); err != nil {
		t.Fatalf("decodeArgs error: %v", err)
	}

	if decoded.Kind != args.Kind || decoded.UserID != args.UserID ||
		decoded.EventName != args.EventName || decoded.Approved != args.Approved ||
		decoded.AttemptCount != args.AttemptCount {
		t.Errorf("decoded = %+v; want %+v", decoded, args)
	}
	if !decoded.Amount.Equal(args.Amount) {
		t.Errorf("decoded amount = %s; want %s", decoded.Amount, args.Amount)
	}
}

func TestRegistryLookup(t *testing.T) {
	DefineTasks()

	names := []string{"process_due_transfers", "reconcile_missing_transfers", "send_notification"}
	for _, name := range names {
		if _, ok := GetHandler(name); !ok {
			t.Errorf("handler %q not registered", name)
		}
	}

	if _, ok := GetHandler("no_such_task"); ok {
		t.Error("unknown task name should not resolve to a handler")
	}
}
