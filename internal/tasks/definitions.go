package tasks

// DefineTasks registers all available tasks
func DefineTasks() {
	// Settlement tasks
	RegisterHandler(ProcessDueTransfersTask.TaskID(), ProcessDueTransfersTask.HandleExecution)
	RegisterHandler(ReconcileTransfersTask.TaskID(), ReconcileTransfersTask.HandleExecution)

	// Notification tasks
	RegisterHandler(SendNotificationTask.TaskID(), SendNotificationTask.HandleExecution)
}
