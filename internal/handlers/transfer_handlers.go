package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"ticketera/internal/middleware"
	"ticketera/internal/models"
	"ticketera/internal/services"
	"ticketera/internal/tasks"
)

type TransferHandler struct {
	db         *gorm.DB
	settlement *services.SettlementService
}

func NewTransferHandler(db *gorm.DB, settlement *services.SettlementService) *TransferHandler {
	return &TransferHandler{db: db, settlement: settlement}
}

// ListTransfers returns the caller's payouts (producers see their own,
// admins see everything)
func (h *TransferHandler) ListTransfers(c echo.Context) error {
	user := middleware.CurrentUser(c)
	page, pageSize := pageParams(c)

	query := h.db.Model(&models.Transfer{}).Preload("Purchase")
	if user.UserType != models.UserTypeAdmin {
		query = query.Where("producer_id = ?", user.ID)
	}
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var transfers []models.Transfer
	if err := query.Order("scheduled_at asc").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&transfers).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch transfers")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"transfers": transfers,
		"page":      page,
	})
}

// CompleteTransfer runs the completion transition on one transfer. The
// response spells out which precondition blocks it, including the exact
// remaining hours when the money release hold has not elapsed.
func (h *TransferHandler) CompleteTransfer(c echo.Context) error {
	transferID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	transfer, err := h.settlement.CompleteTransfer(c.Request().Context(), transferID)
	if err != nil {
		var pendingErr *services.ReleasePendingError
		switch {
		case errors.As(err, &pendingErr):
			return echo.NewHTTPError(http.StatusConflict, pendingErr.Error())
		case errors.Is(err, services.ErrPurchaseRefunded):
			return echo.NewHTTPError(http.StatusConflict, "Purchase refunded")
		case errors.Is(err, services.ErrPaymentNotCompleted):
			return echo.NewHTTPError(http.StatusConflict, "Purchase payment is not completed")
		case errors.Is(err, services.ErrSettlementNotReady):
			return echo.NewHTTPError(http.StatusConflict, "Purchase settlement is not ready")
		case errors.Is(err, services.ErrTransferNotPending), errors.Is(err, services.ErrTransferConflict):
			return echo.NewHTTPError(http.StatusConflict, "Transfer state changed, re-read and retry if still applicable")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to complete transfer: "+err.Error())
		}
	}

	eventName := transfer.Purchase.Event.Name
	if eventName == "" {
		var event models.Event
		if h.db.First(&event, transfer.EventID).Error == nil {
			eventName = event.Name
		}
	}
	tasks.SendNotificationTask.Enqueue(h.db, tasks.SendNotificationArgs{
		Kind:      tasks.NotificationTransferCompleted,
		UserID:    transfer.ProducerID,
		EventName: eventName,
		Amount:    transfer.Amount,
	})

	return c.JSON(http.StatusOK, transfer)
}

// ReopenTransfer puts a failed transfer back to pending (explicit operator
// action; the sweep never retries failed transfers on its own)
func (h *TransferHandler) ReopenTransfer(c echo.Context) error {
	transferID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.settlement.ReopenTransfer(c.Request().Context(), transferID); err != nil {
		if errors.Is(err, services.ErrTransferNotPending) {
			return echo.NewHTTPError(http.StatusConflict, "Only failed transfers can be reopened")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to reopen transfer")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "pending"})
}

// FailTransfer marks a pending transfer as failed (operator action for
// payouts that bounced outside the system)
func (h *TransferHandler) FailTransfer(c echo.Context) error {
	transferID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.settlement.FailTransfer(c.Request().Context(), transferID); err != nil {
		if errors.Is(err, services.ErrTransferConflict) {
			return echo.NewHTTPError(http.StatusConflict, "Transfer is no longer pending")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update transfer")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "failed"})
}
