package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"ticketera/internal/middleware"
	"ticketera/internal/models"
	"ticketera/internal/pricing"
	"ticketera/internal/services"
	"ticketera/internal/tasks"
)

type RefundHandler struct {
	db            *gorm.DB
	refundService *services.RefundService
}

func NewRefundHandler(db *gorm.DB, refundService *services.RefundService) *RefundHandler {
	return &RefundHandler{db: db, refundService: refundService}
}

type refundRequestPayload struct {
	TicketID *uint                `json:"ticket_id,omitempty"`
	Reason   pricing.RefundReason `json:"reason"`
	Detail   string               `json:"detail"`
}

// RequestRefund files a refund claim for one of the caller's purchases
func (h *RefundHandler) RequestRefund(c echo.Context) error {
	buyer := middleware.CurrentUser(c)

	purchaseID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var req refundRequestPayload
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.Reason == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Reason is required")
	}

	request, err := h.refundService.RequestRefund(c.Request().Context(), buyer.ID, purchaseID, req.TicketID, req.Reason, req.Detail)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRefundAlreadyRequested):
			return echo.NewHTTPError(http.StatusConflict, "A refund request already exists for this purchase")
		case errors.Is(err, services.ErrPurchaseNotRefundable):
			return echo.NewHTTPError(http.StatusBadRequest, "This purchase is not eligible for refund")
		case errors.Is(err, services.ErrTicketNotInPurchase):
			return echo.NewHTTPError(http.StatusBadRequest, "Ticket does not belong to this purchase")
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	return c.JSON(http.StatusCreated, request)
}

// PreviewRefund shows what a claim with the given reason would yield right
// now, without creating anything
func (h *RefundHandler) PreviewRefund(c echo.Context) error {
	buyer := middleware.CurrentUser(c)

	purchaseID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	reason := pricing.RefundReason(c.QueryParam("reason"))
	if reason == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Reason is required")
	}

	var purchase models.Purchase
	if err := h.db.Preload("Event").First(&purchase, purchaseID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Purchase not found")
	}
	if purchase.BuyerID != buyer.ID && buyer.UserType != models.UserTypeAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "This purchase does not belong to you")
	}

	calc := h.refundService.PreviewRefund(&purchase, &purchase.Event, reason)
	return c.JSON(http.StatusOK, calc)
}

// ListRefundRequests returns refund requests for admin review
func (h *RefundHandler) ListRefundRequests(c echo.Context) error {
	page, pageSize := pageParams(c)

	query := h.db.Model(&models.RefundRequest{}).
		Preload("Purchase").Preload("Ticket")
	if status := c.QueryParam("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var requests []models.RefundRequest
	if err := query.Order("created_at asc").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&requests).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch refund requests")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"refund_requests": requests,
		"page":            page,
	})
}

type processRefundPayload struct {
	Action string `json:"action"` // approve, reject
}

// ProcessRefund applies an admin decision to a pending refund request
func (h *RefundHandler) ProcessRefund(c echo.Context) error {
	admin := middleware.CurrentUser(c)

	requestID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var req processRefundPayload
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	var request *models.RefundRequest
	switch req.Action {
	case "approve":
		request, err = h.refundService.Approve(c.Request().Context(), requestID, admin.ID)
	case "reject":
		request, err = h.refundService.Reject(c.Request().Context(), requestID, admin.ID)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Action must be approve or reject")
	}

	if err != nil {
		switch {
		case errors.Is(err, services.ErrRefundNotPending):
			return echo.NewHTTPError(http.StatusConflict, "This request has already been processed")
		case errors.Is(err, services.ErrPurchaseNotRefundable):
			return echo.NewHTTPError(http.StatusBadRequest, "The linked purchase is not refundable")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process refund: "+err.Error())
		}
	}

	var purchase models.Purchase
	if h.db.Preload("Event").First(&purchase, request.PurchaseID).Error == nil {
		args := tasks.SendNotificationArgs{
			Kind:      tasks.NotificationRefundProcessed,
			UserID:    purchase.BuyerID,
			EventName: purchase.Event.Name,
			Approved:  req.Action == "approve",
		}
		if request.RefundAmount.Valid {
			args.Amount = request.RefundAmount.Decimal
		}
		tasks.SendNotificationTask.Enqueue(h.db, args)
	}

	return c.JSON(http.StatusOK, request)
}
