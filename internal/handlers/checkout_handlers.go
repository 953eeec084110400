package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"ticketera/internal/middleware"
	"ticketera/internal/models"
	"ticketera/internal/services"
)

type CheckoutHandler struct {
	db             *gorm.DB
	paymentService *services.PaymentService
}

func NewCheckoutHandler(db *gorm.DB, paymentService *services.PaymentService) *CheckoutHandler {
	return &CheckoutHandler{db: db, paymentService: paymentService}
}

type checkoutRequest struct {
	EventUUID string                  `json:"event_uuid"`
	Items     []services.CheckoutItem `json:"items"`
	ForceNew  bool                    `json:"force_new"`
}

// StartCheckout creates the purchase with its financial breakdown and opens
// the provider checkout session
func (h *CheckoutHandler) StartCheckout(c echo.Context) error {
	buyer := middleware.CurrentUser(c)

	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	var event models.Event
	if err := h.db.Where("uuid = ? AND is_published = ?", req.EventUUID, true).First(&event).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Event not found")
	}

	purchase, err := h.paymentService.CreatePurchase(c.Request().Context(), buyer, &event, req.Items)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientStock) {
			return echo.NewHTTPError(http.StatusConflict, "Not enough tickets in stock")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to create purchase: "+err.Error())
	}

	baseURL := os.Getenv("PUBLIC_BASE_URL")
	result, err := h.paymentService.InitiateCheckout(c.Request().Context(), purchase, &event, buyer,
		req.ForceNew, baseURL+"/checkout/result", baseURL+"/webhooks/mercadopago")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to start payment: "+err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"purchase":      purchase,
		"preference_id": result.PreferenceID,
		"init_point":    result.InitPoint,
	})
}

// ResumeCheckout reopens (or replaces) the payment session for an unpaid
// purchase
func (h *CheckoutHandler) ResumeCheckout(c echo.Context) error {
	buyer := middleware.CurrentUser(c)

	purchaseID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var purchase models.Purchase
	if err := h.db.Preload("Event").First(&purchase, purchaseID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Purchase not found")
	}
	if purchase.BuyerID != buyer.ID {
		return echo.NewHTTPError(http.StatusForbidden, "You can only pay for your own purchases")
	}

	forceNew := c.QueryParam("force_new") == "true"
	baseURL := os.Getenv("PUBLIC_BASE_URL")

	result, err := h.paymentService.InitiateCheckout(c.Request().Context(), &purchase, &purchase.Event, buyer,
		forceNew, baseURL+"/checkout/result", baseURL+"/webhooks/mercadopago")
	if err != nil {
		if errors.Is(err, services.ErrPaymentAlreadyMade) {
			return echo.NewHTTPError(http.StatusConflict, "Payment already made")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to resume payment: "+err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"preference_id": result.PreferenceID,
		"init_point":    result.InitPoint,
		"is_existing":   result.IsExisting,
	})
}

// GetPurchase returns one of the caller's purchases with its tickets
func (h *CheckoutHandler) GetPurchase(c echo.Context) error {
	buyer := middleware.CurrentUser(c)

	purchaseID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var purchase models.Purchase
	if err := h.db.Preload("Event").Preload("Tickets").First(&purchase, purchaseID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Purchase not found")
	}
	if purchase.BuyerID != buyer.ID && buyer.UserType != models.UserTypeAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "This purchase does not belong to you")
	}

	return c.JSON(http.StatusOK, purchase)
}

// ListPurchases returns the caller's purchase history
func (h *CheckoutHandler) ListPurchases(c echo.Context) error {
	buyer := middleware.CurrentUser(c)
	page, pageSize := pageParams(c)

	var purchases []models.Purchase
	if err := h.db.Preload("Event").
		Where("buyer_id = ?", buyer.ID).
		Order("created_at desc").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&purchases).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch purchases")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"purchases": purchases,
		"page":      page,
	})
}

// MercadoPagoWebhook receives provider notifications. The raw payload is
// stored first, then the referenced payment is re-fetched and processed; the
// payload contents are never trusted for payment status.
func (h *CheckoutHandler) MercadoPagoWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable payload")
	}

	var notification struct {
		Type string `json:"type"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	// Older notification formats put the id in the query string
	paymentIDStr := c.QueryParam("data.id")
	if paymentIDStr == "" {
		paymentIDStr = c.QueryParam("id")
	}
	if err := json.Unmarshal(body, &notification); err == nil && notification.Data.ID != "" {
		paymentIDStr = notification.Data.ID
	}

	history := models.PaymentCallbackHistory{
		PaymentGateway: models.PaymentGatewayMercadoPago,
		PaymentID:      paymentIDStr,
		Metadata:       body,
	}
	if err := h.db.Create(&history).Error; err != nil {
		log.Printf("Failed to store webhook payload: %v", err)
	}

	if notification.Type != "" && notification.Type != "payment" {
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}
	if paymentIDStr == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing payment id")
	}

	paymentID, err := strconv.Atoi(paymentIDStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid payment id")
	}

	if err := h.paymentService.HandlePaymentNotification(c.Request().Context(), paymentID); err != nil {
		log.Printf("Webhook processing failed for payment %d: %v", paymentID, err)
		// Non-2xx makes the provider retry the notification later
		return echo.NewHTTPError(http.StatusInternalServerError, "Notification processing failed")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
