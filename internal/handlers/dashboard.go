package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ticketera/internal/middleware"
	"ticketera/internal/models"
	"ticketera/internal/services"
)

type DashboardHandler struct {
	db    *gorm.DB
	cache *services.RedisCache
}

func NewDashboardHandler(db *gorm.DB, cache *services.RedisCache) *DashboardHandler {
	return &DashboardHandler{db: db, cache: cache}
}

// ProducerSummary aggregates a producer's sales and settlement position
type ProducerSummary struct {
	GrossSales      decimal.Decimal `json:"gross_sales"`
	BaseSales       decimal.Decimal `json:"base_sales"`
	CommissionPaid  decimal.Decimal `json:"commission_paid"`
	PurchaseCount   int64           `json:"purchase_count"`
	PendingPayout   decimal.Decimal `json:"pending_payout"`
	ReleasedPayout  decimal.Decimal `json:"released_payout"`
	PendingCount    int64           `json:"pending_count"`
	CompletedCount  int64           `json:"completed_count"`
	NextReleaseDate *time.Time      `json:"next_release_date,omitempty"`
}

// Summary returns the producer dashboard figures, cached briefly
func (h *DashboardHandler) Summary(c echo.Context) error {
	producer := middleware.CurrentUser(c)

	fetch := func() (ProducerSummary, error) {
		return h.buildSummary(producer.ID)
	}

	var summary ProducerSummary
	var err error
	if h.cache != nil {
		key := fmt.Sprintf("dashboard:producer:%d", producer.ID)
		summary, err = services.GetOrSet(h.cache, c.Request().Context(), key, 60*time.Second, fetch)
	} else {
		summary, err = fetch()
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to build dashboard summary")
	}

	return c.JSON(http.StatusOK, summary)
}

func (h *DashboardHandler) buildSummary(producerID uint) (ProducerSummary, error) {
	var summary ProducerSummary

	var sales struct {
		Gross      decimal.Decimal
		Base       decimal.Decimal
		Commission decimal.Decimal
		Count      int64
	}
	err := h.db.Model(&models.Purchase{}).
		Select("COALESCE(SUM(purchases.total_amount), 0) as gross, COALESCE(SUM(purchases.base_amount), 0) as base, COALESCE(SUM(purchases.commission_amount), 0) as commission, COUNT(*) as count").
		Joins("JOIN events ON events.id = purchases.event_id").
		Where("events.producer_id = ? AND purchases.payment_status = ?", producerID, models.PaymentStatusCompleted).
		Scan(&sales).Error
	if err != nil {
		return summary, err
	}
	summary.GrossSales = sales.Gross
	summary.BaseSales = sales.Base
	summary.CommissionPaid = sales.Commission
	summary.PurchaseCount = sales.Count

	var pending struct {
		Amount decimal.Decimal
		Count  int64
	}
	err = h.db.Model(&models.Transfer{}).
		Select("COALESCE(SUM(amount), 0) as amount, COUNT(*) as count").
		Where("producer_id = ? AND status = ?", producerID, models.TransferStatusPending).
		Scan(&pending).Error
	if err != nil {
		return summary, err
	}
	summary.PendingPayout = pending.Amount
	summary.PendingCount = pending.Count

	var released struct {
		Amount decimal.Decimal
		Count  int64
	}
	err = h.db.Model(&models.Transfer{}).
		Select("COALESCE(SUM(amount), 0) as amount, COUNT(*) as count").
		Where("producer_id = ? AND status = ?", producerID, models.TransferStatusCompleted).
		Scan(&released).Error
	if err != nil {
		return summary, err
	}
	summary.ReleasedPayout = released.Amount
	summary.CompletedCount = released.Count

	var next models.Transfer
	err = h.db.Where("producer_id = ? AND status = ?", producerID, models.TransferStatusPending).
		Order("scheduled_at asc").First(&next).Error
	if err == nil {
		summary.NextReleaseDate = &next.ScheduledAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return summary, err
	}

	return summary, nil
}
