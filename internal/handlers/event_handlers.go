package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"ticketera/internal/middleware"
	"ticketera/internal/models"
	"ticketera/internal/services"
)

type EventHandler struct {
	db    *gorm.DB
	cache *services.RedisCache
}

func NewEventHandler(db *gorm.DB, cache *services.RedisCache) *EventHandler {
	return &EventHandler{db: db, cache: cache}
}

type createEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartDate   time.Time `json:"start_date"`
}

// CreateEvent registers a new event owned by the authenticated producer
func (h *EventHandler) CreateEvent(c echo.Context) error {
	producer := middleware.CurrentUser(c)

	var req createEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.Name == "" || req.StartDate.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "Name and start date are required")
	}
	if req.StartDate.Before(time.Now()) {
		return echo.NewHTTPError(http.StatusBadRequest, "Start date must be in the future")
	}

	event := models.Event{
		UUID:        uuid.New().String(),
		ProducerID:  producer.ID,
		Name:        req.Name,
		Description: req.Description,
		Venue:       req.Venue,
		StartDate:   req.StartDate,
	}
	if err := h.db.Create(&event).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create event")
	}

	return c.JSON(http.StatusCreated, event)
}

type createTicketTypeRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// CreateTicketType adds a price tier to an event owned by the caller
func (h *EventHandler) CreateTicketType(c echo.Context) error {
	producer := middleware.CurrentUser(c)

	var event models.Event
	if err := h.db.Where("uuid = ?", c.Param("uuid")).First(&event).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Event not found")
	}
	if event.ProducerID != producer.ID && producer.UserType != models.UserTypeAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "You can only manage your own events")
	}

	var req createTicketTypeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.Name == "" || req.Price.IsNegative() || req.Stock < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Name, non-negative price and stock are required")
	}

	tt := models.TicketType{
		EventID: event.ID,
		Name:    req.Name,
		Price:   req.Price.Round(2),
		Stock:   req.Stock,
	}
	if err := h.db.Create(&tt).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create ticket type")
	}

	return c.JSON(http.StatusCreated, tt)
}

// PublishEvent makes an event visible in the public listing
func (h *EventHandler) PublishEvent(c echo.Context) error {
	producer := middleware.CurrentUser(c)

	var event models.Event
	if err := h.db.Where("uuid = ?", c.Param("uuid")).First(&event).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Event not found")
	}
	if event.ProducerID != producer.ID && producer.UserType != models.UserTypeAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "You can only manage your own events")
	}

	if err := h.db.Model(&event).Update("is_published", true).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to publish event")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "published"})
}

// ListEvents returns the public catalog of upcoming published events,
// cached briefly since it is the hottest read.
func (h *EventHandler) ListEvents(c echo.Context) error {
	page, pageSize := pageParams(c)

	fetch := func() ([]models.Event, error) {
		var events []models.Event
		err := h.db.Preload("TicketTypes").
			Where("is_published = ? AND start_date > ?", true, time.Now()).
			Order("start_date asc").
			Limit(pageSize).Offset((page - 1) * pageSize).
			Find(&events).Error
		return events, err
	}

	var events []models.Event
	var err error
	if h.cache != nil {
		key := fmt.Sprintf("events:upcoming:%d:%d", page, pageSize)
		events, err = services.GetOrSet(h.cache, c.Request().Context(), key, 60*time.Second, fetch)
	} else {
		events, err = fetch()
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch events")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": events,
		"page":   page,
	})
}

// GetEvent returns one published event by its public UUID
func (h *EventHandler) GetEvent(c echo.Context) error {
	eventUUID := c.Param("uuid")

	var event models.Event
	if err := h.db.Preload("TicketTypes").Where("uuid = ? AND is_published = ?", eventUUID, true).First(&event).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Event not found")
	}

	return c.JSON(http.StatusOK, event)
}
