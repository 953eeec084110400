package handlers

import (
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"ticketera/internal/middleware"
	"ticketera/internal/models"
)

type UserHandler struct {
	db         *gorm.DB
	authClient *auth.Client
}

func NewUserHandler(db *gorm.DB, authClient *auth.Client) *UserHandler {
	return &UserHandler{db: db, authClient: authClient}
}

type registerPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Register creates the local account for a Firebase credential. The route is
// outside RequireAuth because the local record does not exist yet; the
// bearer token is verified here instead. Calling it twice returns the
// existing account.
func (h *UserHandler) Register(c echo.Context) error {
	if h.authClient == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Authentication is not configured")
	}

	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return echo.NewHTTPError(http.StatusUnauthorized, "Missing credentials")
	}
	decoded, err := h.authClient.VerifyIDToken(c.Request().Context(), strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	}

	var existing models.User
	err = h.db.Where("firebase_uid = ?", decoded.UID).First(&existing).Error
	if err == nil {
		return c.JSON(http.StatusOK, existing)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to look up account")
	}

	var req registerPayload
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	email, _ := decoded.Claims["email"].(string)
	user := models.User{
		FirebaseUID:   decoded.UID,
		Name:          req.Name,
		Phone:         req.Phone,
		Email:         email,
		UserType:      models.UserTypeCustomer,
		NotifyByEmail: true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create account")
	}

	return c.JSON(http.StatusCreated, user)
}

// Me returns the authenticated user's own record
func (h *UserHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, middleware.CurrentUser(c))
}

type updateMePayload struct {
	Name          *string `json:"name"`
	Phone         *string `json:"phone"`
	NotifyByEmail *bool   `json:"notify_by_email"`
}

// UpdateMe changes the caller's profile fields and notification opt-out
func (h *UserHandler) UpdateMe(c echo.Context) error {
	user := middleware.CurrentUser(c)

	var req updateMePayload
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.NotifyByEmail != nil {
		updates["notify_by_email"] = *req.NotifyByEmail
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusOK, user)
	}

	if err := h.db.Model(user).Updates(updates).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update account")
	}

	return c.JSON(http.StatusOK, user)
}

type setUserTypePayload struct {
	UserType models.UserType `json:"user_type"`
}

// SetUserType changes a user's role (admin only); granting producer access
// is an explicit operator action
func (h *UserHandler) SetUserType(c echo.Context) error {
	userID, err := uintParam(c, "id")
	if err != nil {
		return err
	}

	var req setUserTypePayload
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	switch req.UserType {
	case models.UserTypeAdmin, models.UserTypeProducer, models.UserTypeCustomer:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "Unknown user type")
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	}

	if err := h.db.Model(&user).Update("user_type", req.UserType).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update user")
	}

	return c.JSON(http.StatusOK, user)
}
