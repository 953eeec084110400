package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"ticketera/internal/models"
)

// RequireAuth verifies the Firebase credential (Authorization bearer token or
// session cookie), resolves the local user record and stores both in the
// request context.
func RequireAuth(authClient *auth.Client, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authClient == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "Authentication is not configured")
			}

			token := bearerToken(c)
			var decoded *auth.Token
			var err error

			if token != "" {
				decoded, err = authClient.VerifyIDToken(c.Request().Context(), token)
			} else {
				cookie, cookieErr := c.Cookie("session")
				if cookieErr != nil || cookie.Value == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "Missing credentials")
				}
				decoded, err = authClient.VerifySessionCookie(c.Request().Context(), cookie.Value)
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
			}

			c.Set("userUID", decoded.UID)
			if email, ok := decoded.Claims["email"].(string); ok {
				c.Set("userEmail", email)
			}

			var user models.User
			if err := db.Where("firebase_uid = ?", decoded.UID).First(&user).Error; err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unknown user")
			}
			c.Set("user", &user)

			return next(c)
		}
	}
}

// RequireUserType gates a route group to the given roles. Admins pass every
// gate.
func RequireUserType(types ...models.UserType) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := c.Get("user").(*models.User)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing credentials")
			}
			if user.UserType == models.UserTypeAdmin {
				return next(c)
			}
			for _, t := range types {
				if user.UserType == t {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
		}
	}
}

// CurrentUser returns the authenticated user stored by RequireAuth
func CurrentUser(c echo.Context) *models.User {
	user, _ := c.Get("user").(*models.User)
	return user
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
