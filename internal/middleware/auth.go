package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fininsight/fininsight/internal/models"
	"github.com/fininsight/fininsight/internal/service"
	"github.com/fininsight/fininsight/pkg/cookies"
)

const CtxUser = "user"

// RequireSession turns the refresh cookie into a resolved identity on the
// request context, or rejects with a generic 401. The two failure messages
// mirror the collaborator contract and leak nothing about why the token
// failed.
func RequireSession(svc *service.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(cookies.RefreshCookieName)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "no token provided")
			}

			user, err := svc.Authenticate(c.Request().Context(), cookie.Value)
			if err != nil {
				// only a rejected session is the caller's fault; a store
				// failure is ours and must not masquerade as a 401
				if errors.Is(err, service.ErrInvalidSession) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
			}

			c.Set(CtxUser, user)
			return next(c)
		}
	}
}

// UserFromContext returns the identity attached by RequireSession.
func UserFromContext(c echo.Context) (*models.User, bool) {
	user, ok := c.Get(CtxUser).(*models.User)
	return user, ok
}
