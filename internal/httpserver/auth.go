package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fininsight/fininsight/internal/middleware"
	"github.com/fininsight/fininsight/internal/service"
	"github.com/fininsight/fininsight/internal/transport"
	"github.com/fininsight/fininsight/pkg/cookies"
	"github.com/fininsight/fininsight/pkg/logging"
)

type AuthHTTP struct {
	Svc *service.SessionService
}

func (h *AuthHTTP) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req transport.SignupRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return sessionError(err)
	}

	c.SetCookie(cookies.Refresh(res.RefreshToken, res.RefreshExp))
	return c.JSON(http.StatusCreated, transport.AuthResponse{
		AccessToken: res.AccessToken,
		User:        res.User,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return sessionError(err)
	}

	c.SetCookie(cookies.Refresh(res.RefreshToken, res.RefreshExp))
	return c.JSON(http.StatusOK, transport.AuthResponse{
		AccessToken: res.AccessToken,
		User:        res.User,
	})
}

// Verify runs behind RequireSession; by the time it executes the cookie has
// already been resolved into an identity.
func (h *AuthHTTP) Verify(c echo.Context) error {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	return c.JSON(http.StatusOK, transport.VerifyResponse{
		Username: user.Username,
		Topic:    user.Topic,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	user, ok := middleware.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	accessToken, err := h.Svc.Refresh(ctx, user)
	if err != nil {
		return sessionError(err)
	}

	return c.JSON(http.StatusOK, transport.RefreshResponse{
		Message:     "ok",
		AccessToken: accessToken,
	})
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()

	user, ok := middleware.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	if err := h.Svc.LogOut(ctx, user.ID); err != nil {
		c.SetCookie(cookies.ExpireRefresh())
		return sessionError(err)
	}

	c.SetCookie(cookies.ExpireRefresh())
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "logged out"})
}

// sessionError maps service errors onto the wire without echoing internal
// error text to the client.
func sessionError(err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields")
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusBadRequest, "user already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid credentials")
	case errors.Is(err, service.ErrInvalidSession):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "something went wrong")
	}
}
