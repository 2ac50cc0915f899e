package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fininsight/fininsight/internal/middleware"
)

type Deps struct {
	AuthHandler *AuthHTTP
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	auth := e.Group("/auth")
	auth.POST("/signup", d.AuthHandler.Signup)
	auth.POST("/login", d.AuthHandler.Login)

	protected := auth.Group("")
	protected.Use(middleware.RequireSession(d.AuthHandler.Svc))
	protected.GET("/verify", d.AuthHandler.Verify)
	protected.GET("/refresh", d.AuthHandler.Refresh)
	protected.POST("/logout", d.AuthHandler.LogOut)
}
