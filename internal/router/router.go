package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/LibraryBookingSystem/booking-service/internal/config"
	"github.com/LibraryBookingSystem/booking-service/internal/handler"
	"github.com/LibraryBookingSystem/booking-service/internal/middleware"
)

// New builds the Echo instance with all booking routes registered.
//
// Every /api route sits behind JWT authentication and the Redis token
// bucket; listing the whole table additionally requires an elevated
// role.  Check-in is authenticated but not ownership-checked: the
// person at the desk presents the code, which is itself the proof.
func New(cfg config.Config, h *handler.BookingHandler, rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	api := e.Group("/api/bookings", middleware.JWTAuth(cfg.JWTSecret), limiter)

	api.POST("", h.Create)
	api.GET("", h.ListAll, middleware.RequireRole("ADMIN", "LIBRARIAN"))
	api.GET("/booked-resources", h.BookedResources)
	api.POST("/checkin", h.CheckIn)
	api.GET("/user/:id", h.ListByUser)
	api.GET("/resource/:id", h.ListByResource)
	api.GET("/:id", h.Get)
	api.PUT("/:id", h.Update)
	api.DELETE("/:id", h.Cancel)

	return e
}
