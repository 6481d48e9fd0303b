package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/LibraryBookingSystem/booking-service/internal/repository"
	"github.com/LibraryBookingSystem/booking-service/internal/service"
)

// BookingHandler exposes the lifecycle engine over HTTP.  All methods
// assume JWT authentication and role validation have already been
// performed by middleware; the validated (user_id, role) pair is read
// from the Echo context and passed into the engine, which enforces
// ownership.
type BookingHandler struct {
	svc *service.BookingService
}

// NewBookingHandler constructs a BookingHandler.  The service must be
// non-nil.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc}
}

// identity pulls the authenticated user id and role stored by JWTAuth.
func identity(c echo.Context) (uint64, string, bool) {
	uid, ok := c.Get("user_id").(uint64)
	if !ok {
		return 0, "", false
	}
	role, _ := c.Get("role").(string)
	return uid, role, true
}

// fail translates engine errors into distinguishable HTTP responses so
// clients can tell "slot taken" from "already checked in" from "not
// permitted".
func fail(c echo.Context, err error) error {
	var verr *repository.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":      "policy validation failed",
			"violations": verr.Violations,
		})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

type createBookingRequest struct {
	ResourceID uint64    `json:"resource_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// Create handles POST /api/bookings.  The window is parsed as RFC3339
// and normalized to UTC by the engine.  Returns 201 with the booking,
// including its check-in code.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, _, ok := identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.ResourceID == 0 || req.StartTime.IsZero() || req.EndTime.IsZero() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "resource_id, start_time and end_time are required"})
	}
	booking, err := h.svc.Create(c.Request().Context(), userID, req.ResourceID, req.StartTime, req.EndTime)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, booking)
}

// ListAll handles GET /api/bookings.  Restricted to elevated roles by
// route middleware.
func (h *BookingHandler) ListAll(c echo.Context) error {
	items, err := h.svc.ListAll(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /api/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, role, ok := identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	booking, err := h.svc.GetByID(c.Request().Context(), id, userID, role)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}

// ListByUser handles GET /api/bookings/user/:id.  Users may list only
// their own bookings unless they hold an elevated role.
func (h *BookingHandler) ListByUser(c echo.Context) error {
	userID, role, ok := identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	target, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if target != userID && role != "ADMIN" && role != "LIBRARIAN" {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	items, err := h.svc.ListByUser(c.Request().Context(), target)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// ListByResource handles GET /api/bookings/resource/:id.
func (h *BookingHandler) ListByResource(c echo.Context) error {
	resourceID, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid resource id"})
	}
	items, err := h.svc.ListByResource(c.Request().Context(), resourceID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

type updateBookingRequest struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// Update handles PUT /api/bookings/:id.  Omitted bounds keep their
// current value.
func (h *BookingHandler) Update(c echo.Context) error {
	userID, _, ok := identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req updateBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.StartTime == nil && req.EndTime == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_time or end_time is required"})
	}
	booking, err := h.svc.Update(c.Request().Context(), id, userID, req.StartTime, req.EndTime)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}

// Cancel handles DELETE /api/bookings/:id.  Returns 204 on success.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, role, ok := identity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	if err := h.svc.Cancel(c.Request().Context(), id, userID, role); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type checkInRequest struct {
	CheckInCode string `json:"check_in_code"`
}

// CheckIn handles POST /api/bookings/checkin.  The body carries the
// code printed on the booking confirmation.
func (h *BookingHandler) CheckIn(c echo.Context) error {
	var req checkInRequest
	if err := c.Bind(&req); err != nil || req.CheckInCode == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "check_in_code is required"})
	}
	booking, err := h.svc.CheckIn(c.Request().Context(), req.CheckInCode)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, booking)
}

// BookedResources handles GET /api/bookings/booked-resources: the
// distinct resource ids with a booking active right now.
func (h *BookingHandler) BookedResources(c echo.Context) error {
	ids, err := h.svc.ListActiveResourceIDs(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"resource_ids": ids})
}
