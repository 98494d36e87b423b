package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/playora/lounge-reservation/internal/service"
)

// ReservationHandler exposes the booking flow: create a hold, confirm
// payment, reject.
type ReservationHandler struct {
	Reservations *service.ReservationService
}

func NewReservationHandler(reservations *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{Reservations: reservations}
}

// Create holds a slot pending payment.
func (h *ReservationHandler) Create(c echo.Context) error {
	var in service.CreateReservationInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if in.CustomerName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_name is required"})
	}
	rec, err := h.Reservations.CreateReservation(c.Request().Context(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// Get returns a reservation by id.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	rec, err := h.Reservations.GetReservation(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

type confirmReq struct {
	PaymentRef string `json:"payment_ref"`
}

// Confirm records payment and returns the session it started.  Safe to
// retry: a duplicate confirm returns the existing session.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	var req confirmReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	sess, err := h.Reservations.ConfirmReservation(c.Request().Context(), id, req.PaymentRef)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Reject cancels an in-flight reservation.  Staff only.
func (h *ReservationHandler) Reject(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	if err := h.Reservations.RejectReservation(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
