package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/playora/lounge-reservation/internal/service"
)

// QueueHandler exposes the waiting queue: join with a pending
// reservation, leave, and inspect positions.
type QueueHandler struct {
	Queue *service.QueueService
}

func NewQueueHandler(queue *service.QueueService) *QueueHandler {
	return &QueueHandler{Queue: queue}
}

type joinReq struct {
	ReservationID uint64 `json:"reservation_id"`
}

// Join puts a pending reservation at the back of its activity's queue.
func (h *QueueHandler) Join(c echo.Context) error {
	var req joinReq
	if err := c.Bind(&req); err != nil || req.ReservationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation_id is required"})
	}
	entry, err := h.Queue.Join(c.Request().Context(), req.ReservationID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// Leave removes a waiting entry; everyone behind it moves up.
func (h *QueueHandler) Leave(c echo.Context) error {
	id, ok := pathID(c, "entry_id")
	if !ok {
		return badID(c)
	}
	if err := h.Queue.Leave(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// List returns an activity's queue in position order.
func (h *QueueHandler) List(c echo.Context) error {
	activityID, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	entries, err := h.Queue.List(c.Request().Context(), activityID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entries": entries})
}

// Process runs one promotion pass manually.  Staff only; the scheduler
// runs the same pass automatically after sessions end.
func (h *QueueHandler) Process(c echo.Context) error {
	activityID, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	h.Queue.ProcessQueue(c.Request().Context(), activityID)
	entries, err := h.Queue.List(c.Request().Context(), activityID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entries": entries})
}
