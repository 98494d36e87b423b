package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/playora/lounge-reservation/internal/model"
	"github.com/playora/lounge-reservation/internal/notify"
	"github.com/playora/lounge-reservation/internal/repository"
	"github.com/playora/lounge-reservation/internal/service"
)

// ActivityHandler serves activity and unit management for staff plus
// the public browse endpoints.
type ActivityHandler struct {
	Activities *repository.ActivityRepo
	Units      *repository.UnitRepo
	Queue      *service.QueueService
	Events     service.Publisher
}

func NewActivityHandler(activities *repository.ActivityRepo, units *repository.UnitRepo,
	queue *service.QueueService, events service.Publisher) *ActivityHandler {
	return &ActivityHandler{Activities: activities, Units: units, Queue: queue, Events: events}
}

type activityReq struct {
	Name           string `json:"name"`
	PricingMode    string `json:"pricing_mode"`
	RateCents      uint32 `json:"rate_cents"`
	BlockMinutes   uint32 `json:"block_minutes"`
	MinDurationMin uint32 `json:"min_duration_min"`
	IsActive       *bool  `json:"is_active"`
}

func (r *activityReq) validate() string {
	if r.Name == "" {
		return "name is required"
	}
	switch r.PricingMode {
	case model.PricingPerMinute, model.PricingPerHour:
	case model.PricingFixedBlock:
		if r.BlockMinutes == 0 {
			return "block_minutes is required for FIXED_BLOCK pricing"
		}
	default:
		return "pricing_mode must be PER_MINUTE, PER_HOUR or FIXED_BLOCK"
	}
	if r.RateCents == 0 {
		return "rate_cents must be positive"
	}
	return ""
}

// CreateActivity registers a new bookable category.  Staff only.
func (h *ActivityHandler) CreateActivity(c echo.Context) error {
	var req activityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	a := &model.Activity{
		Name:           req.Name,
		PricingMode:    req.PricingMode,
		RateCents:      req.RateCents,
		BlockMinutes:   req.BlockMinutes,
		MinDurationMin: req.MinDurationMin,
		IsActive:       true,
	}
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	if err := h.Activities.Create(c.Request().Context(), a); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// UpdateActivity changes pricing or disables an activity.  Staff only.
func (h *ActivityHandler) UpdateActivity(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	a, err := h.Activities.GetByID(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	var req activityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if msg := req.validate(); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	a.Name = req.Name
	a.PricingMode = req.PricingMode
	a.RateCents = req.RateCents
	a.BlockMinutes = req.BlockMinutes
	a.MinDurationMin = req.MinDurationMin
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	if err := h.Activities.Update(c.Request().Context(), a); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListActivities returns every activity.  Public.
func (h *ActivityHandler) ListActivities(c echo.Context) error {
	list, err := h.Activities.List(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"activities": list})
}

type unitReq struct {
	Name string `json:"name"`
}

// CreateUnit adds a physical unit under an activity.  Staff only.
func (h *ActivityHandler) CreateUnit(c echo.Context) error {
	activityID, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx := c.Request().Context()
	if _, err := h.Activities.GetByID(ctx, activityID); err != nil {
		return fail(c, err)
	}
	var req unitReq
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	u := &model.Unit{ActivityID: activityID, Name: req.Name, Status: model.UnitAvailable}
	if err := h.Units.Create(ctx, u); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// ListUnits returns an activity's units with live occupancy.  Public,
// used by the availability board.
func (h *ActivityHandler) ListUnits(c echo.Context) error {
	activityID, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	units, err := h.Units.ListByActivity(c.Request().Context(), activityID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"units": units})
}

type unitStatusReq struct {
	Status string `json:"status"`
}

// SetUnitStatus moves a unit in or out of maintenance.  Staff only.
// Taking a unit out of maintenance can free capacity, so the waiting
// queue is processed afterwards.
func (h *ActivityHandler) SetUnitStatus(c echo.Context) error {
	id, ok := pathID(c, "unit_id")
	if !ok {
		return badID(c)
	}
	var req unitStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Status != model.UnitAvailable && req.Status != model.UnitMaintenance {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be AVAILABLE or MAINTENANCE"})
	}
	ctx := c.Request().Context()
	u, err := h.Units.GetByID(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	if u.Status == model.UnitOccupied {
		return c.JSON(http.StatusConflict, echo.Map{"error": "unit has a running session"})
	}
	if err := h.Units.UpdateStatus(ctx, id, req.Status); err != nil {
		return fail(c, err)
	}
	u.Status = req.Status
	_ = h.Events.Publish(ctx, notify.TopicAvailabilityChanged, notify.AvailabilityEvent{
		UnitID:     u.ID,
		ActivityID: u.ActivityID,
		Status:     u.Status,
	})
	if req.Status == model.UnitAvailable {
		h.Queue.ProcessQueue(ctx, u.ActivityID)
	}
	return c.JSON(http.StatusOK, u)
}
