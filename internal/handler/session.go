package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/playora/lounge-reservation/internal/service"
)

// SessionHandler exposes the session engine: walk-in starts, the timer
// controls and challenge settlement.
type SessionHandler struct {
	Sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{Sessions: sessions}
}

// StartWalkIn activates a session immediately for a desk customer.
// Staff only.
func (h *SessionHandler) StartWalkIn(c echo.Context) error {
	var in service.StartWalkInInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	sess, err := h.Sessions.StartWalkIn(c.Request().Context(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// Get returns a session with its live elapsed/remaining counters.
func (h *SessionHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	sess, err := h.Sessions.GetSession(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	now := time.Now().UTC()
	return c.JSON(http.StatusOK, echo.Map{
		"session":       sess,
		"elapsed_sec":   int64(sess.ElapsedAt(now) / time.Second),
		"remaining_sec": int64(sess.RemainingAt(now) / time.Second),
	})
}

type pauseReq struct {
	Reason string `json:"reason"`
}

// Pause freezes the session clock.
func (h *SessionHandler) Pause(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	var req pauseReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	sess, err := h.Sessions.Pause(c.Request().Context(), id, req.Reason, actor(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Resume restarts the clock and pushes the scheduled end forward by the
// pause length.
func (h *SessionHandler) Resume(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	sess, err := h.Sessions.Resume(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

type extendReq struct {
	AdditionalMin uint32 `json:"additional_min"`
}

// Extend adds minutes to a running session, charged at the rate in
// effect at the old end time.
func (h *SessionHandler) Extend(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	var req extendReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	sess, err := h.Sessions.Extend(c.Request().Context(), id, req.AdditionalMin)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// End completes the session, bills consumed time and frees the unit.
func (h *SessionHandler) End(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	sess, err := h.Sessions.End(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// ListPauses returns the closed pause history of a session.
func (h *SessionHandler) ListPauses(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	pauses, err := h.Sessions.ListPauses(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"pauses": pauses})
}

type voteReq struct {
	VoterID     string `json:"voter_id"`
	CandidateID string `json:"candidate_id"`
}

// Vote records a challenge winner vote.
func (h *SessionHandler) Vote(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	var req voteReq
	if err := c.Bind(&req); err != nil || req.VoterID == "" || req.CandidateID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "voter_id and candidate_id are required"})
	}
	sess, err := h.Sessions.VoteWinner(c.Request().Context(), id, req.VoterID, req.CandidateID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

type overrideReq struct {
	WinnerID string `json:"winner_id"`
}

// Override lets staff decide a deadlocked challenge.  Staff only.
func (h *SessionHandler) Override(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	var req overrideReq
	if err := c.Bind(&req); err != nil || req.WinnerID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "winner_id is required"})
	}
	sess, err := h.Sessions.OverrideWinner(c.Request().Context(), id, req.WinnerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// Receipt issues the settlement summary for a completed session.
func (h *SessionHandler) Receipt(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badID(c)
	}
	r, err := h.Sessions.IssueReceipt(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// actor labels who paused the session for the audit trail.
func actor(c echo.Context) string {
	if role, ok := c.Get("role").(string); ok && role != "" {
		if id, ok := c.Get("user_id").(string); ok && id != "" {
			return role + ":" + id
		}
		return role
	}
	return "customer"
}
