// Package router wires handlers onto the echo instance.  Routes are
// grouped by audience: public browse and auth, authenticated booking,
// and staff-only administration.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/playora/lounge-reservation/internal/config"
	"github.com/playora/lounge-reservation/internal/handler"
	"github.com/playora/lounge-reservation/internal/middleware"
	"github.com/playora/lounge-reservation/internal/model"
)

// Deps carries everything RegisterRoutes needs.
type Deps struct {
	Cfg          config.Config
	Redis        *redis.Client
	Auth         *handler.AuthHandler
	Activities   *handler.ActivityHandler
	Reservations *handler.ReservationHandler
	Sessions     *handler.SessionHandler
	Queue        *handler.QueueHandler
}

// RegisterRoutes mounts the API under /v1.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), d.Redis))

	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1")

	// Public: browse and authentication.
	v1.POST("/auth/register", d.Auth.Register)
	v1.POST("/auth/login", d.Auth.Login)
	v1.POST("/auth/refresh", d.Auth.Refresh)
	v1.POST("/auth/logout", d.Auth.Logout)
	v1.GET("/activities", d.Activities.ListActivities)
	v1.GET("/activities/:id/units", d.Activities.ListUnits)
	v1.GET("/activities/:id/queue", d.Queue.List)

	// Authenticated customers and staff.
	authed := v1.Group("", middleware.JWTAuth(d.Cfg.JWTSecret))
	authed.POST("/reservations", d.Reservations.Create)
	authed.GET("/reservations/:id", d.Reservations.Get)
	authed.POST("/reservations/:id/confirm", d.Reservations.Confirm)
	authed.POST("/queue/join", d.Queue.Join)
	authed.DELETE("/queue/:entry_id", d.Queue.Leave)
	authed.GET("/sessions/:id", d.Sessions.Get)
	authed.POST("/sessions/:id/pause", d.Sessions.Pause)
	authed.POST("/sessions/:id/resume", d.Sessions.Resume)
	authed.POST("/sessions/:id/extend", d.Sessions.Extend)
	authed.POST("/sessions/:id/vote", d.Sessions.Vote)
	authed.GET("/sessions/:id/pauses", d.Sessions.ListPauses)
	authed.GET("/sessions/:id/receipt", d.Sessions.Receipt)

	// Staff administration.
	staff := v1.Group("/staff", middleware.JWTAuth(d.Cfg.JWTSecret), middleware.RequireRole(model.RoleStaff))
	staff.POST("/auth/register", d.Auth.RegisterStaff)
	staff.POST("/activities", d.Activities.CreateActivity)
	staff.PUT("/activities/:id", d.Activities.UpdateActivity)
	staff.POST("/activities/:id/units", d.Activities.CreateUnit)
	staff.PUT("/units/:unit_id/status", d.Activities.SetUnitStatus)
	staff.POST("/activities/:id/queue/process", d.Queue.Process)
	staff.POST("/reservations/:id/reject", d.Reservations.Reject)
	staff.POST("/sessions/walkin", d.Sessions.StartWalkIn)
	staff.POST("/sessions/:id/end", d.Sessions.End)
	staff.POST("/sessions/:id/override", d.Sessions.Override)
}
