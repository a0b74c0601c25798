// Package handler exposes the portal over HTTP/JSON with gin.
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"presensi/internal/auth"
	"presensi/internal/gatekeeper"
	"presensi/internal/portal"
)

// Headers carrying the session token and the client-held identity snapshot.
const (
	HeaderSession      = "X-Session-Token"
	HeaderClientRole   = "X-Client-Role"
	HeaderClientEmail  = "X-Client-Email"
	HeaderClientStatus = "X-Client-Status"
)

// Handler serves the portal API.
type Handler struct {
	svc      *portal.Service
	devices  *auth.Issuer
	maxPhoto int
}

// New creates a Handler. maxPhoto bounds decoded scan photos in bytes.
func New(svc *portal.Service, devices *auth.Issuer, maxPhoto int) *Handler {
	if maxPhoto <= 0 {
		maxPhoto = 2 << 20
	}
	return &Handler{svc: svc, devices: devices, maxPhoto: maxPhoto}
}

// Register mounts every route under /v1. throttle guards the routes
// reachable without a session and may be nil.
func (h *Handler) Register(r gin.IRouter, throttle gin.HandlerFunc) {
	v1 := r.Group("/v1")

	public := v1.Group("")
	if throttle != nil {
		public.Use(throttle)
	}
	public.POST("/auth/login", h.login)
	public.POST("/devices/refresh", h.refreshDevice)

	v1.POST("/auth/password", h.changePassword)
	v1.POST("/devices/register", h.registerDevice)

	admin := v1.Group("/admin")
	admin.GET("/dashboard", h.adminDashboard)
	admin.GET("/users", h.listUsers)
	admin.POST("/users", h.createUser)
	admin.PUT("/users/:id", h.updateUser)
	admin.DELETE("/users/:id", h.deleteUser)
	admin.POST("/users/:id/reset-password", h.resetPassword)
	admin.PUT("/users/:id/status", h.setStatus)
	admin.PUT("/users/:id/credential", h.bindCredential)
	admin.POST("/users/:id/absences", h.recordAbsence)
	admin.GET("/settings", h.getSettings)
	admin.PUT("/settings", h.saveSettings)
	admin.PUT("/maintenance", h.setMaintenance)
	admin.POST("/config/reload", h.reloadConfig)

	v1.GET("/teacher/dashboard", h.teacherDashboard)

	kiosk := v1.Group("", auth.DeviceAuth(h.devices))
	kiosk.POST("/scans", h.submitScan)
	kiosk.GET("/scanner/feed", h.scannerFeed)
	kiosk.GET("/kiosk/settings", h.kioskSettings)
}

// authRequest reads the session token and, when any snapshot header is set,
// the client-held identity snapshot. The bearer form is accepted as well.
func authRequest(c *gin.Context) portal.AuthRequest {
	token := strings.TrimSpace(c.GetHeader(HeaderSession))
	if token == "" {
		if authz := c.GetHeader("Authorization"); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[len("bearer "):])
		}
	}
	req := portal.AuthRequest{Token: token}
	role, email, status := c.GetHeader(HeaderClientRole), c.GetHeader(HeaderClientEmail), c.GetHeader(HeaderClientStatus)
	if role != "" || email != "" || status != "" {
		req.Snapshot = &gatekeeper.Snapshot{Role: role, Email: email, Status: status}
	}
	return req
}

func respond(c *gin.Context, status int, v any, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	if v == nil {
		c.Status(status)
		return
	}
	c.JSON(status, v)
}

func respondOK(c *gin.Context, v any, err error) { respond(c, http.StatusOK, v, err) }
