package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campusd/internal/attendance"
	"campusd/internal/auth"
	"campusd/internal/authz"
	"campusd/internal/config"
	"campusd/internal/device"
	"campusd/internal/kiosk"
	"campusd/internal/schedule"
)

// Handler binds the HTTP surface to the engine services.
type Handler struct {
	cfg    config.App
	ctrl   *device.ControlService
	kiosks *kiosk.Service
	att    *attendance.Service
	stores *authz.SQLStores
	log    *logrus.Entry
}

// New creates the handler set.
func New(cfg config.App, ctrl *device.ControlService, kiosks *kiosk.Service, att *attendance.Service, stores *authz.SQLStores) *Handler {
	return &Handler{
		cfg:    cfg,
		ctrl:   ctrl,
		kiosks: kiosks,
		att:    att,
		stores: stores,
		log:    logrus.WithField("component", "http"),
	}
}

// Register wires all routes onto the engine.
func (h *Handler) Register(r *gin.Engine) {
	key, iss := h.cfg.JWTSigningKey, h.cfg.JWTIssuer

	// Kiosks authenticate by serial and self-register; no bearer token.
	r.POST("/v1/kiosk/heartbeat", h.kioskHeartbeat)
	r.POST("/v1/kiosk/sync", h.kioskSync)

	any := r.Group("/v1", auth.Bearer(key, iss))
	any.POST("/control", h.control)

	devices := r.Group("/v1", auth.Bearer(key, iss, auth.RoleDevice))
	devices.POST("/checkins", h.checkIn)
	devices.POST("/checkins/:id/checkout", h.checkOut)

	staff := r.Group("/v1", auth.Bearer(key, iss, auth.RoleInstructor, auth.RoleAdmin))
	staff.GET("/attendance/logs", h.listLogs)
	staff.GET("/kiosks", h.listKiosks)

	admin := r.Group("/v1", auth.Bearer(key, iss, auth.RoleAdmin))
	admin.POST("/kiosks/:serial/approve", h.kioskApprove)
	admin.POST("/kiosks/:serial/reject", h.kioskReject)
	admin.POST("/kiosks/:serial/bind", h.kioskBind)
	admin.POST("/kiosks/:serial/command", h.kioskCommand)
	admin.POST("/devices/register", h.registerDevice)
	admin.POST("/devices/:token_id/revoke", h.revokeDevice)
}

// actorFromClaims resolves the caller identity for this request only.
// Device tokens resolve through the token store; an unknown or revoked
// token is treated as no identity at all.
func (h *Handler) actorFromClaims(c *gin.Context) (authz.Actor, bool) {
	claims, ok := auth.FromContext(c)
	if !ok {
		return authz.Actor{}, false
	}
	if claims.Role == auth.RoleDevice {
		binding, err := h.stores.TokenBindingByID(c.Request.Context(), claims.Subject)
		if err != nil {
			// Fail closed: resolver trouble reads as "no identity".
			h.log.WithError(err).Warn("token binding lookup failed")
			return authz.Actor{}, false
		}
		if binding == nil {
			return authz.Actor{}, false
		}
		return authz.Actor{Kind: authz.ActorDevice, Binding: binding}, true
	}
	return authz.Actor{
		Kind:         authz.ActorWeb,
		InstructorID: claims.Subject,
		DepartmentID: claims.DepartmentID,
	}, true
}

func (h *Handler) control(c *gin.Context) {
	var req struct {
		Action    string `json:"action" binding:"required"`
		GroupType string `json:"group_type" binding:"required"`
		RoomID    string `json:"room_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor, ok := h.actorFromClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity not resolved"})
		return
	}

	outcome, err := h.ctrl.Control(c.Request.Context(), actor, req.Action, req.GroupType, req.RoomID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !outcome.Decision.Allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "denied", "reason": outcome.Decision.Reason})
		return
	}
	// Partial endpoint failures are still an overall success.
	c.JSON(http.StatusOK, gin.H{"room_id": outcome.Decision.Context.RoomID, "results": outcome.Results})
}

func (h *Handler) checkIn(c *gin.Context) {
	var req struct {
		StudentID   string `json:"student_id" binding:"required"`
		ClassID     string `json:"class_id" binding:"required"`
		Status      string `json:"status"`
		EntryMethod string `json:"entry_method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log, err := h.att.RecordCheckIn(c.Request.Context(), req.StudentID, req.ClassID,
		attendance.Status(req.Status), req.EntryMethod)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"log_id": log.ID, "check_in": log.CheckIn, "status": log.Status})
}

func (h *Handler) checkOut(c *gin.Context) {
	err := h.att.RecordCheckOut(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, attendance.ErrNoOpenLog) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) listLogs(c *gin.Context) {
	limit, offset := intQuery(c, "limit", 50), intQuery(c, "offset", 0)

	// Optional civil-date filter, e.g. ?date=2026-08-31.
	var day *time.Time
	if v := c.Query("date"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, schedule.Civil)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = &parsed
	}

	logs, err := h.att.ListForDisplay(c.Request.Context(), c.Query("class_id"), c.Query("student_id"), day, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (h *Handler) kioskHeartbeat(c *gin.Context) {
	var req struct {
		DeviceSerial    string `json:"device_serial" binding:"required"`
		FirmwareVersion string `json:"firmware_version"`
		IPAddress       string `json:"ip_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ip := req.IPAddress
	if ip == "" {
		ip = c.ClientIP()
	}
	res, err := h.kiosks.Heartbeat(c.Request.Context(), kiosk.Contact{
		Serial:   req.DeviceSerial,
		Firmware: req.FirmwareVersion,
		IP:       ip,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) kioskSync(c *gin.Context) {
	var req struct {
		DeviceSerial string `json:"device_serial" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.kiosks.Sync(c.Request.Context(), kiosk.Contact{Serial: req.DeviceSerial, IP: c.ClientIP()})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// A kiosk showing an active class means the room is about to be used;
	// run the once-per-session automatic lights-on.
	for _, class := range res.Classes {
		if class.Recommended {
			authCtx := authz.Context{
				RoomID:       res.RoomID,
				ClassID:      class.ClassID,
				DepartmentID: class.DepartmentID,
			}
			if err := h.ctrl.EnsureAutoOn(c.Request.Context(), authCtx); err != nil {
				h.log.WithError(err).WithField("room", res.RoomID).Warn("auto-on failed")
			}
			break
		}
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) listKiosks(c *gin.Context) {
	devices, err := h.kiosks.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kiosks": devices})
}

func (h *Handler) kioskApprove(c *gin.Context) {
	h.kioskAdminAction(c, func(serial string) error {
		return h.kiosks.Approve(c.Request.Context(), serial)
	})
}

func (h *Handler) kioskReject(c *gin.Context) {
	h.kioskAdminAction(c, func(serial string) error {
		return h.kiosks.Reject(c.Request.Context(), serial)
	})
}

func (h *Handler) kioskBind(c *gin.Context) {
	var req struct {
		RoomID string `json:"room_id" binding:"required"`
		Label  string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.kioskAdminAction(c, func(serial string) error {
		return h.kiosks.Bind(c.Request.Context(), serial, req.RoomID, req.Label)
	})
}

func (h *Handler) kioskCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.kioskAdminAction(c, func(serial string) error {
		return h.kiosks.QueueCommand(c.Request.Context(), serial, req.Command)
	})
}

func (h *Handler) kioskAdminAction(c *gin.Context, fn func(serial string) error) {
	serial := c.Param("serial")
	if err := fn(serial); err != nil {
		status := http.StatusBadRequest
		if err == kiosk.ErrUnknownSerial {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"serial": serial, "ok": true})
}

func (h *Handler) revokeDevice(c *gin.Context) {
	if err := h.stores.RevokeToken(c.Request.Context(), c.Param("token_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token_id": c.Param("token_id"), "revoked": true})
}

func (h *Handler) registerDevice(c *gin.Context) {
	var req struct {
		TokenType    string `json:"token_type" binding:"required"`
		RoomID       string `json:"room_id"`
		DepartmentID string `json:"department_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TokenType == "specific" && req.RoomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "specific tokens require room_id"})
		return
	}

	id, err := h.stores.CreateToken(c.Request.Context(), req.TokenType, req.RoomID, req.DepartmentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	tokens, err := auth.Issue(id, auth.RoleDevice, req.DepartmentID,
		h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token_id":      id,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
