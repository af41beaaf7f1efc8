package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/parse"
)

// RunSchedule handles POST /api/schedule/run.
func (h *Handler) RunSchedule(c *gin.Context) {
	res, err := h.scheduler.RunPass(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ClearSchedule handles DELETE /api/schedule.
func (h *Handler) ClearSchedule(c *gin.Context) {
	out, err := h.scheduler.Clear(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetSchedule handles GET /api/schedule.
func (h *Handler) GetSchedule(c *gin.Context) {
	insp, err := h.scheduler.Inspect(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"timeline":      insp.Timeline,
		"hardwareUsage": insp.HardwareUsage,
		"machineUsage":  insp.MachineUsage,
	})
}

// GetConflicts handles GET /api/schedule/conflicts.
func (h *Handler) GetConflicts(c *gin.Context) {
	insp, err := h.scheduler.Inspect(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	conflicts := insp.Overallocations
	if conflicts == nil {
		conflicts = []engine.Overallocation{}
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts, "count": len(conflicts)})
}

type manualRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	MachineID string `json:"machineId" binding:"required"`
	Date      string `json:"date" binding:"required"`
	StartHour any    `json:"startHour"`
}

// toEngine normalizes the date and accepts the hour either as a number or
// as a string like "09:00".
func (r manualRequest) toEngine() (engine.ManualRequest, error) {
	date, err := parse.ParseDate(r.Date)
	if err != nil {
		return engine.ManualRequest{}, err
	}
	var hour int
	switch v := r.StartHour.(type) {
	case float64:
		if v != math.Trunc(v) || v < 0 || v > 23 {
			return engine.ManualRequest{}, fmt.Errorf("hour out of range: %v", v)
		}
		hour = int(v)
	case string:
		if hour, err = parse.ParseStartHour(v); err != nil {
			return engine.ManualRequest{}, err
		}
	default:
		return engine.ManualRequest{}, fmt.Errorf("startHour must be a number or a string")
	}
	return engine.ManualRequest{SessionID: r.SessionID, MachineID: r.MachineID, Date: date, StartHour: hour}, nil
}

func bindManual(c *gin.Context) (engine.ManualRequest, bool) {
	var req manualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return engine.ManualRequest{}, false
	}
	out, err := req.toEngine()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return engine.ManualRequest{}, false
	}
	return out, true
}

// PostManual handles POST /api/schedule/manual.
func (h *Handler) PostManual(c *gin.Context) {
	req, ok := bindManual(c)
	if !ok {
		return
	}
	res, err := h.scheduler.ManualAssign(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// PostManualCheck handles POST /api/schedule/manual/check.
func (h *Handler) PostManualCheck(c *gin.Context) {
	req, ok := bindManual(c)
	if !ok {
		return
	}
	res, err := h.scheduler.CheckManual(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	conflicts := res.Conflicts
	if conflicts == nil {
		conflicts = []engine.Overallocation{}
	}
	c.JSON(http.StatusOK, gin.H{
		"hasConflicts": len(conflicts) > 0,
		"conflicts":    conflicts,
		"assignment":   res.Assignment,
	})
}

// writeError maps engine and service errors onto status codes.
func writeError(c *gin.Context, err error) {
	var occupied *engine.OccupiedError
	var alloc *engine.AllocationError
	switch {
	case errors.As(err, &occupied):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "conflicts": occupied.Conflicts})
	case errors.Is(err, engine.ErrPassInProgress), errors.Is(err, engine.ErrSlotOccupied):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrUnknownSession), errors.Is(err, engine.ErrUnknownMachine):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrIncompatibleMachine),
		errors.Is(err, engine.ErrPastSlot),
		errors.Is(err, engine.ErrOutsideHorizon),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.As(err, &alloc):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
