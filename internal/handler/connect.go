package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qbsync/internal/service"
)

// ConnectHandler receives the OAuth-callback notification that a company
// finished the QuickBooks consent flow. It only enqueues the onboarding
// backfill; the heavy lifting happens on the queue workers.
type ConnectHandler struct {
	Queue  *service.OnboardingQueue
	Logger *zap.Logger
}

type connectedRequest struct {
	TenantID uint `json:"tenant_id" binding:"required"`
}

func (h *ConnectHandler) Register(r *gin.Engine) {
	r.POST("/hooks/qb/connected", h.connected)
}

func (h *ConnectHandler) connected(c *gin.Context) {
	if h.Queue == nil {
		Error(c, http.StatusServiceUnavailable, "onboarding queue unavailable", nil)
		return
	}
	var req connectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "tenant_id required", nil)
		return
	}
	if err := h.Queue.Submit(req.TenantID); err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			Error(c, http.StatusTooManyRequests, "onboarding queue full, retry later", nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("onboarding enqueued", zap.Uint("tenant_id", req.TenantID))
	}
	c.JSON(http.StatusAccepted, apiResponse{
		Code:    0,
		Message: "accepted",
		Data:    map[string]any{"tenant_id": req.TenantID},
	})
}
