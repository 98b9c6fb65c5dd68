package analytics

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-invite/backend/internal/middleware"
	"github.com/aura-invite/backend/pkg/response"
)

// Handler handles GET /checkin/summary.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a summary handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Summary handles GET /checkin/summary?event=all|<uuid>.
func (h *Handler) Summary(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	scope, err := ParseScope(c.Query("event"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	sum, err := h.svc.Summarize(c.Request.Context(), ownerID, scope)
	switch {
	case err == nil:
		response.OK(c, sum)
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "event not found")
	default:
		h.logger.Error("summarize guests", zap.String("owner_id", ownerID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "summary temporarily unavailable")
	}
}
