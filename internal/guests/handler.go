package guests

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/middleware"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/pkg/response"
)

const maxCreateAttempts = 5

// CreateEventRequest is the body for POST /events.
type CreateEventRequest struct {
	Slug      string `json:"slug" binding:"required"`
	Title     string `json:"title" binding:"required"`
	EventDate string `json:"eventDate" binding:"required"`
	Published bool   `json:"published"`
}

// CreateGuestRequest is the body for POST /guests.
type CreateGuestRequest struct {
	EventID string            `json:"eventId" binding:"required,uuid"`
	Name    string            `json:"name" binding:"required"`
	Phone   string            `json:"phone" binding:"required"`
	Pax     *int              `json:"pax"`
	Status  models.RSVPStatus `json:"status"`
}

// UpdateGuestRequest is the body for PATCH /guests/:guestId. Absent fields are kept.
type UpdateGuestRequest struct {
	Name   *string            `json:"name"`
	Phone  *string            `json:"phone"`
	Pax    *int               `json:"pax"`
	Status *models.RSVPStatus `json:"status"`
}

// guestResponse adds the guest's code to the stored row.
type guestResponse struct {
	*models.Guest
	QRCode string `json:"qrCode"`
}

// Handler handles the owner's event and guest list administration.
type Handler struct {
	store  Store
	codec  *credential.Codec
	logger *zap.Logger
}

// NewHandler creates a guest admin handler.
func NewHandler(store Store, codec *credential.Codec, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, codec: codec, logger: logger}
}

// CreateEvent handles POST /events.
func (h *Handler) CreateEvent(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	date, err := time.Parse(time.RFC3339, req.EventDate)
	if err != nil {
		response.BadRequest(c, "invalid eventDate")
		return
	}
	e := &models.Event{
		OwnerID:   ownerID,
		Slug:      normalizeSlug(req.Slug),
		Title:     strings.TrimSpace(req.Title),
		EventDate: date.UTC(),
		Published: req.Published,
	}
	if e.Slug == "" || e.Title == "" {
		response.BadRequest(c, "slug and title are required")
		return
	}
	if err := h.store.CreateEvent(c.Request.Context(), e); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			response.Conflict(c, "slug already taken")
			return
		}
		h.writeErr(c, "create event", err)
		return
	}
	response.Created(c, e)
}

// ListEvents handles GET /events.
func (h *Handler) ListEvents(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.store.ListEventsByOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("list events", zap.String("owner_id", ownerID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable")
		return
	}
	if list == nil {
		list = []models.Event{}
	}
	response.OK(c, list)
}

// Create handles POST /guests. Status defaults to pending.
func (h *Handler) Create(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var req CreateGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	eventID := uuid.MustParse(req.EventID)
	if _, err := h.store.GetEvent(ctx, ownerID, eventID); err != nil {
		h.writeErr(c, "load event", err)
		return
	}

	g := &models.Guest{
		EventID: eventID,
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.Join(strings.Fields(req.Phone), ""),
		Status:  req.Status,
	}
	if g.Status == "" {
		g.Status = models.RSVPPending
	}
	switch {
	case g.Status == models.RSVPDeclined:
		g.Pax = 0
	case req.Pax == nil:
		g.Pax = 1
	default:
		g.Pax = *req.Pax
	}

	var err error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		g.ID = uuid.New()
		if err = h.store.CreateGuest(ctx, g); !errors.Is(err, ErrCodeCollision) {
			break
		}
	}
	if err != nil {
		h.writeErr(c, "create guest", err)
		return
	}
	response.Created(c, guestResponse{Guest: g, QRCode: h.codec.Encode(g.ID)})
}

// Update handles PATCH /guests/:guestId.
func (h *Handler) Update(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	guestID, err := uuid.Parse(c.Param("guestId"))
	if err != nil {
		response.BadRequest(c, "invalid guest id")
		return
	}
	var req UpdateGuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	g, err := h.store.GetGuestForOwner(ctx, ownerID, guestID)
	if err != nil {
		h.writeErr(c, "load guest", err)
		return
	}
	if req.Name != nil {
		g.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		g.Phone = strings.Join(strings.Fields(*req.Phone), "")
	}
	if req.Pax != nil {
		g.Pax = *req.Pax
	}
	if req.Status != nil {
		g.Status = *req.Status
		if g.Status == models.RSVPDeclined {
			g.Pax = 0
		}
	}
	if err := h.store.UpdateGuest(ctx, ownerID, g); err != nil {
		h.writeErr(c, "update guest", err)
		return
	}
	response.OK(c, guestResponse{Guest: g, QRCode: h.codec.Encode(g.ID)})
}

// Delete handles DELETE /guests/:guestId.
func (h *Handler) Delete(c *gin.Context) {
	ownerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	guestID, err := uuid.Parse(c.Param("guestId"))
	if err != nil {
		response.BadRequest(c, "invalid guest id")
		return
	}
	if err := h.store.DeleteGuest(c.Request.Context(), ownerID, guestID); err != nil {
		h.writeErr(c, "delete guest", err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) writeErr(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(c, "name, phone, status and pax are invalid together")
	case errors.Is(err, ErrIneligible):
		response.Fail(c, http.StatusUnprocessableEntity, "a checked-in guest must stay confirmed", nil)
	default:
		h.logger.Error(op, zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable")
	}
}
