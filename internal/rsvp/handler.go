package rsvp

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-invite/backend/internal/credential"
	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/pkg/qrcode"
	"github.com/aura-invite/backend/pkg/response"
	"github.com/aura-invite/backend/pkg/storage"
)

// SubmitRequest is the body for POST /rsvp. EventID is accepted as an alias of EventSlug.
type SubmitRequest struct {
	EventSlug string `json:"eventSlug"`
	EventID   string `json:"eventId"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Pax       *int   `json:"pax"`
	Attending string `json:"attending"`
}

// submitResponse keeps guestId at the top level for existing RSVP pages.
type submitResponse struct {
	Success bool      `json:"success"`
	GuestID uuid.UUID `json:"guestId"`
	Data    *Receipt  `json:"data"`
}

// CardStore locates pre-rendered QR cards.
type CardStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	GeneratePresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// Handler handles the public RSVP endpoints.
type Handler struct {
	svc      *Service
	store    guests.Store
	codec    *credential.Codec
	renderer *qrcode.Renderer
	cards    CardStore
	logger   *zap.Logger
}

// NewHandler creates an RSVP handler. cards may be nil.
func NewHandler(svc *Service, store guests.Store, codec *credential.Codec, renderer *qrcode.Renderer, cards CardStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, store: store, codec: codec, renderer: renderer, cards: cards, logger: logger}
}

// Submit handles POST /rsvp.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	event := req.EventSlug
	if event == "" {
		event = req.EventID
	}
	receipt, err := h.svc.Submit(c.Request.Context(), Submission{
		EventSlugOrID: event,
		Name:          req.Name,
		Phone:         req.Phone,
		Pax:           req.Pax,
		Attending:     req.Attending,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, submitResponse{Success: true, GuestID: receipt.GuestID, Data: receipt})
	case errors.Is(err, ErrInvalid):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "event not found")
	default:
		response.ServiceUnavailable(c, "could not save your RSVP, please try again")
	}
}

// QRCode handles GET /rsvp/:guestId/qr.
func (h *Handler) QRCode(c *gin.Context) {
	guestID, err := uuid.Parse(c.Param("guestId"))
	if err != nil {
		response.BadRequest(c, "invalid guest id")
		return
	}
	ctx := c.Request.Context()
	g, err := h.store.GetGuest(ctx, guestID)
	if err != nil {
		if errors.Is(err, guests.ErrNotFound) {
			response.NotFound(c, "guest not found")
			return
		}
		h.logger.Error("load guest for qr", zap.String("guest_id", guestID.String()), zap.Error(err))
		response.ServiceUnavailable(c, "temporarily unavailable")
		return
	}
	code := h.codec.Encode(g.ID)

	if h.cards != nil {
		key := storage.QRKey(g.EventID.String(), code)
		if ok, err := h.cards.Exists(ctx, key); err != nil {
			h.logger.Warn("qr card lookup failed, rendering inline", zap.String("key", key), zap.Error(err))
		} else if ok {
			if url, err := h.cards.GeneratePresignedDownloadURL(ctx, key); err == nil {
				c.Redirect(http.StatusFound, url)
				return
			}
		}
	}

	png, err := h.renderer.PNG(code)
	if err != nil {
		h.logger.Error("render qr", zap.String("guest_id", guestID.String()), zap.Error(err))
		response.Internal(c, "could not render code")
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, qrcode.ContentType, png)
}
