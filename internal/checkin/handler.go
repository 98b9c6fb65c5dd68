package checkin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-invite/backend/internal/analytics"
	"github.com/aura-invite/backend/internal/guests"
	"github.com/aura-invite/backend/internal/middleware"
	"github.com/aura-invite/backend/internal/models"
	"github.com/aura-invite/backend/pkg/response"
)

// CheckInRequest is the body for POST /checkin: either a guest id decoded by the
// station or the raw scanned code.
type CheckInRequest struct {
	GuestID string `json:"guestId"`
	Code    string `json:"code"`
	EventID string `json:"eventId"`
}

// checkInData is the outcome payload every POST /checkin response carries.
type checkInData struct {
	Outcome     Outcome    `json:"outcome"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	Guest       *GuestView `json:"guest,omitempty"`
}

// checkInResponse keeps checkedInAt at the top level for existing stations.
type checkInResponse struct {
	Success     bool        `json:"success"`
	CheckedInAt *time.Time  `json:"checkedInAt,omitempty"`
	Error       string      `json:"error,omitempty"`
	Data        checkInData `json:"data"`
}

// listData is the full GET /checkin payload.
type listData struct {
	Guests  []GuestView    `json:"guests"`
	Events  []models.Event `json:"events"`
	Summary models.Summary `json:"summary"`
}

// listResponse keeps guests and events at the top level for existing stations.
type listResponse struct {
	Success bool           `json:"success"`
	Guests  []GuestView    `json:"guests"`
	Events  []models.Event `json:"events"`
	Data    listData       `json:"data"`
}

// StationTokenRequest is the body for POST /stations/token.
type StationTokenRequest struct {
	Station string `json:"station"`
}

// TokenIssuer issues staff tokens for check-in stations.
type TokenIssuer interface {
	GenerateStation(ownerID uuid.UUID, station string, ttl time.Duration) (string, time.Time, error)
}

// Handler handles the check-in station endpoints.
type Handler struct {
	svc        *Service
	store      guests.Store
	summary    *analytics.Service
	tokens     TokenIssuer
	stationTTL time.Duration
	logger     *zap.Logger
}

// NewHandler creates a check-in handler.
func NewHandler(svc *Service, store guests.Store, summary *analytics.Service, tokens TokenIssuer, stationTTL time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, store: store, summary: summary, tokens: tokens, stationTTL: stationTTL, logger: logger}
}

// List handles GET /checkin?event=<id>: guests with their codes, events and summary.
func (h *Handler) List(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	scope, err := analytics.ParseScope(c.Query("event"))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	events, err := h.store.ListEventsByOwner(ctx, ownerID)
	if err != nil {
		h.unavailable(c, "list events", ownerID, err)
		return
	}
	titles := make(map[uuid.UUID]string, len(events))
	for _, e := range events {
		titles[e.ID] = e.Title
	}
	var eventID *uuid.UUID
	if id, ok := scope.EventID(); ok {
		if _, known := titles[id]; !known {
			response.NotFound(c, "event not found")
			return
		}
		eventID = &id
	}

	list, err := h.store.ListGuestsByOwner(ctx, ownerID, eventID)
	if err != nil {
		h.unavailable(c, "list guests", ownerID, err)
		return
	}
	views := make([]GuestView, 0, len(list))
	for _, g := range list {
		views = append(views, h.svc.View(g, titles))
	}
	sum, err := h.summary.Summarize(ctx, ownerID, scope)
	if err != nil {
		h.unavailable(c, "summarize", ownerID, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	c.JSON(http.StatusOK, listResponse{
		Success: true,
		Guests:  views,
		Events:  events,
		Data:    listData{Guests: views, Events: events, Summary: sum},
	})
}

// CheckIn handles POST /checkin.
func (h *Handler) CheckIn(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	ctx := c.Request.Context()

	var (
		res Result
		err error
	)
	switch {
	case req.GuestID != "":
		guestID, perr := uuid.Parse(strings.TrimSpace(req.GuestID))
		if perr != nil {
			// no guest can carry a non-UUID id
			h.writeResult(c, Result{Outcome: OutcomeNotFound})
			return
		}
		res, err = h.svc.CheckIn(ctx, ownerID, guestID)
	case req.Code != "":
		var eventID *uuid.UUID
		if req.EventID != "" {
			id, perr := uuid.Parse(req.EventID)
			if perr != nil {
				response.BadRequest(c, "invalid eventId")
				return
			}
			eventID = &id
		}
		res, err = h.svc.CheckInByCode(ctx, ownerID, req.Code, eventID)
	default:
		response.BadRequest(c, "guestId or code is required")
		return
	}
	if err != nil {
		response.ServiceUnavailable(c, "check-in temporarily unavailable, look the guest up before retrying")
		return
	}
	h.writeResult(c, res)
}

func (h *Handler) writeResult(c *gin.Context, res Result) {
	data := checkInData{Outcome: res.Outcome, CheckedInAt: res.CheckedInAt}
	if res.Guest != nil {
		v := h.svc.View(*res.Guest, nil)
		data.Guest = &v
	}
	out := checkInResponse{Data: data}
	status := http.StatusOK
	switch res.Outcome {
	case OutcomeAdmitted:
		out.Success = true
		out.CheckedInAt = res.CheckedInAt
	case OutcomeAlreadyCheckedIn:
		status = http.StatusConflict
		out.CheckedInAt = res.CheckedInAt
		out.Error = "guest already checked in"
	case OutcomeNotFound:
		status = http.StatusNotFound
		out.Error = "guest not found"
	case OutcomeIneligible:
		status = http.StatusUnprocessableEntity
		out.Error = "guest has not confirmed attendance"
	case OutcomeUnknownCode:
		status = http.StatusBadRequest
		out.Error = "not a valid guest code"
	}
	c.JSON(status, out)
}

// Lookup handles GET /checkin/guests/:guestId.
func (h *Handler) Lookup(c *gin.Context) {
	ownerID, guestID, ok := h.guestParams(c)
	if !ok {
		return
	}
	g, err := h.svc.Lookup(c.Request.Context(), ownerID, guestID)
	if err != nil {
		h.guestError(c, err)
		return
	}
	response.OK(c, h.svc.View(*g, nil))
}

// Undo handles DELETE /checkin/guests/:guestId (owner only).
func (h *Handler) Undo(c *gin.Context) {
	ownerID, guestID, ok := h.guestParams(c)
	if !ok {
		return
	}
	g, err := h.svc.Undo(c.Request.Context(), ownerID, guestID)
	if err != nil {
		h.guestError(c, err)
		return
	}
	response.OK(c, h.svc.View(*g, nil))
}

// StationToken handles POST /stations/token (owner only).
func (h *Handler) StationToken(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req StationTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}
	station := strings.TrimSpace(req.Station)
	if len(station) > 64 {
		response.BadRequest(c, "station name too long")
		return
	}
	token, expires, err := h.tokens.GenerateStation(ownerID, station, h.stationTTL)
	if err != nil {
		h.logger.Error("issue station token", zap.String("owner_id", ownerID.String()), zap.Error(err))
		response.Internal(c, "could not issue token")
		return
	}
	response.Created(c, gin.H{"token": token, "expiresAt": expires.UTC(), "station": station})
}

func (h *Handler) guestParams(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return uuid.Nil, uuid.Nil, false
	}
	guestID, err := uuid.Parse(c.Param("guestId"))
	if err != nil {
		response.BadRequest(c, "invalid guest id")
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, guestID, true
}

func (h *Handler) guestError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "guest not found")
		return
	}
	response.ServiceUnavailable(c, "temporarily unavailable")
}

func (h *Handler) unavailable(c *gin.Context, op string, ownerID uuid.UUID, err error) {
	h.logger.Error(op, zap.String("owner_id", ownerID.String()), zap.Error(err))
	response.ServiceUnavailable(c, "temporarily unavailable")
}
