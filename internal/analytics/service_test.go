package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-invite/backend/internal/guests/gueststest"
	"github.com/aura-invite/backend/internal/middleware"
	"github.com/aura-invite/backend/internal/models"
)

func TestParseScope(t *testing.T) {
	s, err := ParseScope("all")
	require.NoError(t, err)
	_, ok := s.EventID()
	assert.False(t, ok)

	id := uuid.New()
	s, err = ParseScope(id.String())
	require.NoError(t, err)
	got, ok := s.EventID()
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, err = ParseScope("yesterday")
	assert.Error(t, err)
}

func TestSummarize_TracksCheckIns(t *testing.T) {
	ctx := context.Background()
	store := gueststest.NewStore(t)
	owner := uuid.New()
	wedding := gueststest.Event(t, store, owner, "wedding")
	dinner := gueststest.Event(t, store, owner, "dinner")

	ahmad := gueststest.Guest(t, store, wedding.ID, "Ahmad", models.RSVPConfirmed, 4)
	gueststest.Guest(t, store, wedding.ID, "Siti", models.RSVPDeclined, 0)
	gueststest.Guest(t, store, wedding.ID, "Ali", models.RSVPPending, 2)
	gueststest.Guest(t, store, dinner.ID, "Lim", models.RSVPConfirmed, 3)

	svc := NewService(store)
	sum, err := svc.Summarize(ctx, owner, ForEvent(wedding.ID))
	require.NoError(t, err)
	assert.Equal(t, models.Summary{Total: 3, Confirmed: 1, Pending: 1, Declined: 1, TotalPax: 6}, sum)

	_, err = store.MarkCheckedIn(ctx, owner, ahmad.ID, time.Now())
	require.NoError(t, err)

	sum, err = svc.Summarize(ctx, owner, ForEvent(wedding.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.CheckedIn)
	assert.Equal(t, 4, sum.CheckedInPax)

	all, err := svc.Summarize(ctx, owner, AllEvents())
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, 9, all.TotalPax)
	assert.Equal(t, 4, all.CheckedInPax)

	_, err = svc.Summarize(ctx, uuid.New(), ForEvent(wedding.ID))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandler_Summary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := gueststest.NewStore(t)
	owner := uuid.New()
	ev := gueststest.Event(t, store, owner, "wedding")
	gueststest.Guest(t, store, ev.ID, "Ahmad", models.RSVPConfirmed, 4)

	h := NewHandler(NewService(store), nil)
	r := gin.New()
	r.GET("/checkin/summary", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, owner)
		c.Next()
	}, h.Summary)

	get := func(q string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkin/summary"+q, nil))
		return w
	}

	w := get("?event=" + ev.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data models.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Data.TotalPax)

	assert.Equal(t, http.StatusOK, get("").Code)
	assert.Equal(t, http.StatusBadRequest, get("?event=nope").Code)
	assert.Equal(t, http.StatusNotFound, get("?event="+uuid.NewString()).Code)
}
