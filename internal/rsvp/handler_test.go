package rsvp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-invite/backend/pkg/qrcode"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCards struct {
	exists bool
	err    error
	keys   []string
}

func (f *fakeCards) Exists(_ context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.exists, f.err
}

func (f *fakeCards) GeneratePresignedDownloadURL(_ context.Context, key string) (string, error) {
	return "https://cards.example/" + key + "?sig=1", nil
}

func newRouter(t *testing.T, cards CardStore) *gin.Engine {
	t.Helper()
	svc, store, _ := newService(t)
	renderer, err := qrcode.NewRenderer(128)
	require.NoError(t, err)
	h := NewHandler(svc, store, svc.codec, renderer, cards, nil)
	r := gin.New()
	r.POST("/rsvp", h.Submit)
	r.GET("/rsvp/:guestId/qr", h.QRCode)
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rsvp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Submit(t *testing.T) {
	r := newRouter(t, nil)
	w := post(r, `{"eventSlug":"ahmad-alia","name":"Ahmad","phone":"+60123456789","pax":4,"attending":"yes"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool      `json:"success"`
		GuestID uuid.UUID `json:"guestId"`
		Data    Receipt   `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, body.GuestID, body.Data.GuestID)
	assert.Equal(t, 4, body.Data.Pax)
	assert.True(t, strings.HasPrefix(body.Data.QRCode, "RSVP-"))
}

func TestHandler_SubmitErrors(t *testing.T) {
	r := newRouter(t, nil)
	assert.Equal(t, http.StatusBadRequest, post(r, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, post(r, `{"eventSlug":"ahmad-alia","name":"","phone":"1","attending":"yes"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(r, `{"eventSlug":"missing","name":"A","phone":"1","attending":"yes"}`).Code)
}

func submitOne(t *testing.T, r http.Handler) uuid.UUID {
	t.Helper()
	w := post(r, `{"eventSlug":"ahmad-alia","name":"A","phone":"1","attending":"yes"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		GuestID uuid.UUID `json:"guestId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.GuestID
}

func getQR(r http.Handler, id string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rsvp/"+id+"/qr", nil))
	return w
}

func TestHandler_QRCodeRendersInline(t *testing.T) {
	cards := &fakeCards{err: errors.New("s3 down")}
	r := newRouter(t, cards)
	id := submitOne(t, r)

	w := getQR(r, id.String())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, qrcode.ContentType, w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	assert.NoError(t, err)
	require.Len(t, cards.keys, 1)
	assert.Contains(t, cards.keys[0], strings.ToUpper(id.String()[:8])+".png")

	assert.Equal(t, http.StatusNotFound, getQR(r, uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, getQR(r, "nope").Code)
}

func TestHandler_QRCodeRedirectsToStoredCard(t *testing.T) {
	r := newRouter(t, &fakeCards{exists: true})
	id := submitOne(t, r)

	w := getQR(r, id.String())
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "https://cards.example/qrcards/"))
}
