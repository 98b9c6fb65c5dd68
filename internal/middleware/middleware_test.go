package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aura-invite/backend/internal/auth"
	"github.com/aura-invite/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(jwtSvc *auth.JWTService, roles ...models.Role) *gin.Engine {
	r := gin.New()
	r.GET("/x", JWT(jwtSvc), RequireRole(roles...), func(c *gin.Context) {
		id, ok := OwnerID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.String())
	})
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRoles(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", 1)
	owner := uuid.New()
	ownerTok, err := jwtSvc.Generate(owner)
	require.NoError(t, err)
	staffTok, _, err := jwtSvc.GenerateStation(owner, "door", time.Hour)
	require.NoError(t, err)

	ownersOnly := newRouter(jwtSvc, models.RoleOwner)
	both := newRouter(jwtSvc, models.RoleOwner, models.RoleStaff)

	w := do(ownersOnly, ownerTok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, owner.String(), w.Body.String())

	assert.Equal(t, http.StatusForbidden, do(ownersOnly, staffTok).Code)
	assert.Equal(t, http.StatusOK, do(both, staffTok).Code)
	assert.Equal(t, http.StatusUnauthorized, do(both, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(both, "garbage").Code)
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allow, 30 * time.Second, s.err
}

func TestRateLimit(t *testing.T) {
	cases := []struct {
		name    string
		limiter *stubLimiter
		want    int
	}{
		{"allowed", &stubLimiter{allow: true}, http.StatusOK},
		{"limited", &stubLimiter{allow: false}, http.StatusTooManyRequests},
		{"limiter down", &stubLimiter{err: errors.New("redis down")}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/rsvp", RateLimit(tc.limiter, "rsvp", zap.NewNop()), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodPost, "/rsvp", nil)
			req.RemoteAddr = "203.0.113.7:5555"
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.want, w.Code)
			assert.Equal(t, []string{"rsvp:203.0.113.7"}, tc.limiter.keys)
			if tc.want == http.StatusTooManyRequests {
				assert.Equal(t, "30", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	limiter := &stubLimiter{allow: true}
	r := gin.New()
	require.NoError(t, TrustProxies(r, nil))
	r.POST("/rsvp", RateLimit(limiter, "rsvp", zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/rsvp", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Len(t, limiter.keys, 5)
	for _, k := range limiter.keys {
		assert.Equal(t, "rsvp:203.0.113.7", k)
	}
}

func TestRateLimit_UsesForwardedForFromTrustedProxy(t *testing.T) {
	limiter := &stubLimiter{allow: true}
	r := gin.New()
	require.NoError(t, TrustProxies(r, []string{"10.0.0.0/8"}))
	r.POST("/rsvp", RateLimit(limiter, "rsvp", zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/rsvp", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"rsvp:198.51.100.9"}, limiter.keys)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS("https://aura.my/, https://station.aura.my"))
	r.POST("/rsvp", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/rsvp", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(http.MethodOptions, "https://aura.my")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://aura.my", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
	assert.Equal(t, "Retry-After", w.Header().Get("Access-Control-Expose-Headers"))

	w = send(http.MethodOptions, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = send(http.MethodPost, "https://station.aura.my")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://station.aura.my", w.Header().Get("Access-Control-Allow-Origin"))

	open := gin.New()
	open.Use(CORS(""))
	open.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://anything.example")
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
