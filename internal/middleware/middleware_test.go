package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"duxxan-platform/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubParser struct{}

func (stubParser) ParseToken(token string) (int64, error) {
	if token == "good" {
		return 42, nil
	}
	return 0, models.ErrInvalidToken
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, wallet string) (*models.User, error) {
	switch {
	case wallet == "":
		return nil, models.ErrMissingWallet
	case !strings.HasPrefix(wallet, "0x"):
		return nil, models.ErrInvalidWallet
	case wallet == "0xboom":
		return nil, assert.AnError
	}
	return &models.User{ID: 7, WalletAddress: strings.ToLower(wallet)}, nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequestID_GeneratesNew(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	headerID := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, headerID)
	assert.Equal(t, headerID, w.Body.String())
}

func TestRequestID_UsesExisting(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "existing-request-id-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "existing-request-id-123", w.Body.String())
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/missing", "/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestAdminAuth(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AdminAuth(stubParser{}, zap.NewNop()), func(c *gin.Context) {
		id, ok := AdminID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestWalletAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", WalletAuth(stubResolver{}, zap.NewNop()), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, user)
	})

	tests := []struct {
		name    string
		wallet  string
		status  int
		message string
	}{
		{"missing", "", http.StatusUnauthorized, "Wallet address required"},
		{"malformed", "wallet", http.StatusUnauthorized, "Invalid wallet address"},
		{"lookup failure", "0xboom", http.StatusInternalServerError, "Internal server error"},
		{"valid", "0xABC", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.wallet != "" {
				req.Header.Set(WalletHeader, tt.wallet)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decode(t, w)["message"])
			}
		})
	}
}

func TestRateLimiter_KeysOnClientIP(t *testing.T) {
	rl := NewRateLimiter(1, 2, zap.NewNop())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/write", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip, wallet string) int {
		req := httptest.NewRequest(http.MethodPost, "/write", nil)
		req.RemoteAddr = ip + ":40000"
		req.Header.Set(WalletHeader, wallet)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	allowed := 0
	for i := 0; i < 50; i++ {
		if send("10.0.0.1", fmt.Sprintf("0x%040x", i)) == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed, "changing the wallet header must not reset the bucket")
	assert.Len(t, rl.visitors, 1)

	// another client has its own bucket
	assert.Equal(t, http.StatusOK, send("10.0.0.2", ""))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, send("10.0.0.1", ""))
}

func TestRateLimiter_PerWallet(t *testing.T) {
	rl := NewRateLimiter(1, 1, zap.NewNop())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/write", func(c *gin.Context) {
		if wallet := c.GetHeader(WalletHeader); wallet != "" {
			c.Set(UserKey, &models.User{ID: 1, WalletAddress: wallet})
		}
		c.Next()
	}, rl.PerWallet(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(wallet string) int {
		req := httptest.NewRequest(http.MethodPost, "/write", nil)
		req.Header.Set(WalletHeader, wallet)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("0xaaa"))
	assert.Equal(t, http.StatusTooManyRequests, send("0xaaa"))
	assert.Equal(t, http.StatusOK, send("0xbbb"))

	// no resolved wallet, nothing to limit
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusOK, send(""))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, zap.NewNop())
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.limiter("a")
	now = now.Add(time.Minute)
	rl.limiter("b")

	assert.Equal(t, 1, rl.Cleanup(30*time.Second))
	assert.Len(t, rl.visitors, 1)
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
