package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaozining525-dotcom/bk/internal/models"
	"go.uber.org/zap"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins []string
		method         string
		origin         string
		expectedOrigin string
		expectedStatus int
	}{
		{
			name:           "wildcard without origin header",
			allowedOrigins: []string{"*"},
			method:         http.MethodGet,
			expectedOrigin: "*",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "listed origin",
			allowedOrigins: []string{"https://blog.example"},
			method:         http.MethodGet,
			origin:         "https://BLOG.example",
			expectedOrigin: "https://BLOG.example",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unlisted origin",
			allowedOrigins: []string{"https://blog.example"},
			method:         http.MethodGet,
			origin:         "https://evil.example",
			expectedOrigin: "",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "preflight",
			allowedOrigins: []string{"*"},
			method:         http.MethodOptions,
			origin:         "https://any.example",
			expectedOrigin: "*",
			expectedStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/posts", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			CORSMiddleware(tt.allowedOrigins)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, PATCH, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", rec.Header().Get("Access-Control-Allow-Headers"))
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("generates id", func(t *testing.T) {
		var seen string
		h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
	})

	t.Run("keeps incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc")
		rec := httptest.NewRecorder()
		RequestIDMiddleware(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	})

	for name, incoming := range map[string]string{
		"replaces id with spaces":  "abc def",
		"replaces id with newline": "abc\nlevel=error",
		"replaces overlong id":     strings.Repeat("a", maxRequestIDLength+1),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", incoming)
			rec := httptest.NewRecorder()
			RequestIDMiddleware(okHandler).ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			assert.NotEqual(t, incoming, got)
			assert.Len(t, got, 36)
		})
	}

	assert.Empty(t, GetRequestID(context.Background()))
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 20)))
	rec := httptest.NewRecorder()

	RequestSizeLimitMiddleware(10)(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Request body too large"}`, rec.Body.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zap.NewNop()
	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
}

func TestRecoveryMiddleware_AbortHandler(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLoggerMiddleware(t *testing.T) {
	h := LoggerMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "cloudflare header",
			headers:    map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2"},
			remoteAddr: "3.3.3.3:1234",
			expected:   "1.1.1.1",
		},
		{
			name:       "forwarded for",
			headers:    map[string]string{"X-Forwarded-For": "2.2.2.2, 10.0.0.1"},
			remoteAddr: "3.3.3.3:1234",
			expected:   "2.2.2.2",
		},
		{
			name:       "remote addr",
			remoteAddr: "3.3.3.3:1234",
			expected:   "3.3.3.3",
		},
		{
			name:     "unknown",
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header   string
		expected string
	}{
		{header: "Bearer abc", expected: "abc"},
		{header: "bearer abc", expected: "abc"},
		{header: "Basic abc", expected: ""},
		{header: "abc", expected: ""},
		{header: "", expected: ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		assert.Equal(t, tt.expected, BearerToken(req), tt.header)
	}
}

type mockResolver struct {
	user *models.User
	err  error
}

func (m *mockResolver) Authenticate(ctx context.Context, token string) (*models.User, error) {
	return m.user, m.err
}

func TestSessionMiddleware(t *testing.T) {
	admin := &models.User{Username: "admin", Role: models.RoleAdmin}

	tests := []struct {
		name           string
		authHeader     string
		resolver       *mockResolver
		expectedStatus int
		expectedUser   string
	}{
		{
			name:           "anonymous without header",
			resolver:       &mockResolver{user: admin},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown token stays anonymous",
			authHeader:     "Bearer nope",
			resolver:       &mockResolver{},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid token",
			authHeader:     "Bearer good",
			resolver:       &mockResolver{user: admin},
			expectedStatus: http.StatusOK,
			expectedUser:   "admin",
		},
		{
			name:           "resolver error",
			authHeader:     "Bearer good",
			resolver:       &mockResolver{err: errors.New("redis down")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var username string
			h := SessionMiddleware(tt.resolver, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if user, ok := GetUser(r.Context()); ok {
					username = user.Username
				}
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedUser, username)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireAuth(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"success":false,"error":"Unauthorized"}`, rec.Body.String())
	})

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUser(req.Context(), &models.User{Username: "editor"}))
		rec := httptest.NewRecorder()
		RequireAuth(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
