package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/src/auth"
	"autotrader/src/security"
)

func TestBasicAuth(t *testing.T) {
	hash, err := security.HashPassword("s3cret")
	require.NoError(t, err)

	var operator string
	h := BasicAuth("admin", hash)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator, _ = auth.GetOperatorFromContext(r.Context())
	}))

	cases := []struct {
		name     string
		user     string
		password string
		code     int
	}{
		{"valid", "admin", "s3cret", http.StatusOK},
		{"wrong password", "admin", "nope", http.StatusUnauthorized},
		{"wrong user", "root", "s3cret", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			operator = ""
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tc.user != "" {
				req.SetBasicAuth(tc.user, tc.password)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.code, rr.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, "admin", operator)
			}
		})
	}
}

func TestBasicAuthDisabledWithoutHash(t *testing.T) {
	called := false
	h := BasicAuth("admin", "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPublicRoutes(t *testing.T) {
	hash, err := security.HashPassword("s3cret")
	require.NoError(t, err)
	r := NewRouter(Deps{ControlUser: "admin", ControlPasswordHash: hash})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
