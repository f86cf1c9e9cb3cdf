package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"suibison/internal/api"
	"suibison/internal/bisonapi"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	app := &bisonapi.App{Env: &bisonapi.Env{
		CorsOrigins:  []string{"http://localhost:3000"},
		ServiceToken: "service",
	}}
	return NewRouter(app, &api.App{JwtSecret: []byte("secret")}, nil)
}

func TestRouter(t *testing.T) {
	router := testRouter()
	cases := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/users/me", http.StatusUnauthorized},
		{http.MethodPost, "/tx/stake", http.StatusUnauthorized},
		{http.MethodPost, "/auth/register", http.StatusUnauthorized},
		{http.MethodPut, "/admin/meter", http.StatusUnauthorized},
		{http.MethodGet, "/ws", http.StatusUnauthorized},
		{http.MethodGet, "/ws?token=garbage", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}
