package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/plansync-backend/internal/platform/ctxutil"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/services"
)

func TestRequireAuth(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	verifier, err := services.NewTokenVerifier(logger.Nop(), nil, services.IdentityConfig{Mode: services.AuthModeHMAC, Secret: "k"})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	good, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other"))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad format", header: "Bearer not-a-jwt", want: http.StatusBadRequest},
		{name: "bad signature", header: "Bearer " + forged, want: http.StatusForbidden},
		{name: "valid", header: "Bearer " + good, want: http.StatusOK},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(NewAuthMiddleware(logger.Nop(), verifier).RequireAuth())
			r.GET("/p", func(c *gin.Context) {
				p := ctxutil.GetPrincipal(c.Request.Context())
				if p == nil || p.Subject != "user-1" {
					t.Errorf("principal not attached: %#v", p)
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/p", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status: got=%d want=%d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}
