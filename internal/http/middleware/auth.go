package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/plansync-backend/internal/http/response"
	"github.com/yungbote/plansync-backend/internal/platform/ctxutil"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/services"
)

type AuthMiddleware struct {
	log      *logger.Logger
	verifier services.TokenVerifier
}

func NewAuthMiddleware(log *logger.Logger, verifier services.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), verifier: verifier}
}

// RequireAuth gates a route group on a valid bearer token: 401 when none is
// sent, 400 when it is not a JWT, 403 when it does not verify.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !am.verifier.Enabled() {
			p, _ := am.verifier.Verify(c.Request.Context(), token)
			c.Request = c.Request.WithContext(ctxutil.WithPrincipal(c.Request.Context(), p))
			c.Next()
			return
		}
		if !ok {
			response.RespondServiceError(c, services.ErrTokenMissing)
			return
		}
		p, err := am.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			response.RespondServiceError(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		tok := strings.TrimSpace(header[7:])
		return tok, tok != ""
	}
	return "", false
}
