package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carriage/carriage-api/internal/model"
	"github.com/carriage/carriage-api/pkg/auth"
	"github.com/carriage/carriage-api/pkg/errors"
	"github.com/carriage/carriage-api/pkg/httputil"
)

const contextActor = "actor"

// Authenticate verifies the bearer token and stores the caller's actor in the context.
func Authenticate(jwt auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			httputil.RespondWithError(c, errors.Unauthorized(errors.New("missing authorization header")))
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.RespondWithError(c, errors.Unauthorized(errors.New("invalid authorization format")))
			return
		}

		claims, err := jwt.ValidateToken(token)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(contextActor, claims.Actor())
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		httputil.RespondWithError(c, errors.NewForbidden("role not permitted"))
	}
}

func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(contextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

// SetActor is used by tests that bypass token validation.
func SetActor(c *gin.Context, actor model.Actor) {
	c.Set(contextActor, actor)
}
