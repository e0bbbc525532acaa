package auth

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/millflow/millflow/internal/audit"
	"github.com/millflow/millflow/internal/config"
	"github.com/millflow/millflow/internal/presentation/http/response"
	"github.com/millflow/millflow/pkg/errorbank"
)

// Identity headers trusted in header mode. The service sits behind a gateway
// that authenticates callers and forwards who they are.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
	HeaderUserRole = "X-User-Role"

	HeaderRequestID = "X-Request-Id"
)

const identityKey = "auth.identity"

// Identity is the resolved caller.
type Identity struct {
	ID       string
	Username string
	Role     string
}

// Middleware resolves caller identity per the configured mode and stores it
// on the request context. In "none" mode every request stays anonymous.
func Middleware(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Auth.Mode == "header" {
				id := Identity{
					ID:       c.Request().Header.Get(HeaderUserID),
					Username: c.Request().Header.Get(HeaderUserName),
					Role:     c.Request().Header.Get(HeaderUserRole),
				}
				if id.ID != "" {
					c.Set(identityKey, id)
				}
			}
			return next(c)
		}
	}
}

// RequestID assigns a request id when the caller did not send one, and
// echoes it back on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(HeaderRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, rid)
			return next(c)
		}
	}
}

// RequireIdentity rejects anonymous requests.
func RequireIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := FromContext(c); !ok {
				return response.New(c).WithError(errorbank.Unauthorized("caller identity is required")).Build()
			}
			return next(c)
		}
	}
}

// FromContext returns the resolved identity, if any.
func FromContext(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

// CallerFrom assembles the audit caller from identity and request metadata.
func CallerFrom(c echo.Context) audit.Caller {
	id, _ := FromContext(c)
	return audit.Caller{
		UserID:    id.ID,
		Username:  id.Username,
		Role:      id.Role,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
