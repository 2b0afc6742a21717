package middleware

import (
	"HouseDetection/pkg/handlerUtil"
	jwtPkg "HouseDetection/pkg/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const unauthorizedDetail = "Unauthorized, access token invalid or expired"

type tokenMiddleware struct {
	enabled bool
	secret  string
}

func newTokenMiddleware(enabled bool, secret string) *tokenMiddleware {
	return &tokenMiddleware{
		enabled: enabled,
		secret:  secret,
	}
}

// NewTokenMiddleware guards a route with bearer auth when auth is enabled and
// passes through otherwise.
func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	if !m.token.enabled {
		return ctx.Next()
	}

	fields := logrus.Fields{
		"request_id": m.GetRequestID(ctx),
		"path":       ctx.Path(),
		"client_ip":  ctx.IP(),
	}

	userToken, err := jwtPkg.VerifyTokenHeader(ctx, m.token.secret)
	if err != nil {
		m.log.WithFields(fields).WithError(err).Debug("Token verification failed")
		return handlerUtil.New(m.log).HandleUnauthorized(ctx, m.GetRequestID(ctx), unauthorizedDetail)
	}

	principal, err := jwtPkg.PrincipalFromToken(userToken)
	if err != nil {
		m.log.WithFields(fields).WithError(err).Debug("Token claims check failed")
		return handlerUtil.New(m.log).HandleUnauthorized(ctx, m.GetRequestID(ctx), unauthorizedDetail)
	}

	jwtPkg.SetPrincipal(ctx, principal)

	m.log.WithFields(fields).WithField("subject", principal.Subject).Debug("Authentication successful")
	return ctx.Next()
}
