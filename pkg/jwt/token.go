package jwtPkg

import (
	"HouseDetection/internal/entity"
	"errors"
	"fmt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"strings"
)

const principalKey = "principal"

// VerifyTokenHeader parses the bearer token of c with an HS256 secret.
func VerifyTokenHeader(c *fiber.Ctx, secret string) (*jwt.Token, error) {
	log := logrus.WithField("func", "VerifyTokenHeader")

	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return nil, errors.New("empty Authorization header")
	}

	accessToken, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, errors.New("invalid Authorization format")
	}

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, errors.New("empty token")
	}

	if secret == "" {
		log.Error("JWT secret is not configured")
		return nil, errors.New("JWT secret not configured")
	}

	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		log.WithError(err).Debug("Failed to parse JWT token")
		return nil, err
	}

	return token, nil
}

// PrincipalFromToken extracts the caller identity from verified claims.
func PrincipalFromToken(token *jwt.Token) (entity.Principal, error) {
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return entity.Principal{}, err
	}
	if subject == "" {
		return entity.Principal{}, errors.New("token has no subject")
	}
	return entity.Principal{Subject: subject}, nil
}

func SetPrincipal(c *fiber.Ctx, p entity.Principal) {
	c.Locals(principalKey, p)
}

func GetPrincipal(c *fiber.Ctx) (entity.Principal, error) {
	p, ok := c.Locals(principalKey).(entity.Principal)
	if !ok {
		return entity.Principal{}, fiber.ErrUnauthorized
	}
	return p, nil
}
