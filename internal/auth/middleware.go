package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/modkit/modmail-relay/pkg/util"
)

const sourceKey = "gateway_source"

// GatewayAuth validates bearer tokens on event deliveries.
type GatewayAuth struct {
	tokens *TokenManager
}

// NewGatewayAuth constructs middleware.
func NewGatewayAuth(tokens *TokenManager) *GatewayAuth {
	return &GatewayAuth{tokens: tokens}
}

// Handle enforces authentication for event routes.
func (m *GatewayAuth) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(sourceKey, claims.Source)
	return c.Next()
}

// SourceFromContext retrieves the authenticated forwarder identity.
func SourceFromContext(c *fiber.Ctx) (string, bool) {
	val, ok := c.Locals(sourceKey).(string)
	return val, ok && val != ""
}
