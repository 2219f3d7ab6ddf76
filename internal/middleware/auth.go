package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/utils"
)

const sessionContextKey = "session"

// Session is the authenticated caller. Role and BusinessID come from the token,
// CurrentRole and CurrentBusinessID from the store at request time.
type Session struct {
	UID               string
	Role              string
	BusinessID        string
	CurrentRole       models.Role
	CurrentBusinessID string
	IsVerified        bool
}

// Authenticate validates the bearer access token and requires a verified identity.
func Authenticate(tokens *utils.TokenIssuer, users repository.UserStore, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return apperr.Unauthorized("Access token required.")
		}

		claims, err := tokens.ParseAccess(parts[1])
		switch {
		case errors.Is(err, utils.ErrTokenExpired):
			return apperr.TokenExpired("Access token expired.")
		case err != nil:
			return apperr.InvalidToken("Invalid access token.")
		}

		user, err := users.FindByID(c.UserContext(), claims.UID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Unauthorized("User not found.")
		}
		if err != nil {
			log.Error("session lookup failed", zap.String("user_id", claims.UID), zap.Error(err))
			return apperr.Unauthorized("Authentication failed.")
		}
		if !user.Verified() {
			return apperr.NotVerified("Account not verified.")
		}

		c.Locals(sessionContextKey, &Session{
			UID:               claims.UID,
			Role:              claims.Role,
			BusinessID:        claims.BusinessID,
			CurrentRole:       user.Role,
			CurrentBusinessID: user.BusinessID,
			IsVerified:        true,
		})
		return c.Next()
	}
}

// RequireRole admits only sessions whose stored role is one of roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, ok := GetSession(c)
		if !ok {
			return apperr.Unauthorized("Authentication required.")
		}
		role := s.CurrentRole
		if role == "" {
			role = models.Role(s.Role)
		}
		for _, allowed := range roles {
			if role == allowed {
				return c.Next()
			}
		}
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		return apperr.Forbidden("Access denied. Required role: " + strings.Join(names, " or ") + ".")
	}
}

// GetSession extracts the authenticated session from context.
func GetSession(c *fiber.Ctx) (*Session, bool) {
	s, ok := c.Locals(sessionContextKey).(*Session)
	return s, ok && s != nil
}
