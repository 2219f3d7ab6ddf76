package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/services"
	"github.com/example/bazaardial/internal/utils"
)

const refreshCookie = "refreshToken"

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	auth   *services.AuthService
	tokens *utils.TokenIssuer
	secure bool
}

// NewAuthHandler constructs an AuthHandler. secure marks the refresh cookie Secure.
func NewAuthHandler(auth *services.AuthService, tokens *utils.TokenIssuer, secure bool) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, secure: secure}
}

// userResponse is the public view of a user.
type userResponse struct {
	*models.User
	ProfileComplete bool   `json:"profileComplete"`
	AvatarURL       string `json:"avatarUrl,omitempty"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{User: u, ProfileComplete: u.ProfileComplete(), AvatarURL: u.AvatarURL()}
}

func (h *AuthHandler) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteStrictMode,
		MaxAge:   int(h.tokens.RefreshTTL() / time.Second),
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.secure,
		SameSite: fiber.CookieSameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Mobile   string `json:"mobile"`
	Email    string `json:"email"`
}

// Register creates an unverified account and sends an OTP.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}

	via, err := h.auth.Register(c.UserContext(), services.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Mobile:   req.Mobile,
		Email:    req.Email,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"message": "OTP sent.", "via": via})
}

type verifyRequest struct {
	Mobile string `json:"mobile"`
	Email  string `json:"email"`
	OTP    string `json:"otp"`
}

// VerifyOTP confirms a mobile registration code.
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	return h.verify(c, models.ChannelMobile)
}

// VerifyEmailOTP confirms an email registration code.
func (h *AuthHandler) VerifyEmailOTP(c *fiber.Ctx) error {
	return h.verify(c, models.ChannelEmail)
}

func (h *AuthHandler) verify(c *fiber.Ctx, ch models.Channel) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	contact, message := req.Mobile, "Mobile verified successfully."
	if ch == models.ChannelEmail {
		contact, message = req.Email, "Email verified successfully."
	}

	session, err := h.auth.VerifyOTP(c.UserContext(), ch, contact, req.OTP)
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.Tokens.RefreshToken)
	return c.JSON(fiber.Map{
		"message":     message,
		"accessToken": session.Tokens.AccessToken,
		"user":        newUserResponse(session.User),
	})
}

type resendRequest struct {
	Contact string `json:"contact"`
	Via     string `json:"via"`
}

// ResendOTP reissues a registration code.
func (h *AuthHandler) ResendOTP(c *fiber.Ctx) error {
	var req resendRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	if err := h.auth.Resend(c.UserContext(), req.Contact, models.Channel(req.Via)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "OTP resent successfully."})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Login authenticates an existing user.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}

	session, err := h.auth.Login(c.UserContext(), req.Identifier, req.Password)
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, session.Tokens.RefreshToken)
	return c.JSON(fiber.Map{
		"accessToken": session.Tokens.AccessToken,
		"user":        newUserResponse(session.User),
	})
}

// Refresh exchanges the refresh cookie for a new access token.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	token, user, err := h.auth.Refresh(c.UserContext(), c.Cookies(refreshCookie))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"accessToken": token,
		"role":        user.Role,
		"businessId":  user.BusinessID,
	})
}

// Logout clears the refresh cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearRefreshCookie(c)
	return c.JSON(fiber.Map{"message": "Logged out."})
}

// CheckUsername reports whether a username is free.
func (h *AuthHandler) CheckUsername(c *fiber.Ctx) error {
	if err := h.auth.CheckUsername(c.UserContext(), c.Query("username")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Username available."})
}
