package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/bazaardial/internal/services"
)

// PasswordResetHandler manages forgot-password endpoints.
type PasswordResetHandler struct {
	auth *services.AuthService
}

// NewPasswordResetHandler constructs a PasswordResetHandler.
func NewPasswordResetHandler(auth *services.AuthService) *PasswordResetHandler {
	return &PasswordResetHandler{auth: auth}
}

type resetContactRequest struct {
	Mobile string `json:"mobile"`
	Email  string `json:"email"`
	OTP    string `json:"otp"`
}

// RequestReset sends a reset code to a verified contact.
func (h *PasswordResetHandler) RequestReset(c *fiber.Ctx) error {
	var req resetContactRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	if err := h.auth.RequestReset(c.UserContext(), services.Contact{Mobile: req.Mobile, Email: req.Email}); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "OTP sent. Valid for 30 minutes."})
}

// VerifyResetOTP exchanges a reset code for a short-lived reset token.
func (h *PasswordResetHandler) VerifyResetOTP(c *fiber.Ctx) error {
	var req resetContactRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	token, err := h.auth.VerifyResetOTP(c.UserContext(), services.Contact{Mobile: req.Mobile, Email: req.Email}, req.OTP)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "OTP verified.", "token": token})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword sets a new password using a reset token.
func (h *PasswordResetHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	if err := h.auth.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password reset successful."})
}
