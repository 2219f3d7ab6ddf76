package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/bazaardial/internal/services"
)

// ProfileHandler manages user profile endpoints.
type ProfileHandler struct {
	profiles *services.ProfileService
	uploads  *Uploader
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(profiles *services.ProfileService, uploads *Uploader) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, uploads: uploads}
}

// GetProfile returns authenticated user profile.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	user, err := h.profiles.Get(c.UserContext(), s.UID)
	if err != nil {
		return err
	}
	return c.JSON(newUserResponse(user))
}

type updateProfileRequest struct {
	Username string  `json:"username"`
	Email    *string `json:"email"`
}

// UpdateProfile updates username and email.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}

	user, err := h.profiles.Update(c.UserContext(), s.UID, services.ProfileUpdate{Username: req.Username, Email: req.Email})
	if err != nil {
		return err
	}
	return c.JSON(newUserResponse(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword replaces the password of the authenticated user.
func (h *ProfileHandler) ChangePassword(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody()
	}
	if err := h.profiles.ChangePassword(c.UserContext(), s.UID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Password changed successfully."})
}

// UploadAvatar stores a new avatar.
func (h *ProfileHandler) UploadAvatar(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	data, ext, err := h.uploads.Avatar(c)
	if err != nil {
		return err
	}
	user, err := h.profiles.SetAvatar(c.UserContext(), s.UID, data, ext)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Avatar updated successfully.", "avatar": user.AvatarURL()})
}

// DeleteAvatar removes the avatar.
func (h *ProfileHandler) DeleteAvatar(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	if err := h.profiles.DeleteAvatar(c.UserContext(), s.UID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Avatar deleted successfully."})
}

// Stats returns account statistics.
func (h *ProfileHandler) Stats(c *fiber.Ctx) error {
	s, err := session(c)
	if err != nil {
		return err
	}
	stats, err := h.profiles.Stats(c.UserContext(), s.UID)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}
