package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/storage"
	"github.com/example/bazaardial/internal/utils"
	"github.com/example/bazaardial/internal/validate"
)

// AvatarSize bounds both sides of a stored avatar.
const AvatarSize = 512

// ProfileUpdate is the editable part of a profile. A nil Email leaves it unchanged.
type ProfileUpdate struct {
	Username string
	Email    *string
}

type profileInput struct {
	Username string `validate:"required,username"`
	Email    string `validate:"omitempty,email"`
}

var profileMessages = map[string]string{
	"username.required": "Username is required.",
	"username":          "Username must be 3-20 characters (letters, numbers, underscore).",
	"email":             "Invalid email format.",
}

type passwordChange struct {
	Current string `json:"currentPassword" validate:"required"`
	Next    string `json:"newPassword" validate:"required,strongpw"`
}

var passwordMessages = map[string]string{
	"currentPassword.required": "Current password and new password are required.",
	"newPassword.required":     "Current password and new password are required.",
	"newPassword":              "New password must be at least 8 characters with upper-, lower-case and a number.",
}

// Stats summarizes an account for the dashboard.
type Stats struct {
	MemberSince time.Time     `json:"memberSince"`
	Role        models.Role   `json:"role"`
	IsVerified  bool          `json:"isVerified"`
	HasAvatar   bool          `json:"hasAvatar"`
	Business    *StatsListing `json:"business"`
}

// StatsListing is the listing summary inside Stats.
type StatsListing struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProfileService manages the authenticated user's own account.
type ProfileService struct {
	users      repository.UserStore
	businesses repository.BusinessStore
	blobs      storage.BlobStore
	log        *zap.Logger
	now        func() time.Time
}

func NewProfileService(store repository.Store, blobs storage.BlobStore, log *zap.Logger) *ProfileService {
	return &ProfileService{
		users:      store.Users(),
		businesses: store.Businesses(),
		blobs:      blobs,
		log:        log,
		now:        time.Now,
	}
}

// Get loads the caller's profile.
func (s *ProfileService) Get(ctx context.Context, uid string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found.")
	}
	if err != nil {
		return nil, apperr.Server("Failed to fetch profile.", err)
	}
	return user, nil
}

// Update changes username and email. Clearing the email is refused when it is
// the only contact.
func (s *ProfileService) Update(ctx context.Context, uid string, in ProfileUpdate) (*models.User, error) {
	input := profileInput{Username: validate.NormalizeUsername(in.Username)}
	if in.Email != nil {
		input.Email = validate.NormalizeEmail(*in.Email)
	}
	if err := invalid(validate.Struct(input), profileMessages); err != nil {
		return nil, err
	}
	username, email := input.Username, input.Email

	user, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	if username != user.Username {
		taken, err := s.users.UsernameTaken(ctx, username, user.ID)
		if err != nil {
			return nil, apperr.Server("Failed to update profile.", err)
		}
		if taken {
			return nil, apperr.Conflict("Username is already taken.")
		}
		user.Username = username
	}

	if in.Email != nil && email != user.Email {
		if email == "" && user.Mobile == "" {
			return nil, apperr.Validation("Provide either mobile or email.", "email")
		}
		user.Email = email
		user.IsEmailVerified = false
		delete(user.OTP, models.ChannelEmail)
	}

	if err := s.users.Save(ctx, user); err != nil {
		switch repository.DuplicateField(err) {
		case repository.FieldUsername:
			return nil, apperr.Conflict("Username is already taken.")
		case repository.FieldEmail:
			return nil, apperr.Conflict("Email is already taken.")
		}
		return nil, apperr.Server("Failed to update profile.", err)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *ProfileService) ChangePassword(ctx context.Context, uid, current, next string) error {
	if err := invalid(validate.Struct(passwordChange{Current: current, Next: next}), passwordMessages); err != nil {
		return err
	}

	user, err := s.Get(ctx, uid)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(user.PasswordHash, current) {
		return apperr.Validation("Current password is incorrect.", "currentPassword")
	}
	if utils.CheckPassword(user.PasswordHash, next) {
		return apperr.Validation("New password must differ from current.", "newPassword")
	}

	hash, err := utils.HashPassword(next)
	if err != nil {
		return apperr.Server("Failed to change password.", err)
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = s.now()
	if err := s.users.Save(ctx, user); err != nil {
		return apperr.Server("Failed to change password.", err)
	}
	return nil
}

// SetAvatar stores a new avatar and removes the previous one. Decodable images
// larger than AvatarSize are downscaled and re-encoded as JPEG.
func (s *ProfileService) SetAvatar(ctx context.Context, uid string, data []byte, ext string) (*models.User, error) {
	user, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}

	contentType := "image/" + strings.TrimPrefix(strings.ToLower(ext), ".")
	if img, derr := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); derr == nil {
		b := img.Bounds()
		if b.Dx() > AvatarSize || b.Dy() > AvatarSize {
			var buf bytes.Buffer
			if err := imaging.Encode(&buf, imaging.Fit(img, AvatarSize, AvatarSize, imaging.Lanczos), imaging.JPEG); err != nil {
				return nil, apperr.Server("Failed to upload avatar.", err)
			}
			data, ext, contentType = buf.Bytes(), ".jpg", "image/jpeg"
		}
	}

	key := storage.NewAvatarKey(uid, ext)
	if err := s.blobs.Put(ctx, key, contentType, data); err != nil {
		return nil, apperr.Server("Failed to upload avatar.", err)
	}

	previous := user.Avatar
	user.Avatar = key
	if err := s.users.Save(ctx, user); err != nil {
		_ = s.blobs.Delete(context.WithoutCancel(ctx), key)
		return nil, apperr.Server("Failed to upload avatar.", err)
	}
	if previous != "" {
		if err := s.blobs.Delete(ctx, previous); err != nil {
			s.log.Warn("failed to delete avatar", zap.String("key", previous), zap.Error(err))
		}
	}
	return user, nil
}

// DeleteAvatar removes the current avatar.
func (s *ProfileService) DeleteAvatar(ctx context.Context, uid string) error {
	user, err := s.Get(ctx, uid)
	if err != nil {
		return err
	}
	if user.Avatar == "" {
		return apperr.Validation("No avatar to delete.", "avatar")
	}
	if err := s.blobs.Delete(ctx, user.Avatar); err != nil {
		s.log.Warn("failed to delete avatar", zap.String("key", user.Avatar), zap.Error(err))
	}
	user.Avatar = ""
	if err := s.users.Save(ctx, user); err != nil {
		return apperr.Server("Failed to delete avatar.", err)
	}
	return nil
}

// Stats reports membership details and the linked listing, if any.
func (s *ProfileService) Stats(ctx context.Context, uid string) (*Stats, error) {
	user, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		MemberSince: user.CreatedAt,
		Role:        user.Role,
		IsVerified:  user.Verified(),
		HasAvatar:   user.Avatar != "",
	}
	if user.BusinessID == "" {
		return stats, nil
	}

	biz, err := s.businesses.FindByID(ctx, user.BusinessID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, apperr.Server("Failed to fetch user statistics.", err)
	default:
		stats.Business = &StatsListing{ID: biz.ID, Name: biz.BusinessName, Category: biz.Category, CreatedAt: biz.CreatedAt}
	}
	return stats, nil
}
