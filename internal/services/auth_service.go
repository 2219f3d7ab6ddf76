package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/utils"
	"github.com/example/bazaardial/internal/validate"
)

const (
	MaxLoginAttempts = 5
	LoginLockout     = 15 * time.Minute
)

const weakPasswordMsg = "Password must be at least 8 characters with upper-, lower-case and a number."

// RegisterInput is the body of a registration request.
type RegisterInput struct {
	Username string `validate:"required,username"`
	Password string `validate:"required,strongpw"`
	Mobile   string `validate:"required_without=Email,omitempty,inmobile"`
	Email    string `validate:"required_without=Mobile,omitempty,email"`
}

var registerMessages = map[string]string{
	"username.required":       "Username & password required.",
	"password.required":       "Username & password required.",
	"mobile.required_without": "Provide either mobile or email.",
	"email.required_without":  "Provide either mobile or email.",
	"username":                "Username must be 3-20 characters (letters, numbers, underscore).",
	"password":                weakPasswordMsg,
	"mobile":                  "Mobile must be a 10-digit Indian number starting with 6-9",
	"email":                   "Invalid email.",
}

// Contact names an address on a given channel.
type Contact struct {
	Mobile string `validate:"required_without=Email"`
	Email  string `validate:"required_without=Mobile"`
}

type codeInput struct {
	Contact string `validate:"required"`
	Code    string `validate:"required,len=5,number"`
}

type resendInput struct {
	Contact string `validate:"required"`
	Via     string `validate:"oneof=mobile email"`
}

type loginInput struct {
	Identifier string `validate:"required"`
	Password   string `validate:"required"`
}

type resetInput struct {
	Token    string `validate:"required"`
	Password string `validate:"required,strongpw"`
}

var resetMessages = map[string]string{
	"token.required":    "Token & password required.",
	"password.required": "Token & password required.",
	"password":          weakPasswordMsg,
}

// Session is the outcome of a login or verification.
type Session struct {
	User   *models.User
	Tokens utils.TokenPair
}

// AuthService implements registration, verification, login and password reset.
type AuthService struct {
	users  repository.UserStore
	otp    *OTPService
	tokens *utils.TokenIssuer
	log    *zap.Logger
	now    func() time.Time
}

func NewAuthService(users repository.UserStore, otp *OTPService, tokens *utils.TokenIssuer, log *zap.Logger) *AuthService {
	return &AuthService{users: users, otp: otp, tokens: tokens, log: log, now: time.Now}
}

// Register creates an unverified user and sends a code to its contact. When both
// contacts are supplied the email channel receives the code.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (models.Channel, error) {
	in.Username = validate.NormalizeUsername(in.Username)
	in.Mobile = strings.TrimSpace(in.Mobile)
	in.Email = validate.NormalizeEmail(in.Email)
	if err := invalid(validate.Struct(in), registerMessages); err != nil {
		return "", err
	}

	user := &models.User{Username: in.Username, Role: models.RoleUser}
	channel := models.ChannelMobile
	if in.Mobile != "" {
		user.Mobile, _ = validate.FormatMobile(in.Mobile)
	}
	if in.Email != "" {
		user.Email = in.Email
		channel = models.ChannelEmail
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return "", apperr.Server("Failed to hash password.", err)
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = s.now()

	if err := s.users.Create(ctx, user); err != nil {
		return "", duplicateUserError(err)
	}
	if err := s.otp.Issue(ctx, user, channel, PurposeRegistration); err != nil {
		return "", err
	}
	return channel, nil
}

// VerifyOTP confirms a registration code and opens a session.
func (s *AuthService) VerifyOTP(ctx context.Context, ch models.Channel, contact, code string) (*Session, error) {
	if errs := validate.Struct(codeInput{Contact: contact, Code: code}); len(errs) > 0 {
		return nil, codeError(ch, errs)
	}

	user, err := s.findByContact(ctx, ch, contact)
	if err != nil {
		return nil, err
	}
	if user.ChannelVerified(ch) {
		return nil, apperr.Validation("Already verified.", string(ch))
	}

	ok, err := s.otp.Verify(ctx, user, ch, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Validation("Invalid or expired OTP.", "otp")
	}

	now := s.now()
	if user.ProfileCompletedAt == nil && user.ProfileComplete() {
		user.ProfileCompletedAt = &now
	}
	user.LastLoginAt = &now
	if err := s.users.Save(ctx, user); err != nil {
		return nil, apperr.Server("Failed to update user.", err)
	}
	return s.open(user)
}

// Resend reissues a registration code for a channel that is not yet verified.
func (s *AuthService) Resend(ctx context.Context, contact string, ch models.Channel) error {
	if errs := validate.Struct(resendInput{Contact: contact, Via: string(ch)}); len(errs) > 0 {
		return apperr.Validation("Contact and valid 'via' field required.", validate.Names(errs)...)
	}
	user, err := s.findByContact(ctx, ch, contact)
	if err != nil || user.ChannelVerified(ch) {
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return apperr.NotFound("User not found or already verified.")
	}
	return s.otp.Resend(ctx, user, ch)
}

// Login authenticates by username, mobile or email.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	if errs := validate.Struct(loginInput{Identifier: identifier, Password: password}); len(errs) > 0 {
		return nil, apperr.Validation("Identifier & password are required.", validate.Names(errs)...)
	}

	var (
		user *models.User
		err  error
	)
	switch validate.ClassifyIdentifier(identifier) {
	case validate.IdentifierMobile:
		user, err = s.users.FindByMobile(ctx, identifier)
	case validate.IdentifierEmail:
		user, err = s.users.FindByEmail(ctx, validate.NormalizeEmail(identifier))
	default:
		user, err = s.users.FindByUsername(ctx, validate.NormalizeUsername(identifier))
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("User not found.")
	}
	if err != nil {
		return nil, apperr.Server("Server error.", err)
	}

	now := s.now()
	if user.Locked(now) {
		return nil, apperr.RateLimited("Too many login attempts. Try again later.")
	}
	if !user.Verified() {
		return nil, apperr.NotVerified("Verify your account first.")
	}

	if !utils.CheckPassword(user.PasswordHash, password) {
		user.LoginAttempts++
		if user.LoginAttempts >= MaxLoginAttempts {
			until := now.Add(LoginLockout)
			user.LockUntil = &until
			user.LoginAttempts = 0
			s.log.Warn("login locked", zap.String("user_id", user.ID))
		}
		if err := s.users.Save(ctx, user); err != nil {
			return nil, apperr.Server("Server error.", err)
		}
		return nil, apperr.Unauthorized("Incorrect password.")
	}

	user.LoginAttempts = 0
	user.LockUntil = nil
	user.LastLoginAt = &now
	if err := s.users.Save(ctx, user); err != nil {
		return nil, apperr.Server("Server error.", err)
	}
	return s.open(user)
}

// Refresh mints a new access token from the stored role of the refresh token subject.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, *models.User, error) {
	if refreshToken == "" {
		return "", nil, apperr.Unauthorized("Refresh token required.")
	}
	claims, err := s.tokens.ParseRefresh(refreshToken)
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return "", nil, apperr.RefreshExpired("Refresh token expired. Please login again.")
	case err != nil:
		return "", nil, apperr.InvalidRefresh("Invalid refresh token.")
	}

	user, err := s.users.FindByID(ctx, claims.UID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", nil, apperr.Server("Token refresh failed.", err)
	}
	if user == nil || !user.Verified() {
		return "", nil, apperr.NotVerified("User not found or not verified.")
	}

	token, err := s.tokens.SignAccess(SubjectFor(user))
	if err != nil {
		return "", nil, apperr.Server("Token refresh failed.", err)
	}
	return token, user, nil
}

// RequestReset sends a reset code to a verified contact.
func (s *AuthService) RequestReset(ctx context.Context, c Contact) error {
	if errs := validate.Struct(c); len(errs) > 0 {
		return apperr.Validation("Provide mobile or email.", validate.Names(errs)...)
	}
	ch, contact := pickContact(c)
	user, err := s.findByContact(ctx, ch, contact)
	if err != nil {
		return err
	}
	if !user.ChannelVerified(ch) {
		return apperr.NotFound("User not found.")
	}
	return s.otp.Issue(ctx, user, ch, PurposeReset)
}

// VerifyResetOTP checks a reset code and returns a short-lived reset token bound to it.
func (s *AuthService) VerifyResetOTP(ctx context.Context, c Contact, code string) (string, error) {
	ch, contact := pickContact(c)
	if errs := validate.Struct(codeInput{Contact: contact, Code: code}); len(errs) > 0 {
		return "", codeError(ch, errs)
	}
	user, err := s.findByContact(ctx, ch, contact)
	if err != nil {
		return "", err
	}

	ok, err := s.otp.Match(ctx, user, ch, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.Validation("Invalid or expired OTP.", "otp")
	}

	token, err := s.tokens.SignReset(user.ID, code)
	if err != nil {
		return "", apperr.Server("Failed to sign token.", err)
	}
	return token, nil
}

// ResetPassword sets a new password if the reset token still matches a live code.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if err := invalid(validate.Struct(resetInput{Token: token, Password: password}), resetMessages); err != nil {
		return err
	}

	uid, code, err := s.tokens.ParseReset(token)
	if err != nil {
		return apperr.Validation("Invalid or expired token.", "token")
	}
	user, err := s.users.FindByID(ctx, uid)
	if err != nil {
		return apperr.Validation("Reset session expired.", "token")
	}
	if _, ok := s.otp.Consume(user, code); !ok {
		return apperr.Validation("Reset session expired.", "token")
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return apperr.Server("Failed to hash password.", err)
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = s.now()
	user.LoginAttempts = 0
	user.LockUntil = nil
	if err := s.users.Save(ctx, user); err != nil {
		return apperr.Server("Failed to update user.", err)
	}
	return nil
}

// CheckUsername reports whether a username may be registered.
func (s *AuthService) CheckUsername(ctx context.Context, raw string) error {
	username := validate.NormalizeUsername(raw)
	if !validate.Var(username, "required,username") {
		return apperr.Validation("Invalid username.", "username")
	}
	taken, err := s.users.UsernameTaken(ctx, username, "")
	if err != nil {
		return apperr.Server("Server error", err)
	}
	if taken {
		return apperr.Conflict("Username taken.")
	}
	return nil
}

func (s *AuthService) open(user *models.User) (*Session, error) {
	pair, err := s.tokens.SignPair(SubjectFor(user))
	if err != nil {
		return nil, apperr.Server("Failed to sign tokens.", err)
	}
	return &Session{User: user, Tokens: pair}, nil
}

func (s *AuthService) findByContact(ctx context.Context, ch models.Channel, contact string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	if ch == models.ChannelEmail {
		email := validate.NormalizeEmail(contact)
		if !validate.Email(email) {
			return nil, apperr.Validation("Invalid email.", "email")
		}
		user, err = s.users.FindByEmail(ctx, email)
	} else {
		mobile, ferr := validate.FormatMobile(contact)
		if ferr != nil {
			return nil, apperr.Validation("Invalid mobile format.", "mobile")
		}
		user, err = s.users.FindByMobile(ctx, mobile)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found.")
	}
	if err != nil {
		return nil, apperr.Server("Failed to load user.", err)
	}
	return user, nil
}

// codeError maps a failed contact and code check. A malformed code reads the
// same as a wrong one.
func codeError(ch models.Channel, errs []validate.FieldError) error {
	for _, e := range errs {
		if e.Tag == "required" {
			if ch == models.ChannelEmail {
				return apperr.Validation("Email and OTP required.", "email", "otp")
			}
			return apperr.Validation("Mobile and OTP required.", "mobile", "otp")
		}
	}
	return apperr.Validation("Invalid or expired OTP.", "otp")
}

func pickContact(c Contact) (models.Channel, string) {
	if c.Mobile != "" {
		return models.ChannelMobile, c.Mobile
	}
	return models.ChannelEmail, c.Email
}

func duplicateUserError(err error) error {
	switch repository.DuplicateField(err) {
	case repository.FieldUsername:
		return apperr.Conflict("Username taken.")
	case repository.FieldMobile:
		return apperr.Conflict("Mobile already registered.")
	case repository.FieldEmail:
		return apperr.Conflict("Email already registered.")
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return apperr.Conflict("Account already exists.")
	}
	return apperr.Server("Failed to create user.", err)
}
