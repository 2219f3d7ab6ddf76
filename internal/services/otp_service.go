package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/apperr"
	"github.com/example/bazaardial/internal/cache"
	"github.com/example/bazaardial/internal/models"
	"github.com/example/bazaardial/internal/repository"
)

const (
	OTPTTL            = 30 * time.Minute
	MaxOTPAttempts    = 3
	OTPAttemptLockout = 15 * time.Minute
	ResendCooldown    = 2 * time.Minute
	SendRateWindow    = 2 * time.Minute
	MaxSendsPerWindow = 3
)

// Purpose tells the sender why a code is being delivered.
type Purpose string

const (
	PurposeRegistration Purpose = "registration"
	PurposeLogin        Purpose = "login"
	PurposeReset        Purpose = "reset"
	PurposeResend       Purpose = "resend"
)

// OTPSender delivers a code to a single channel address.
type OTPSender interface {
	SendOTP(ctx context.Context, to, code string, purpose Purpose) error
}

// OTPService issues and checks one-time codes held on the user record.
type OTPService struct {
	users   repository.UserStore
	senders map[models.Channel]OTPSender
	rate    cache.Store
	log     *zap.Logger
	now     func() time.Time
}

// NewOTPService wires the store, the per-channel senders and the send-rate store.
func NewOTPService(users repository.UserStore, sms, email OTPSender, rate cache.Store, log *zap.Logger) *OTPService {
	return &OTPService{
		users: users,
		senders: map[models.Channel]OTPSender{
			models.ChannelMobile: sms,
			models.ChannelEmail:  email,
		},
		rate: rate,
		log:  log,
		now:  time.Now,
	}
}

// Issue generates a fresh code for ch, persists it and dispatches it.
func (s *OTPService) Issue(ctx context.Context, u *models.User, ch models.Channel, purpose Purpose) error {
	to := u.Contact(ch)
	if to == "" {
		return apperr.Validation(fmt.Sprintf("No %s on file.", ch), string(ch))
	}
	if ch == models.ChannelMobile {
		if err := s.checkSendRate(ctx, to); err != nil {
			return err
		}
	}

	code, err := generateOTP()
	if err != nil {
		return apperr.Server("Failed to generate OTP.", err)
	}
	if u.OTP == nil {
		u.OTP = make(map[models.Channel]*models.OTPRecord)
	}
	u.OTP[ch] = &models.OTPRecord{Code: code, ExpiresAt: s.now().Add(OTPTTL)}
	if err := s.users.Save(ctx, u); err != nil {
		return apperr.Server("Failed to store OTP.", err)
	}

	sender := s.senders[ch]
	if sender == nil {
		return apperr.Delivery("No sender configured for "+string(ch)+".", nil)
	}
	if err := sender.SendOTP(ctx, to, code, purpose); err != nil {
		s.log.Warn("otp delivery failed",
			zap.String("channel", string(ch)),
			zap.String("user_id", u.ID),
			zap.Error(err),
		)
		return apperr.Delivery("Failed to send OTP.", err)
	}
	return nil
}

// Resend reissues a code unless the previous one was sent within ResendCooldown.
func (s *OTPService) Resend(ctx context.Context, u *models.User, ch models.Channel) error {
	if rec := u.OTP[ch]; rec != nil && !rec.ExpiresAt.IsZero() {
		lastSent := rec.ExpiresAt.Add(-OTPTTL)
		if s.now().Sub(lastSent) < ResendCooldown {
			return apperr.TooSoon("Wait 2 minutes before resending.")
		}
	}
	return s.Issue(ctx, u, ch, PurposeResend)
}

// Verify consumes a matching unexpired code and marks ch verified.
func (s *OTPService) Verify(ctx context.Context, u *models.User, ch models.Channel, code string) (bool, error) {
	ok, err := s.check(ctx, u, ch, code)
	if err != nil || !ok {
		return false, err
	}
	delete(u.OTP, ch)
	u.MarkVerified(ch)
	if err := s.users.Save(ctx, u); err != nil {
		return false, apperr.Server("Failed to update user.", err)
	}
	return true, nil
}

// Match checks code with the same attempt accounting as Verify but leaves it in place.
func (s *OTPService) Match(ctx context.Context, u *models.User, ch models.Channel, code string) (bool, error) {
	return s.check(ctx, u, ch, code)
}

// Consume clears whichever slot holds code, if it is still valid. The caller persists u.
func (s *OTPService) Consume(u *models.User, code string) (models.Channel, bool) {
	now := s.now()
	for ch, rec := range u.OTP {
		if rec != nil && codesEqual(rec.Code, code) && !now.After(rec.ExpiresAt) {
			delete(u.OTP, ch)
			return ch, true
		}
	}
	return "", false
}

func (s *OTPService) check(ctx context.Context, u *models.User, ch models.Channel, code string) (bool, error) {
	rec := u.OTP[ch]
	now := s.now()
	if rec != nil && rec.Code != "" && codesEqual(rec.Code, code) && !now.After(rec.ExpiresAt) {
		return true, nil
	}

	// The lockout is recorded for auditing; callers do not refuse attempts while it is set.
	if rec == nil {
		rec = &models.OTPRecord{}
		if u.OTP == nil {
			u.OTP = make(map[models.Channel]*models.OTPRecord)
		}
		u.OTP[ch] = rec
	}
	rec.Attempts++
	if rec.Attempts >= MaxOTPAttempts {
		until := now.Add(OTPAttemptLockout)
		rec.AttemptsLockUntil = &until
	}
	if err := s.users.Save(ctx, u); err != nil {
		return false, apperr.Server("Failed to update user.", err)
	}
	return false, nil
}

func (s *OTPService) checkSendRate(ctx context.Context, mobile string) error {
	key := "otp-rate:" + mobile
	raw, ok, err := s.rate.Get(ctx, key)
	if err != nil {
		s.log.Warn("send-rate lookup failed", zap.Error(err))
		return nil
	}
	if !ok {
		return s.rate.Set(ctx, key, "1", SendRateWindow)
	}

	count, _ := strconv.Atoi(raw)
	ttl, err := s.rate.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		ttl = SendRateWindow
	}
	if count >= MaxSendsPerWindow {
		wait := int(math.Ceil(ttl.Seconds()))
		return apperr.RateLimited(fmt.Sprintf("Too many OTP requests. Try again in %ds.", wait))
	}
	return s.rate.Set(ctx, key, strconv.Itoa(count+1), ttl)
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// generateOTP returns a 5-digit code in [10000, 99999].
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(10000+n.Int64(), 10), nil
}
