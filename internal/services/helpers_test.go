package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/cache"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/storage"
	"github.com/example/bazaardial/internal/utils"
)

type sentCode struct {
	to, code string
	purpose  Purpose
}

// captureSender records every code instead of delivering it.
type captureSender struct {
	mu   sync.Mutex
	sent []sentCode
	fail error
}

func (c *captureSender) SendOTP(_ context.Context, to, code string, purpose Purpose) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, sentCode{to: to, code: code, purpose: purpose})
	return nil
}

func (c *captureSender) last() sentCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return sentCode{}
	}
	return c.sent[len(c.sent)-1]
}

var errGateway = errors.New("gateway down")

type fixture struct {
	store   *repository.MemoryStore
	blobs   *storage.Memory
	sms     *captureSender
	email   *captureSender
	otp     *OTPService
	auth    *AuthService
	listing *ListingService
	profile *ProfileService
	tokens  *utils.TokenIssuer
	clock   *time.Time
}

func newFixture() *fixture {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		store: repository.NewMemoryStore(),
		blobs: storage.NewMemory(),
		sms:   &captureSender{},
		email: &captureSender{},
		clock: &now,
	}
	clock := func() time.Time { return *f.clock }
	log := zap.NewNop()

	f.tokens = utils.NewTokenIssuer("test-secret", "test-refresh", 15*time.Minute, 30*24*time.Hour)
	f.otp = NewOTPService(f.store.Users(), f.sms, f.email, cache.NewMemory().WithClock(clock), log)
	f.otp.now = clock
	f.auth = NewAuthService(f.store.Users(), f.otp, f.tokens, log)
	f.auth.now = clock
	f.listing = NewListingService(f.store, f.blobs, f.tokens, log)
	f.profile = NewProfileService(f.store, f.blobs, log)
	f.profile.now = clock
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}
