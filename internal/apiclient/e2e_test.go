package apiclient_test

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/apiclient"
	"github.com/example/bazaardial/internal/cache"
	"github.com/example/bazaardial/internal/listingform"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/routes"
	"github.com/example/bazaardial/internal/services"
	"github.com/example/bazaardial/internal/storage"
	"github.com/example/bazaardial/internal/utils"
)

type lastCode struct {
	mu   sync.Mutex
	code string
}

func (l *lastCode) SendOTP(_ context.Context, _, code string, _ services.Purpose) error {
	l.mu.Lock()
	l.code = code
	l.mu.Unlock()
	return nil
}

func (l *lastCode) get() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.code
}

func startServer(t *testing.T) (string, *lastCode) {
	t.Helper()
	log := zap.NewNop()
	store := repository.NewMemoryStore()
	blobs := storage.NewMemory()
	codes := &lastCode{}
	tokens := utils.NewTokenIssuer("test-secret", "test-refresh", 15*time.Minute, 24*time.Hour)
	otp := services.NewOTPService(store.Users(), codes, codes, cache.NewMemory(), log)

	app := routes.NewApp(routes.Deps{
		Auth:        services.NewAuthService(store.Users(), otp, tokens, log),
		Listings:    services.NewListingService(store, blobs, tokens, log),
		Profiles:    services.NewProfileService(store, blobs, log),
		Tokens:      tokens,
		Users:       store.Users(),
		Blobs:       blobs,
		Log:         log,
		AppName:     "Bazaardial",
		FrontendURL: "http://localhost:3000",
		BodyLimit:   16 * 1024 * 1024,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String() + "/api", codes
}

func TestFormSubmitThroughClient(t *testing.T) {
	base, codes := startServer(t)
	ctx := context.Background()

	c, err := apiclient.New(base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Register(ctx, "abc123", "Abcdef12", "9876543210", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	user, err := c.VerifyMobile(ctx, "9876543210", codes.get())
	if err != nil {
		t.Fatalf("VerifyMobile: %v", err)
	}
	if user.Role != "user" || c.Token() == "" {
		t.Fatalf("unexpected session %+v", user)
	}

	form := listingform.New(listingform.NewMemoryStorage(), zap.NewNop())
	for field, value := range map[string]string{
		"businessName": "Sharma Plumbing",
		"category":     "Plumber",
		"primaryPhone": "9876543210",
		"experience":   "2-5 years",
		"shortDesc":    "Leak repair",
		"fullDesc":     "Residential and commercial plumbing",
		"whatsappUrl":  "9876543210",
		"street":       "12 MG Road",
		"zipCode":      "452001",
		"openingHourH": "09",
		"openingHourM": "30",
		"closingHourH": "07",
		"closingHourM": "00",
	} {
		form.Set(field, value)
	}
	form.Attach(listingform.FieldAadhar, &listingform.File{Name: "id.png", ContentType: "image/png", Data: bytes.Repeat([]byte{1}, 64)})

	// A stale token forces the create through the refresh path.
	c.SetToken("stale")
	token, err := form.Submit(ctx, c)
	if err != nil {
		t.Fatalf("Submit: %v (alert %q, errors %v)", err, form.Alert(), form.Errors())
	}
	if token == "" || c.Token() != token {
		t.Fatalf("expected owner token stored on the client")
	}

	listing, err := c.MyListing(ctx)
	if err != nil {
		t.Fatalf("MyListing: %v", err)
	}
	if listing.OpeningHour != "09:30" || listing.ClosingHour != "19:00" || listing.AadharURL == "" {
		t.Fatalf("unexpected listing %+v", listing)
	}
	if listing.WhatsappURL != "https://wa.me/919876543210" {
		t.Fatalf("unexpected whatsapp link %q", listing.WhatsappURL)
	}

	if err := c.DeleteListing(ctx, listing.ID); err != nil {
		t.Fatalf("DeleteListing: %v", err)
	}
	if _, err := c.MyListing(ctx); err == nil {
		t.Fatalf("expected no listing after delete")
	}
}
