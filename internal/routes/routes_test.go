package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/bazaardial/internal/cache"
	"github.com/example/bazaardial/internal/repository"
	"github.com/example/bazaardial/internal/routes"
	"github.com/example/bazaardial/internal/services"
	"github.com/example/bazaardial/internal/storage"
	"github.com/example/bazaardial/internal/utils"
)

// codeBox keeps the last code handed to a sender.
type codeBox struct {
	mu   sync.Mutex
	code string
}

func (b *codeBox) SendOTP(_ context.Context, _, code string, _ services.Purpose) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code = code
	return nil
}

func (b *codeBox) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.code
}

type testServer struct {
	app   *fiber.App
	codes *codeBox
	blobs *storage.Memory
}

func newTestServer() *testServer {
	log := zap.NewNop()
	store := repository.NewMemoryStore()
	blobs := storage.NewMemory()
	codes := &codeBox{}
	tokens := utils.NewTokenIssuer("test-secret", "test-refresh", 15*time.Minute, 30*24*time.Hour)
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
		BodyLimit:   100 * 1024 * 1024,
	})
	return &testServer{app: app, codes: codes, blobs: blobs}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", req.Method, req.URL.Path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	var body map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp, body
}

func jsonRequest(method, path string, body any) *http.Request {
	buf, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(buf))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func listingForm(t *testing.T, files map[string]int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"businessName": "Sharma Plumbing",
		"category":     "Plumber",
		"primaryPhone": "9876543210",
		"experience":   "2-5 years",
		"shortDesc":    "Leak repair",
		"fullDesc":     "Residential and commercial plumbing",
		"street":       "12 MG Road",
		"city":         "Indore",
		"state":        "Madhya Pradesh",
		"zipCode":      "452001",
		"openingHour":  "09:30",
		"closingHour":  "18:00",
		"whatsappUrl":  "9876543210",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for field, n := range files {
		for i := 0; i < n; i++ {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="%s%d.png"`, field, field, i))
			h.Set("Content-Type", "image/png")
			part, err := w.CreatePart(h)
			if err != nil {
				t.Fatalf("CreatePart: %v", err)
			}
			_, _ = part.Write([]byte("\x89PNG fake image bytes"))
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func refreshCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "refreshToken" {
			if !c.HttpOnly {
				t.Fatalf("refresh cookie must be httpOnly")
			}
			return c
		}
	}
	t.Fatalf("no refreshToken cookie in response")
	return nil
}

func TestRegisterVerifyCreateListingFlow(t *testing.T) {
	s := newTestServer()

	resp, body := s.do(t, jsonRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "abc123", "password": "Abcdef12", "mobile": "9876543210",
	}))
	if resp.StatusCode != http.StatusOK || body["message"] != "OTP sent." {
		t.Fatalf("register: %d %v", resp.StatusCode, body)
	}
	code := s.codes.last()
	if len(code) != 5 {
		t.Fatalf("expected a 5 digit code, got %q", code)
	}

	resp, body = s.do(t, jsonRequest(http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"mobile": "9876543210", "otp": code,
	}))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-otp: %d %v", resp.StatusCode, body)
	}
	access, _ := body["accessToken"].(string)
	if access == "" {
		t.Fatalf("verify-otp returned no access token: %v", body)
	}
	cookie := refreshCookie(t, resp)

	form, contentType := listingForm(t, map[string]int{"aadhar": 1, "gallery": 2})
	req := httptest.NewRequest(http.MethodPost, "/api/business", form)
	req.Header.Set(fiber.HeaderContentType, contentType)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+access)
	resp, body = s.do(t, req)
	if resp.StatusCode != http.StatusCreated || body["message"] != "Business created" {
		t.Fatalf("create: %d %v", resp.StatusCode, body)
	}
	ownerAccess, _ := body["accessToken"].(string)
	biz, _ := body["business"].(map[string]any)
	id, _ := biz["_id"].(string)
	if id == "" || ownerAccess == "" {
		t.Fatalf("create response missing id or token: %v", body)
	}
	if got := biz["whatsappUrl"]; got != "https://wa.me/919876543210" {
		t.Fatalf("expected normalized whatsapp link, got %v", got)
	}
	if len(s.blobs.Keys()) != 3 {
		t.Fatalf("expected 3 stored blobs, got %d", len(s.blobs.Keys()))
	}

	// The cookie predates the promotion; refresh must read the stored role.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(cookie)
	resp, body = s.do(t, req)
	if resp.StatusCode != http.StatusOK || body["role"] != "owner" || body["businessId"] != id {
		t.Fatalf("refresh: %d %v", resp.StatusCode, body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/business/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+ownerAccess)
	if resp, body = s.do(t, req); resp.StatusCode != http.StatusOK || body["_id"] != id {
		t.Fatalf("me: %d %v", resp.StatusCode, body)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/business/"+id, nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+ownerAccess)
	resp, body = s.do(t, req)
	if resp.StatusCode != http.StatusOK || body["message"] != "Business deleted" || body["token"] == "" {
		t.Fatalf("delete: %d %v", resp.StatusCode, body)
	}
	if len(s.blobs.Keys()) != 0 {
		t.Fatalf("expected listing blobs removed, %d remain", len(s.blobs.Keys()))
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(cookie)
	if resp, body = s.do(t, req); body["role"] != "user" {
		t.Fatalf("expected demoted role after delete, got %d %v", resp.StatusCode, body)
	}
}

func TestCreateListingRejectsLargeGallery(t *testing.T) {
	s := newTestServer()

	s.do(t, jsonRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "abc123", "password": "Abcdef12", "mobile": "9876543210",
	}))
	_, body := s.do(t, jsonRequest(http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"mobile": "9876543210", "otp": s.codes.last(),
	}))
	access, _ := body["accessToken"].(string)

	form, contentType := listingForm(t, map[string]int{"aadhar": 1, "gallery": 13})
	req := httptest.NewRequest(http.MethodPost, "/api/business", form)
	req.Header.Set(fiber.HeaderContentType, contentType)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+access)
	resp, body := s.do(t, req)
	if resp.StatusCode != http.StatusBadRequest || body["message"] != "Max 12 images" {
		t.Fatalf("expected Max 12 images, got %d %v", resp.StatusCode, body)
	}
	if len(s.blobs.Keys()) != 0 {
		t.Fatalf("expected nothing stored, got %d blobs", len(s.blobs.Keys()))
	}
}

func TestErrorShape(t *testing.T) {
	s := newTestServer()

	s.do(t, jsonRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"username": "abc123", "password": "Abcdef12", "email": "a@example.com",
	}))

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{
			name:   "username taken",
			req:    httptest.NewRequest(http.MethodGet, "/api/auth/check-username?username=ABC123", nil),
			status: http.StatusConflict,
			code:   "CONFLICT",
		},
		{
			name:   "weak password",
			req:    jsonRequest(http.MethodPost, "/api/auth/register", map[string]string{"username": "other1", "password": "abc", "mobile": "9123456789"}),
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "no token",
			req:    httptest.NewRequest(http.MethodGet, "/api/user/profile", nil),
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name:   "unknown listing",
			req:    httptest.NewRequest(http.MethodGet, "/api/business/does-not-exist", nil),
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "refresh without cookie",
			req:    httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil),
			status: http.StatusUnauthorized,
			code:   "",
		},
	}
	for _, tc := range tests {
		resp, body := s.do(t, tc.req)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d %v", tc.name, tc.status, resp.StatusCode, body)
		}
		if msg, _ := body["message"].(string); strings.TrimSpace(msg) == "" {
			t.Fatalf("%s: expected a message, got %v", tc.name, body)
		}
		if tc.code != "" && body["code"] != tc.code {
			t.Fatalf("%s: expected code %s, got %v", tc.name, tc.code, body["code"])
		}
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer()
	resp, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}
