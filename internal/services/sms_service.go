package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const smsTemplate = "Hi, Your OTP for verify your mobile number is %s From %s. " +
	"Valid for 30 minutes. Please do not share this OTP. " +
	"Regards, GNOSISACCRUE Team"

// SMSConfig holds the WPSenders gateway settings.
type SMSConfig struct {
	APIURL     string
	APIKey     string
	TemplateID string
	AppName    string
	Timeout    time.Duration
	Retries    int
}

// SMSService posts OTP messages to the SMS gateway.
type SMSService struct {
	cfg     SMSConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
	backoff time.Duration
}

// NewSMSService creates a gateway client with a bounded timeout and a circuit breaker.
func NewSMSService(cfg SMSConfig, log *zap.Logger) *SMSService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	st := gobreaker.Settings{
		Name:        "sms-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &SMSService{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
		backoff: time.Second,
	}
}

type smsResponse struct {
	Status   any    `json:"status"`
	Message  string `json:"message"`
	Response struct {
		ErrorMessage string `json:"ErrorMessage"`
	} `json:"response"`
}

// SendOTP delivers code to a normalized 10-digit mobile number.
func (s *SMSService) SendOTP(ctx context.Context, to, code string, _ Purpose) error {
	form := url.Values{}
	form.Set("api_key", s.cfg.APIKey)
	form.Set("number", to)
	form.Set("message", fmt.Sprintf(smsTemplate, code, s.cfg.AppName))
	if s.cfg.TemplateID != "" {
		form.Set("template_id", s.cfg.TemplateID)
	}
	body := form.Encode()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Retries+1; attempt++ {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.post(ctx, body)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt > s.cfg.Retries || errors.Is(err, gobreaker.ErrOpenState) {
			break
		}

		s.log.Warn("sms attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	s.log.Error("sms failed", zap.Error(lastErr))
	return fmt.Errorf("SMS failed: %w", lastErr)
}

func (s *SMSService) post(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("sms request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway status %d: %s", resp.StatusCode, string(raw))
	}

	var data smsResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("sms response unmarshal: %w", err)
	}
	inner := data.Response.ErrorMessage
	if !truthy(data.Status) || strings.Contains(strings.ToLower(inner), "invalid template") {
		switch {
		case inner != "":
			return errors.New(inner)
		case data.Message != "":
			return errors.New(data.Message)
		default:
			return errors.New("unknown SMS error")
		}
	}
	return nil
}

// truthy accepts the status shapes the gateway has been seen to return.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(t) {
		case "true", "1", "success", "ok":
			return true
		}
	}
	return false
}
