package services

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"

	"go.uber.org/zap"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailService sends OTP codes over SMTP as text with an HTML alternative.
type EmailService struct {
	cfg      EmailConfig
	log      *zap.Logger
	sendMail sendMailFunc
}

func NewEmailService(cfg EmailConfig, log *zap.Logger) *EmailService {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailService{cfg: cfg, log: log, sendMail: smtp.SendMail}
}

func (s *EmailService) SendOTP(ctx context.Context, to, code string, purpose Purpose) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	label := string(purpose)
	if purpose == PurposeRegistration || purpose == "" {
		label = "email verification"
	}

	msg, err := s.buildMessage(to, code, label)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		s.log.Error("otp email failed", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("send otp email: %w", err)
	}
	return nil
}

func (s *EmailService) buildMessage(to, code, label string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	text := fmt.Sprintf("Hi,\n\nYour OTP for %s is %s.\nValid for 30 minutes. Do not share this OTP.\n\n- Team %s",
		label, code, s.cfg.AppName)
	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 500px; margin: auto;">
  <h2>OTP for %s</h2>
  <p>Your one-time password (OTP) is:</p>
  <h1 style="color:#e26936;font-size:32px;">%s</h1>
  <p>This OTP is valid for 30 minutes. Do not share it with anyone.</p>
  <p style="color:gray;">- Team %s</p>
</div>`, label, code, s.cfg.AppName)

	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", text},
		{"text/html; charset=UTF-8", html},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: Your OTP - %s\r\n", s.cfg.AppName)
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}
