// Package notify's email sender, adapted near-verbatim from
// internal/services/email/email.go's OAuth2 XOAUTH2 SMTP client, generalized
// to a configurable host/port/from address instead of hardcoded
// GOOGLE_CLIENT_ID-style env lookups at the call site.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// SMTPConfig holds the OAuth2 SMTP settings used to send failure emails.
type SMTPConfig struct {
	Host         string
	Port         int
	From         string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// SMTPSender implements EmailSender over an OAuth2-authenticated SMTP
// connection.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender builds an SMTPSender bound to cfg.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) accessToken() (string, error) {
	if s.cfg.ClientID == "" || s.cfg.ClientSecret == "" || s.cfg.RefreshToken == "" {
		return "", fmt.Errorf("missing OAuth2 credentials for SMTP sender")
	}
	conf := oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"https://mail.google.com/",
			"https://www.googleapis.com/auth/gmail.send",
		},
	}
	src := conf.TokenSource(context.Background(), &oauth2.Token{RefreshToken: s.cfg.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// xoauth2Auth implements smtp.Auth for OAuth2-authenticated SMTP.
type xoauth2Auth struct {
	username string
	token    string
}

func (a *xoauth2Auth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	auth := fmt.Sprintf("user=%s\001auth=Bearer %s\001\001", a.username, a.token)
	return "XOAUTH2", []byte(auth), nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return nil, fmt.Errorf("unexpected server challenge: %s", string(fromServer))
	}
	return nil, nil
}

// SendEmail sends an HTML email over a TLS SMTP connection authenticated via
// OAuth2 XOAUTH2.
func (s *SMTPSender) SendEmail(to, subject, body string) error {
	token, err := s.accessToken()
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n", s.cfg.From, to, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("TLS connection error: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("SMTP client creation error: %w", err)
	}
	defer client.Close()

	auth := &xoauth2Auth{username: s.cfg.From, token: token}
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authentication error: %w", err)
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM error: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO error: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command error: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("error writing email body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("error closing writer: %w", err)
	}
	return client.Quit()
}
