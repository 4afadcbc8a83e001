package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
	"gopkg.in/gomail.v2"
)

// Message is a rendered notification payload.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// SendResult reports the outcome of one dispatch call. RequestID is assigned
// to every call for log correlation, success or not.
type SendResult struct {
	OK        bool
	MessageID string
	Err       error
	RequestID string
}

// EmailTransport attempts a single delivery through an external channel.
type EmailTransport interface {
	SendMessage(ctx context.Context, msg Message) (messageID string, err error)
}

// EmailDispatcher delivers messages through a transport, retrying exactly
// once after a fixed backoff when the failure looks transient. A second
// failure of any kind is terminal for the call; the caller decides what to
// do about side effects.
type EmailDispatcher struct {
	transport  EmailTransport
	retryDelay time.Duration
}

// NewEmailDispatcher creates a dispatcher around the given transport.
func NewEmailDispatcher(transport EmailTransport) (*EmailDispatcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("email transport is required")
	}
	return &EmailDispatcher{
		transport:  transport,
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// Send attempts delivery, retrying once on transient failure.
func (d *EmailDispatcher) Send(ctx context.Context, msg Message) SendResult {
	requestID := uuid.NewString()

	log.Printf("[EmailDispatcher] [%s] Sending email to: %s", requestID, msg.To)
	messageID, err := d.transport.SendMessage(ctx, msg)
	if err == nil {
		log.Printf("[EmailDispatcher] [%s] Email sent, messageId: %s", requestID, messageID)
		return SendResult{OK: true, MessageID: messageID, RequestID: requestID}
	}

	log.Printf("[EmailDispatcher] [%s] Attempt 1 failed: %v", requestID, err)
	if !isTransientSendError(err) {
		return SendResult{OK: false, Err: err, RequestID: requestID}
	}

	select {
	case <-ctx.Done():
		return SendResult{OK: false, Err: ctx.Err(), RequestID: requestID}
	case <-time.After(d.retryDelay):
	}

	log.Printf("[EmailDispatcher] [%s] Retrying after %v...", requestID, d.retryDelay)
	messageID, err = d.transport.SendMessage(ctx, msg)
	if err != nil {
		log.Printf("[EmailDispatcher] [%s] Attempt 2 failed: %v", requestID, err)
		return SendResult{OK: false, Err: err, RequestID: requestID}
	}

	log.Printf("[EmailDispatcher] [%s] Email sent on retry, messageId: %s", requestID, messageID)
	return SendResult{OK: true, MessageID: messageID, RequestID: requestID}
}

// isTransientSendError classifies retry-worthy failures: connection refused,
// timeout, host unreachable, name resolution failure, or an SMTP protocol
// error reported by the transport.
func isTransientSendError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"timeout",
		"timed out",
		"host is unreachable",
		"no route to host",
		"no such host",
		"smtp",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// BuildVerificationEmail renders the OTP notification, including the
// verification link built from the configured front-end base URL.
func BuildVerificationEmail(toEmail, code, frontendURL string, ttl time.Duration, resend bool) Message {
	subject := "Your Fasal Rakshak OTP"
	if resend {
		subject = "Your Fasal Rakshak OTP (resend)"
	}

	minutes := int(ttl.Minutes())
	link := fmt.Sprintf("%s/verify-otp?email=%s", strings.TrimRight(frontendURL, "/"), url.QueryEscape(toEmail))

	return Message{
		To:      toEmail,
		Subject: subject,
		HTML: fmt.Sprintf(
			"<p>Your Fasal Rakshak OTP is <strong>%s</strong>. It expires in %d minutes.</p><p>Or open: <a href=\"%s\">Verify OTP</a></p>",
			code, minutes, link,
		),
		Text: fmt.Sprintf("Your OTP is %s. It expires in %d minutes. Verify at %s", code, minutes, link),
	}
}

// ResendTransport delivers mail via the Resend REST API.
type ResendTransport struct {
	from   string
	client *resend.Client
}

// NewResendTransport creates a Resend-backed transport.
func NewResendTransport(apiKey, from string) (*ResendTransport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendTransport{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (t *ResendTransport) SendMessage(ctx context.Context, msg Message) (string, error) {
	params := &resend.SendEmailRequest{
		From:    t.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	sent, err := t.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("resend send failed: %w", err)
	}
	return sent.Id, nil
}

// SMTPTransport delivers mail through a configured SMTP endpoint.
type SMTPTransport struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPTransport creates an SMTP-backed transport.
func NewSMTPTransport(host string, port int, username, password, from string) (*SMTPTransport, error) {
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &SMTPTransport{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}, nil
}

func (t *SMTPTransport) SendMessage(ctx context.Context, msg Message) (string, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", t.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	if err := t.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}
	// SMTP does not return a provider message ID.
	return "", nil
}

// NoopTransport logs instead of sending. Used when email is disabled in dev.
type NoopTransport struct{}

func (t *NoopTransport) SendMessage(ctx context.Context, msg Message) (string, error) {
	log.Printf("[EmailTransport] noop send to=%s subject=%q", msg.To, msg.Subject)
	return "noop", nil
}
