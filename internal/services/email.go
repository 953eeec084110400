package services

import (
	"fmt"
	"net/smtp"
	"os"

	"github.com/shopspring/decimal"
)

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func NewEmailService() *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASS"),
		from:     os.Getenv("EMAIL_FROM"),
	}
}

func (s *EmailService) SendEmail(to []string, subject, body string) error {
	if s.host == "" || s.port == "" || s.user == "" || s.password == "" {
		return fmt.Errorf("SMTP credentials not fully configured")
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)

	// Build the message
	message := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", to[0], subject, body))

	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, to, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// SendTransferCompleted notifies a producer that a payout went through
func (s *EmailService) SendTransferCompleted(to string, eventName string, amount decimal.Decimal) error {
	subject := fmt.Sprintf("Payout completed for %s", eventName)
	body := fmt.Sprintf(
		"Your payout of %s for %s has been completed and is on its way to your account.",
		amount.StringFixed(2), eventName)
	return s.SendEmail([]string{to}, subject, body)
}

// SendRefundProcessed notifies a buyer of the outcome of a refund claim
func (s *EmailService) SendRefundProcessed(to string, eventName string, amount decimal.Decimal, approved bool) error {
	if !approved {
		subject := fmt.Sprintf("Refund request for %s", eventName)
		return s.SendEmail([]string{to}, subject,
			fmt.Sprintf("Your refund request for %s has been reviewed and rejected.", eventName))
	}
	subject := fmt.Sprintf("Refund processed for %s", eventName)
	body := fmt.Sprintf("Your refund of %s for %s has been processed.", amount.StringFixed(2), eventName)
	return s.SendEmail([]string{to}, subject, body)
}
