package utils

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/datingdna/datingdna_backend/models"
)

// SMTPMailer sends payout export notifications to the finance address.
type SMTPMailer struct {
	host    string
	port    int
	user    string
	pass    string
	finance string
}

// NewSMTPMailer reads SMTP settings from the environment. Returns nil when
// no finance address is configured, which disables export emails.
func NewSMTPMailer() *SMTPMailer {
	finance := os.Getenv("FINANCE_EMAIL")
	if finance == "" {
		log.Println("FINANCE_EMAIL not set, payout export emails disabled")
		return nil
	}

	smtpPort := 2525
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &smtpPort)
	}

	return &SMTPMailer{
		host:    os.Getenv("SMTP_HOST"),
		port:    smtpPort,
		user:    os.Getenv("SMTP_USER"),
		pass:    os.Getenv("SMTP_PASS"),
		finance: finance,
	}
}

// SendPayoutExport mails the payment-instruction rows for an exported payout.
func (m *SMTPMailer) SendPayoutExport(payout *models.Payout, rows []models.PaymentInstruction) error {
	subject := fmt.Sprintf("Payout export %s: %d partners, %d cents total",
		payout.ID.Hex(), len(rows), payout.TotalCents)

	var body strings.Builder
	body.WriteString(fmt.Sprintf("Payout period %s to %s\n\n",
		payout.PeriodStart.Format("2006-01-02"), payout.PeriodEnd.Format("2006-01-02")))
	for _, row := range rows {
		body.WriteString(fmt.Sprintf("%s\t%s\t%s\t%s\t%d %s\n",
			row.PartnerCode, row.PartnerName, row.Email, row.PayoutMethod, row.AmountCents, row.Currency))
		if row.Note != "" {
			body.WriteString("\t" + row.Note + "\n")
		}
	}
	body.WriteString("\nAmounts are in minor currency units.\n")

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.user)
	msg.SetHeader("To", m.finance)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body.String())

	d := gomail.NewDialer(m.host, m.port, m.user, m.pass)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send payout export email: %w", err)
	}
	return nil
}
