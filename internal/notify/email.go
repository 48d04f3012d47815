// Package notify sends report-delivery and operational e-mails over
// SMTP, used by the Report Generator to deliver an "EMAIL" artifact and
// by the workers and the stall sweeper to alert operators of failed jobs.
package notify

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Mailer sends e-mails through a configured SMTP relay.
type Mailer struct {
	dialer      *gomail.Dialer
	fromAddress string
}

// NewMailer builds a Mailer from SMTP connection details.
func NewMailer(host string, port int, user, password, fromAddress string) *Mailer {
	return &Mailer{
		dialer:      gomail.NewDialer(host, port, user, password),
		fromAddress: fromAddress,
	}
}

// SendReport delivers the analysis report notification e-mail to
// recipient, with the named artifacts attached inline as links rather
// than binary attachments (the recipient is expected to fetch the
// artifact URLs, which may be large).
func (m *Mailer) SendReport(jobID, recipient string, artifactLinks map[string]string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.fromAddress)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", fmt.Sprintf("Gene set analysis %s is ready", jobID))
	msg.SetBody("text/plain", reportBody(jobID, artifactLinks))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("notify: send report email for %s: %w", jobID, err)
	}
	return nil
}

// SendOperatorAlert notifies errorAddress (MAIL_ERROR_ADDRESS) that a
// job failed: an analysis or dataset-load failure, a stall promoted to
// failed by the sweeper, or a report job whose every artifact failed.
func (m *Mailer) SendOperatorAlert(errorAddress, jobID, reason string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.fromAddress)
	msg.SetHeader("To", errorAddress)
	msg.SetHeader("Subject", fmt.Sprintf("Report generation failed for %s", jobID))
	msg.SetBody("text/plain", fmt.Sprintf("Report job %s failed: %s", jobID, reason))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("notify: send operator alert for %s: %w", jobID, err)
	}
	return nil
}

func reportBody(jobID string, artifactLinks map[string]string) string {
	body := fmt.Sprintf("Your gene set analysis report for job %s is ready.\n\n", jobID)
	for name, url := range artifactLinks {
		body += fmt.Sprintf("%s: %s\n", name, url)
	}
	return body
}
