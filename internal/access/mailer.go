package access

import (
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// Mailer sends transactional notifications over SMTP. A nil Mailer (no SMTP
// host configured) disables sending without touching call sites.
type Mailer struct {
	host    string
	port    int
	user    string
	pass    string
	from    string
	siteURL string
}

func NewMailer(host string, port int, user, pass, from, siteURL string) *Mailer {
	if host == "" {
		return nil
	}
	return &Mailer{host: host, port: port, user: user, pass: pass, from: from, siteURL: siteURL}
}

// SendApprovalNotice tells a user their access request was approved.
func (m *Mailer) SendApprovalNotice(to string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject("Your TakeNap access request was approved")
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(
		"Your access request has been approved.\n\nSign in at %s to start browsing the ad library.\n", m.siteURL))

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.user),
		gomail.WithPassword(m.pass),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSend(msg)
}
