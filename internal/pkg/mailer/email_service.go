package mailer

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

// RoleFailureAlert is what operators need to reconcile a stuck role by hand.
type RoleFailureAlert struct {
	SubscriptionId string
	MemberId       string
	ServerId       string
	RoleId         string
	Action         string
	Attempts       int
	Error          string
}

type IEmailService interface {
	SendRoleFailureAlert(alert RoleFailureAlert) error
}

type emailService struct {
	dialer      *gomail.Dialer
	senderEmail string
	senderName  string
	alertTo     string
}

// NewEmailService returns a no-op sender when SMTP or the alert recipient is not configured.
func NewEmailService(host string, port int, username, password, senderName, alertTo string) IEmailService {
	if host == "" || alertTo == "" {
		return noopEmailService{}
	}
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		senderEmail: username,
		senderName:  senderName,
		alertTo:     alertTo,
	}
}

func (s *emailService) SendRoleFailureAlert(alert RoleFailureAlert) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.senderEmail, s.senderName)
	m.SetHeader("To", s.alertTo)
	m.SetHeader("Subject", fmt.Sprintf("[MemberPass] Role %s failed for subscription %s", alert.Action, alert.SubscriptionId))
	m.SetBody("text/html", renderRoleFailure(alert))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send role failure alert: %w", err)
	}
	return nil
}

func renderRoleFailure(a RoleFailureAlert) string {
	return fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
			<h2>Role %s needs manual reconciliation</h2>
			<p>The payment is settled; only the role on the community server is out of sync.</p>
			<table>
				<tr><td>Subscription</td><td>%s</td></tr>
				<tr><td>Member</td><td>%s</td></tr>
				<tr><td>Server</td><td>%s</td></tr>
				<tr><td>Role</td><td>%s</td></tr>
				<tr><td>Attempts</td><td>%d</td></tr>
				<tr><td>Error</td><td><code>%s</code></td></tr>
			</table>
		</div>
	`,
		html.EscapeString(a.Action),
		html.EscapeString(a.SubscriptionId),
		html.EscapeString(a.MemberId),
		html.EscapeString(a.ServerId),
		html.EscapeString(a.RoleId),
		a.Attempts,
		html.EscapeString(a.Error),
	)
}

type noopEmailService struct{}

func (noopEmailService) SendRoleFailureAlert(RoleFailureAlert) error {
	return nil
}
