package common

// EmailSender defines the contract for delivering transactional mail.
// Delivery is best-effort: callers log failures and never roll back state
// transitions because a message could not be sent.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is a single message captured by RecordingEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// RecordingEmail is a test double that keeps sent messages in memory.
type RecordingEmail struct {
	Outbox []Email
}

// Send records the email in memory.
func (m *RecordingEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(string, string, string) error { return nil }
