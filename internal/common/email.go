package common

// EmailSender abstracts outbound mail so notification code does not care
// which provider is configured.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is one captured outbound message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail records messages instead of sending them. Tests inspect
// Outbox to assert on notification content.
type InMemoryEmail struct {
	Outbox []Email
}

func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender discards every message. Used until a real provider is wired.
type NopEmailSender struct{}

func (NopEmailSender) Send(string, string, string) error { return nil }
