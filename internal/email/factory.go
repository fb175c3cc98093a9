package email

import "outreach_backend/platform/config"

// NewSender returns the SMTP sender, or NoopSender when email is disabled.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetFromEmail(),
		cfg.GetFromName(),
	)
}

// NewInbox returns the IMAP inbox, or NoopInbox when IMAP is not configured.
func NewInbox(cfg config.IMAPConfig) Inbox {
	if !cfg.IsIMAPEnabled() {
		return NoopInbox{}
	}
	return NewIMAPInbox(
		cfg.GetIMAPHost(),
		cfg.GetIMAPPort(),
		cfg.GetIMAPUsername(),
		cfg.GetIMAPPassword(),
		cfg.GetIMAPFolder(),
	)
}
