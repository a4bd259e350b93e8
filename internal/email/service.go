package email

import (
	"fmt"
	"net/smtp"

	"ats-optimizer/internal/common/logging"
	"ats-optimizer/internal/config"
)

// Service sends transactional email over SMTP. When SMTP is not configured
// the service degrades to logging, which keeps the reset flow usable in
// development without a mail server.
type Service struct {
	config *config.Config
	logger logging.Logger
}

func NewService(cfg *config.Config, logger logging.Logger) *Service {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

// SendPasswordResetEmail sends the reset link for a freshly issued token.
func (s *Service) SendPasswordResetEmail(toEmail, resetToken string) error {
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.config.FrontendBaseURL, resetToken)

	if !s.config.SMTPEnabled {
		s.logger.Info("SMTP is not configured, logging reset link instead",
			logging.Field{Key: "to", Value: toEmail},
			logging.Field{Key: "reset_link", Value: resetLink})
		return nil
	}

	subject := "Reset your password"
	body := fmt.Sprintf(`Hello,

You have requested to reset your password for CV ATS Optimizer.

Please open the link below to choose a new password:
%s

This link will expire in 1 hour and can be used only once.

If you did not request this password reset, you can safely ignore this email.

The CV ATS Optimizer Team
`, resetLink)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f4f4f4; padding: 20px;">
	<div style="max-width: 600px; margin: 0 auto; background-color: white; padding: 30px; border-radius: 10px;">
		<h2>Reset your password</h2>
		<p>Hello,</p>
		<p>You have requested to reset your password for CV ATS Optimizer.</p>
		<p><a href="%s" style="display: inline-block; padding: 12px 24px; background-color: #2563eb; color: white; text-decoration: none; border-radius: 5px;">Reset Password</a></p>
		<p>Or copy and paste this link into your browser:</p>
		<p><code>%s</code></p>
		<p>This link will expire in 1 hour and can be used only once.</p>
		<p style="color: #666; font-size: 14px;">If you did not request this password reset, you can safely ignore this email.</p>
	</div>
</body>
</html>
`, resetLink, resetLink)

	return s.sendEmail(toEmail, subject, body, htmlBody)
}

// sendEmail sends a multipart/alternative message with plain and HTML parts.
func (s *Service) sendEmail(to, subject, plainBody, htmlBody string) error {
	fromAddr := s.config.SMTPFrom
	if fromAddr == "" {
		fromAddr = s.config.SMTPUser
	}
	from := fromAddr
	if s.config.SMTPFromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.SMTPFromName, fromAddr)
	}

	message := fmt.Sprintf("From: %s\r\n", from)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "MIME-Version: 1.0\r\n"
	message += "Content-Type: multipart/alternative; boundary=\"boundary123\"\r\n"
	message += "\r\n"

	message += "--boundary123\r\n"
	message += "Content-Type: text/plain; charset=\"UTF-8\"\r\n"
	message += "\r\n"
	message += plainBody + "\r\n"

	message += "--boundary123\r\n"
	message += "Content-Type: text/html; charset=\"UTF-8\"\r\n"
	message += "\r\n"
	message += htmlBody + "\r\n"
	message += "--boundary123--"

	var auth smtp.Auth
	if s.config.SMTPUser != "" {
		auth = smtp.PlainAuth("", s.config.SMTPUser, s.config.SMTPPass, s.config.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%s", s.config.SMTPHost, s.config.SMTPPort)
	if err := smtp.SendMail(addr, auth, fromAddr, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
