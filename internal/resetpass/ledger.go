package resetpass

import (
	"context"
	"time"

	"ats-optimizer/internal/auth"
	"ats-optimizer/internal/common/errors"
	"ats-optimizer/internal/common/logging"
	"ats-optimizer/internal/storage"
)

// TokenTTL is how long a reset token stays redeemable.
const TokenTTL = time.Hour

// Mailer delivers the reset link. Implemented by the email service.
type Mailer interface {
	SendPasswordResetEmail(toEmail, resetToken string) error
}

// Ledger runs the password reset flow: issue a single-use token, deliver it
// out of band, and redeem it exactly once.
type Ledger struct {
	storage storage.Storage
	mailer  Mailer
	logger  logging.Logger

	// now is replaceable in tests
	now func() time.Time
}

func NewLedger(store storage.Storage, mailer Mailer) *Ledger {
	return &Ledger{
		storage: store,
		mailer:  mailer,
		logger:  logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "resetpass"}),
		now:     time.Now,
	}
}

// Request issues a reset token for the account behind email and mails the
// link. An unknown email returns nil just like a known one; the caller's
// response must not reveal whether the account exists. Reissuing invalidates
// every earlier outstanding token, so only the latest link works.
func (l *Ledger) Request(ctx context.Context, email string) error {
	user, err := l.storage.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			return nil
		}
		return err
	}

	secret, err := auth.NewSecret()
	if err != nil {
		return err
	}

	if err := l.storage.InvalidateResetTokens(ctx, user.ID); err != nil {
		return err
	}

	token := &storage.ResetToken{
		UserID:    user.ID,
		TokenHash: auth.HashSecret(secret),
		ExpiresAt: l.now().Add(TokenTTL),
	}
	if err := l.storage.CreateResetToken(ctx, token); err != nil {
		return err
	}

	// Delivery happens off the request path; a slow or failing mail server
	// must not change the response time the caller observes.
	go func() {
		if err := l.mailer.SendPasswordResetEmail(user.Email, secret); err != nil {
			l.logger.Error("failed to send password reset email", err,
				logging.Field{Key: "user_id", Value: user.ID})
		}
	}()

	return nil
}

// Consume redeems a reset token and sets the new password. Expired, unknown
// and already-used tokens are indistinguishable to the caller.
func (l *Ledger) Consume(ctx context.Context, token, newPassword string) error {
	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = l.storage.ConsumeResetToken(ctx, auth.HashSecret(token), passwordHash)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeNotFound) {
			return errors.InvalidTokenError()
		}
		return err
	}
	return nil
}
