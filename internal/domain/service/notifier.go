package service

import "context"

// Notifier sends account emails. Calls are best-effort and never report failure.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, nickname, token string)
	SendPasswordResetEmail(ctx context.Context, email, nickname, token string)
}
