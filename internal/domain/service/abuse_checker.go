package service

import "context"

// AbuseCheckResult is the verdict of a remote human-verification check.
type AbuseCheckResult struct {
	Valid  bool
	Score  float64
	Action string
	Errors []string
}

// AbuseChecker validates a client-side human-verification token.
type AbuseChecker interface {
	// Enabled reports whether checks are configured and not bypassed.
	Enabled() bool

	// Verify validates token, optionally bound to the caller's IP.
	Verify(ctx context.Context, token, remoteIP string) (*AbuseCheckResult, error)
}
