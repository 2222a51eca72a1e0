package util

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaskEmail keeps the first character of the local part and the domain,
// replacing the rest of the local part with at least one asterisk
// ("alice@example.com" -> "a****@example.com").
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}

	local, domain, found := strings.Cut(email, "@")
	first, size := utf8.DecodeRuneInString(local)
	if size == 0 {
		return "*@" + domain
	}

	stars := max(1, utf8.RuneCountInString(local)-1)
	masked := string(first) + strings.Repeat("*", stars)
	if !found {
		return masked
	}

	return masked + "@" + domain
}

// FormatExpiresIn renders a lifetime the way it is shown to users: whole
// hours as "24h", whole minutes as "30m", anything else via FormatDuration.
func FormatExpiresIn(duration time.Duration) string {
	switch {
	case duration >= time.Hour && duration%time.Hour == 0:
		return fmt.Sprintf("%dh", int(duration.Hours()))
	case duration >= time.Minute && duration%time.Minute == 0:
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	default:
		return FormatDuration(duration)
	}
}

// FormatDuration formats duration into human readable format (e.g., "1h30m", "5m10s", "45s").
func FormatDuration(duration time.Duration) string {
	duration = duration.Round(time.Second)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	}

	if duration < time.Hour {
		m := int(duration.Minutes())
		s := int(duration.Seconds()) % 60

		return fmt.Sprintf("%dm%ds", m, s)
	}

	h := int(duration.Hours())
	m := int(duration.Minutes()) % 60

	return fmt.Sprintf("%dh%dm", h, m)
}
