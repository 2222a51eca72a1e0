package util

import (
	"testing"
	"time"
)

func TestMaskEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{name: "regular address", email: "alice@example.com", expected: "a****@example.com"},
		{name: "single character local part", email: "a@example.com", expected: "a*@example.com"},
		{name: "two character local part", email: "ab@x.com", expected: "a*@x.com"},
		{name: "surrounding spaces", email: "  bob@x.com ", expected: "b**@x.com"},
		{name: "no at sign", email: "alice", expected: "a****"},
		{name: "empty local part", email: "@x.com", expected: "*@x.com"},
		{name: "empty", email: "", expected: ""},
		{name: "multibyte", email: "ñandu@x.com", expected: "ñ****@x.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := MaskEmail(tt.email); got != tt.expected {
				t.Fatalf("MaskEmail(%q) = %s, want %s", tt.email, got, tt.expected)
			}
		})
	}
}

func TestFormatExpiresIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "whole hours", duration: 24 * time.Hour, expected: "24h"},
		{name: "whole minutes", duration: 30 * time.Minute, expected: "30m"},
		{name: "mixed", duration: time.Hour + 30*time.Minute, expected: "90m"},
		{name: "seconds", duration: 45 * time.Second, expected: "45s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := FormatExpiresIn(tt.duration); got != tt.expected {
				t.Fatalf("FormatExpiresIn(%s) = %s, want %s", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "under one minute", duration: 45 * time.Second, expected: "45s"},
		{name: "rounded second to minute", duration: 59*time.Second + 500*time.Millisecond, expected: "1m0s"},
		{name: "minutes and seconds", duration: 2*time.Minute + 30*time.Second, expected: "2m30s"},
		{name: "hours and minutes", duration: time.Hour + 30*time.Minute, expected: "1h30m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := FormatDuration(tt.duration); got != tt.expected {
				t.Fatalf("FormatDuration(%s) = %s, want %s", tt.duration, got, tt.expected)
			}
		})
	}
}
