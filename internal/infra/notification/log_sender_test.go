package notification

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"readzone/config"
	"readzone/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name        string
		event       *service.MailEvent
		wantSubject string
		wantInBody  []string
	}{
		{
			name: "verification",
			event: &service.MailEvent{
				Type: service.MailEventVerifyEmail, To: "a@example.com", Nickname: "Ann",
				Link: "https://readzone.example/verify-email?token=abc",
			},
			wantSubject: "Verify your ReadZone email address",
			wantInBody:  []string{"Hi Ann", "https://readzone.example/verify-email?token=abc"},
		},
		{
			name: "password reset without nickname",
			event: &service.MailEvent{
				Type: service.MailEventPasswordReset, To: "b@example.com",
				Link: "https://readzone.example/reset-password?token=xyz",
			},
			wantSubject: "Reset your ReadZone password",
			wantInBody:  []string{"Hi reader", "reset-password?token=xyz"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Render(tt.event)
			assert.Equal(t, tt.event.To, msg.To)
			assert.Equal(t, tt.wantSubject, msg.Subject)
			for _, want := range tt.wantInBody {
				assert.Contains(t, msg.Body, want)
			}
		})
	}
}

func TestLogSender_HidesLinkOutsideDebug(t *testing.T) {
	event := &service.MailEvent{
		Type: service.MailEventPasswordReset, To: "reader@example.com",
		Link: "https://readzone.example/reset-password?token=secret-token",
	}

	for _, debug := range []bool{false, true} {
		var buf bytes.Buffer
		cfg := &config.Config{}
		cfg.Env.Debug = debug
		sender := NewLogSender(cfg, slog.New(slog.NewTextHandler(&buf, nil)))

		require.NoError(t, sender.Send(context.Background(), event))
		assert.Contains(t, buf.String(), "r*****@example.com")
		assert.NotContains(t, buf.String(), "reader@example.com")
		assert.Equal(t, debug, bytes.Contains(buf.Bytes(), []byte("secret-token")))
	}
}

func TestLogSender_RejectsIncompleteEvent(t *testing.T) {
	sender := NewLogSender(&config.Config{}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	err := sender.Send(context.Background(), &service.MailEvent{Type: "newsletter", To: "x@example.com", Link: "l"})
	require.Error(t, err)

	err = sender.Send(context.Background(), &service.MailEvent{Type: service.MailEventVerifyEmail, Link: "l"})
	require.Error(t, err)
}
