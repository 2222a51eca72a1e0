package notification

import (
	"context"
	"fmt"
	"log/slog"

	"readzone/config"
	deliverycontext "readzone/internal/delivery/context"
	"readzone/internal/domain/service"
	"readzone/internal/util"
)

// Message is a rendered account email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Render turns a mail event into the email the recipient will read.
func Render(event *service.MailEvent) Message {
	name := event.Nickname
	if name == "" {
		name = "reader"
	}

	switch event.Type {
	case service.MailEventPasswordReset:
		return Message{
			To:      event.To,
			Subject: "Reset your ReadZone password",
			Body: fmt.Sprintf("Hi %s,\n\nSomeone asked to reset the password of your ReadZone account. "+
				"Open the link below to choose a new one:\n\n%s\n\n"+
				"If this was not you, you can ignore this email.\n", name, event.Link),
		}
	default:
		return Message{
			To:      event.To,
			Subject: "Verify your ReadZone email address",
			Body: fmt.Sprintf("Hi %s,\n\nWelcome to ReadZone! Confirm your email address with the link below:\n\n%s\n",
				name, event.Link),
		}
	}
}

// logSender writes rendered mails to the log instead of an SMTP relay.
// The link is only logged in debug mode since it carries a live token.
type logSender struct {
	logger    *slog.Logger
	debugMode bool
}

// NewLogSender is the constructor for the log-backed MailSender.
func NewLogSender(cfg *config.Config, logger *slog.Logger) service.MailSender {
	return &logSender{
		logger:    logger,
		debugMode: cfg.Env.Debug,
	}
}

func (s *logSender) Send(ctx context.Context, event *service.MailEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	msg := Render(event)
	attrs := []slog.Attr{
		slog.String("type", string(event.Type)),
		slog.String("to", util.MaskEmail(msg.To)),
		slog.String("subject", msg.Subject),
	}
	if s.debugMode {
		attrs = append(attrs, slog.String("body", msg.Body))
	}

	deliverycontext.GetLoggerOrDefault(ctx, s.logger).LogAttrs(ctx, slog.LevelInfo, "Mail delivered to log", attrs...)

	return nil
}
