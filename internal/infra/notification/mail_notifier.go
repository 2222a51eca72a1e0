// Package notification turns account-email requests into mail events for the mail worker.
package notification

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"readzone/config"
	deliverycontext "readzone/internal/delivery/context"
	"readzone/internal/domain/service"
	"readzone/internal/util"
)

const defaultSendTimeout = 10 * time.Second

type mailNotifier struct {
	publisher   service.EventPublisher
	logger      *slog.Logger
	frontendURL string
	verifyPath  string
	resetPath   string
	timeout     time.Duration
}

// NewMailNotifier is the constructor for the mail event Notifier.
func NewMailNotifier(cfg *config.Config, publisher service.EventPublisher, logger *slog.Logger) service.Notifier {
	n := &mailNotifier{
		publisher: publisher,
		logger:    logger,
		timeout:   defaultSendTimeout,
	}
	if cfg.Mail != nil {
		n.frontendURL = strings.TrimRight(cfg.Mail.FrontendURL, "/")
		n.verifyPath = cfg.Mail.VerifyPath
		n.resetPath = cfg.Mail.ResetPath
		if cfg.Mail.SendTimeout > 0 {
			n.timeout = cfg.Mail.SendTimeout
		}
	}

	return n
}

func (n *mailNotifier) SendVerificationEmail(ctx context.Context, email, nickname, token string) {
	n.publish(ctx, &service.MailEvent{
		Type:     service.MailEventVerifyEmail,
		To:       email,
		Nickname: nickname,
		Link:     n.link(n.verifyPath, token),
		Token:    token,
	})
}

func (n *mailNotifier) SendPasswordResetEmail(ctx context.Context, email, nickname, token string) {
	n.publish(ctx, &service.MailEvent{
		Type:     service.MailEventPasswordReset,
		To:       email,
		Nickname: nickname,
		Link:     n.link(n.resetPath, token),
		Token:    token,
	})
}

// publish hands the event off on a context detached from the request, so the
// caller returns immediately and a slow broker cannot outlive the send timeout.
func (n *mailNotifier) publish(ctx context.Context, event *service.MailEvent) {
	if event.To == "" {
		return
	}

	event.RequestID = deliverycontext.GetRequestIDFromContext(ctx)
	log := deliverycontext.GetLoggerOrDefault(ctx, n.logger)
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)

	go func() {
		defer cancel()

		if err := n.publisher.PublishMailEvent(sendCtx, event); err != nil {
			log.Warn("Failed to publish mail event",
				slog.String("type", string(event.Type)),
				slog.String("to", util.MaskEmail(event.To)),
				slog.Any("error", err),
			)

			return
		}

		log.Debug("Mail event published", slog.String("type", string(event.Type)))
	}()
}

func (n *mailNotifier) link(path, token string) string {
	return n.frontendURL + path + "?token=" + url.QueryEscape(token)
}
