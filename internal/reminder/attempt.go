package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/textkit"
)

// Attempt performs exactly one delivery attempt for a due item and records
// the outcome. Failures are contained here: they turn into a persisted
// FAILED status plus a log event and never propagate to the caller.
func (s *Service) Attempt(ctx context.Context, it Item) {
	// Re-check against the store first: the command layer may have deleted
	// or edited the item between selection and attempt.
	fresh, err := s.Get(ctx, it.ID)
	if errors.Is(err, ErrNotFound) {
		s.log.Debug("reminder vanished before attempt, skipping", logx.Int64("id", it.ID))
		return
	}
	if err != nil {
		s.log.Warn("reminder re-check failed, will retry next tick", logx.Int64("id", it.ID), logx.Err(err))
		return
	}
	if fresh.Status != StatusWaiting {
		s.log.Debug("reminder no longer waiting, skipping",
			logx.Int64("id", it.ID), logx.String("status", string(fresh.Status)))
		return
	}
	it = fresh

	actx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	rcpt, err := s.courier.ResolveRecipient(actx, it.RecipientID, it.ChatID)
	if err != nil {
		s.fail(ctx, it, "resolve", err, "unable to remind user: recipient out of the bot's reach")
		return
	}

	text := s.payload(actx, it)

	_, err = s.courier.SendText(actx, kit.ChatTarget{ChatID: rcpt.ID}, text, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		reason := "transport"
		msg := "unable to remind user: send failed"
		if errors.Is(err, kit.ErrDeliveryDenied) {
			reason = "denied"
			msg = "unable to remind user: blocked PM or not enough permissions"
		}
		s.fail(ctx, it, reason, err, msg)
		return
	}

	it.Status = StatusReminded
	if err := s.store.Update(ctx, it); err != nil {
		// Delivered but not recorded; surface loudly, the poller would
		// otherwise re-attempt next tick.
		s.log.Error("reminder delivered but status write failed", logx.Int64("id", it.ID), logx.Err(err))
		return
	}

	s.log.Debug("reminder sent",
		logx.Int64("id", it.ID),
		logx.Int64("recipient", rcpt.ID),
		logx.String("recipient_name", rcpt.DisplayName))
	s.publish(EventDelivered, it.ID)
}

func (s *Service) fail(ctx context.Context, it Item, reason string, cause error, msg string) {
	it.Status = StatusFailed
	if err := s.store.Update(ctx, it); err != nil {
		s.log.Error("reminder status write failed", logx.Int64("id", it.ID), logx.Err(err))
	}
	s.log.Warn(msg,
		logx.Int64("id", it.ID),
		logx.Int64("recipient", it.RecipientID),
		logx.Int64("chat_id", it.ChatID),
		logx.Err(cause))
	s.publish(EventFailed, FailData{ID: it.ID, Reason: reason})
}

// payload renders the delivery message. Author attribution is included only
// when the reminder was created for somebody else.
func (s *Service) payload(ctx context.Context, it Item) string {
	var b strings.Builder
	b.WriteString("<b>⏰ Reminder</b>\n")

	if it.AuthorID != it.RecipientID {
		name := fmt.Sprintf("user %d", it.AuthorID)
		if author, err := s.courier.ResolveRecipient(ctx, it.AuthorID, it.ChatID); err == nil && author.DisplayName != "" {
			name = author.DisplayName
		}
		b.WriteString("Reminded by ")
		b.WriteString(textkit.EscapeHTML(name))
		b.WriteString("\n")
	}
	if it.Message != "" {
		b.WriteString("\n")
		b.WriteString(textkit.EscapeHTML(it.Message))
		b.WriteString("\n")
	}
	if it.Permalink != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(`<a href="%s">origin</a>`, textkit.EscapeHTML(it.Permalink)))
	}
	return strings.TrimRight(b.String(), "\n")
}
