package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const helpText = `<b>Commands</b>
/remindme &lt;when&gt; &lt;text&gt; — remind yourself
/remind &lt;user-id&gt; &lt;when&gt; &lt;text&gt; — remind someone else (groups; or reply to them)
/reminders [status] — your reminders
/reminder get &lt;id&gt; — details
/reminder reschedule &lt;id&gt; &lt;when&gt;
/reminder delete &lt;id&gt;
/reminder clean — drop your resolved reminders older than a day

&lt;when&gt;: <code>` + WhenHint + `</code>`

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) {
	cmd, args, ok := splitCommand(m.Text)
	if !ok {
		return
	}
	if !r.allow(m.FromID) {
		r.log.Debug("command rate-limited", logx.Int64("user", m.FromID))
		return
	}

	switch cmd {
	case "/start", "/help":
		r.reply(ctx, m.ChatID, helpText)
	case "/remindme":
		r.cmdRemindMe(ctx, m, args)
	case "/remind":
		r.cmdRemind(ctx, m, args)
	case "/reminders":
		r.cmdList(ctx, m, args)
	case "/reminder":
		r.cmdReminder(ctx, m, args)
	}
}

func (r *Router) cmdRemindMe(ctx context.Context, m *kit.Message, args string) {
	due, text, err := parseSchedule(args, time.Now())
	if err != nil {
		r.reply(ctx, m.ChatID, "Can't read that date. Try: <code>"+WhenHint+"</code>")
		return
	}
	r.create(ctx, m, m.FromID, due, text)
}

func (r *Router) cmdRemind(ctx context.Context, m *kit.Message, args string) {
	if !m.IsGroup {
		r.reply(ctx, m.ChatID, "Use /remindme in private chat.")
		return
	}
	target := m.ReplyToID
	if target == 0 {
		// No reply target: first argument must be a numeric user id.
		head, tail, _ := strings.Cut(args, " ")
		id, err := strconv.ParseInt(head, 10, 64)
		if err != nil || id <= 0 {
			r.reply(ctx, m.ChatID, "Reply to the person's message, or give their user id first.")
			return
		}
		target = id
		args = strings.TrimSpace(tail)
	}
	due, text, err := parseSchedule(args, time.Now())
	if err != nil {
		r.reply(ctx, m.ChatID, "Can't read that date. Try: <code>"+WhenHint+"</code>")
		return
	}
	r.create(ctx, m, target, due, text)
}

func (r *Router) create(ctx context.Context, m *kit.Message, recipient int64, due time.Time, text string) {
	if strings.TrimSpace(text) == "" {
		r.reply(ctx, m.ChatID, "What should the reminder say?")
		return
	}
	it, err := r.svc.Create(ctx, reminder.CreateRequest{
		ChatID:      m.ChatID,
		AuthorID:    m.FromID,
		RecipientID: recipient,
		Message:     text,
		DueAt:       due,
		Permalink:   permalink(m.ChatID, m.ID),
	})
	if err != nil {
		if errors.Is(err, reminder.ErrInvalidSchedule) {
			r.reply(ctx, m.ChatID, "That time is already in the past.")
			return
		}
		r.log.Error("create failed", logx.Int64("user", m.FromID), logx.Err(err))
		r.reply(ctx, m.ChatID, "Something went wrong, reminder not saved.")
		return
	}
	r.reply(ctx, m.ChatID, fmt.Sprintf(
		"Saved <b>#%d</b> — firing %s (in %s).",
		it.ID, it.DueAt.Format(timeLayout), formatUntil(it.DueAt, time.Now()),
	))
}

func (r *Router) cmdList(ctx context.Context, m *kit.Message, args string) {
	status := reminder.StatusWaiting
	if args != "" {
		var err error
		status, err = reminder.ParseStatus(args)
		if err != nil {
			r.reply(ctx, m.ChatID, "Unknown status. One of: <code>"+reminder.StatusNames()+"</code>")
			return
		}
	}
	me := m.FromID
	items, err := r.svc.List(ctx, reminder.Filter{RecipientID: &me, Status: &status})
	if err != nil {
		r.log.Error("list failed", logx.Int64("user", m.FromID), logx.Err(err))
		r.reply(ctx, m.ChatID, "Could not load your reminders.")
		return
	}
	r.reply(ctx, m.ChatID, formatList("Your "+strings.ToLower(string(status))+" reminders", items))
}

func (r *Router) cmdReminder(ctx context.Context, m *kit.Message, args string) {
	sub, rest, _ := strings.Cut(args, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(sub) {
	case "get":
		r.cmdGet(ctx, m, rest)
	case "all":
		r.cmdAll(ctx, m, rest)
	case "reschedule":
		r.cmdReschedule(ctx, m, rest)
	case "delete":
		r.cmdDelete(ctx, m, rest)
	case "clean":
		r.cmdClean(ctx, m)
	default:
		r.reply(ctx, m.ChatID, helpText)
	}
}

func (r *Router) cmdGet(ctx context.Context, m *kit.Message, args string) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		r.reply(ctx, m.ChatID, "Usage: <code>/reminder get &lt;id&gt;</code>")
		return
	}
	it, err := r.svc.Get(ctx, id)
	if err != nil {
		r.replyLookupErr(ctx, m.ChatID, id, err)
		return
	}
	// Details are visible to the two parties only, owners aside.
	if it.AuthorID != m.FromID && it.RecipientID != m.FromID && !r.isOwner(m.FromID) {
		r.reply(ctx, m.ChatID, fmt.Sprintf("Reminder #%d is not yours.", id))
		return
	}
	r.reply(ctx, m.ChatID, formatDetail(it))
}

func (r *Router) cmdAll(ctx context.Context, m *kit.Message, args string) {
	if !r.isOwner(m.FromID) {
		r.reply(ctx, m.ChatID, "Owners only.")
		return
	}
	f := reminder.Filter{ChatID: &m.ChatID}
	title := "All reminders in this chat"
	if args != "" {
		status, err := reminder.ParseStatus(args)
		if err != nil {
			r.reply(ctx, m.ChatID, "Unknown status. One of: <code>"+reminder.StatusNames()+"</code>")
			return
		}
		f.Status = &status
		title += " (" + strings.ToLower(string(status)) + ")"
	}
	items, err := r.svc.List(ctx, f)
	if err != nil {
		r.log.Error("list-all failed", logx.Err(err))
		r.reply(ctx, m.ChatID, "Could not load reminders.")
		return
	}
	r.reply(ctx, m.ChatID, formatList(title, items))
}

func (r *Router) cmdReschedule(ctx context.Context, m *kit.Message, args string) {
	idRaw, whenRaw, _ := strings.Cut(args, " ")
	id, err := strconv.ParseInt(strings.TrimSpace(idRaw), 10, 64)
	if err != nil {
		r.reply(ctx, m.ChatID, "Usage: <code>/reminder reschedule &lt;id&gt; &lt;when&gt;</code>")
		return
	}
	due, err := ParseWhen(whenRaw, time.Now(), nil)
	if err != nil {
		r.reply(ctx, m.ChatID, "Can't read that date. Try: <code>"+WhenHint+"</code>")
		return
	}
	if !due.After(time.Now()) {
		r.reply(ctx, m.ChatID, "That time is already in the past.")
		return
	}
	it, err := r.svc.Get(ctx, id)
	if err != nil {
		r.replyLookupErr(ctx, m.ChatID, id, err)
		return
	}
	if it.RecipientID != m.FromID {
		r.reply(ctx, m.ChatID, "Only the person being reminded can reschedule.")
		return
	}
	token := r.confirm.put(pendingAction{
		action: actionReschedule,
		userID: m.FromID,
		itemID: id,
		dueAt:  due,
	})
	r.askConfirm(ctx, m.ChatID, fmt.Sprintf(
		"Move <b>#%d</b> to %s?", id, due.Format(timeLayout),
	), actionReschedule, token)
}

func (r *Router) cmdDelete(ctx context.Context, m *kit.Message, args string) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		r.reply(ctx, m.ChatID, "Usage: <code>/reminder delete &lt;id&gt;</code>")
		return
	}
	it, err := r.svc.Get(ctx, id)
	if err != nil {
		r.replyLookupErr(ctx, m.ChatID, id, err)
		return
	}
	if it.RecipientID != m.FromID {
		r.reply(ctx, m.ChatID, "Only the person being reminded can delete.")
		return
	}
	token := r.confirm.put(pendingAction{
		action: actionDelete,
		userID: m.FromID,
		itemID: id,
	})
	r.askConfirm(ctx, m.ChatID, fmt.Sprintf("Delete <b>#%d</b> for good?", id), actionDelete, token)
}

func (r *Router) cmdClean(ctx context.Context, m *kit.Message) {
	cutoff := time.Now().Add(-r.svc.Retention())
	n, err := r.svc.PurgeOld(ctx, m.ChatID, m.FromID, cutoff)
	if err != nil {
		r.log.Error("clean failed", logx.Int64("user", m.FromID), logx.Err(err))
		r.reply(ctx, m.ChatID, "Cleanup failed.")
		return
	}
	r.reply(ctx, m.ChatID, fmt.Sprintf("Removed %d resolved reminder(s).", n))
}

func (r *Router) replyLookupErr(ctx context.Context, chatID, id int64, err error) {
	if errors.Is(err, reminder.ErrNotFound) {
		r.reply(ctx, chatID, fmt.Sprintf("No reminder #%d.", id))
		return
	}
	r.log.Error("lookup failed", logx.Int64("id", id), logx.Err(err))
	r.reply(ctx, chatID, "Lookup failed.")
}

func (r *Router) askConfirm(ctx context.Context, chatID int64, question, action, token string) {
	kb := &kit.InlineKeyboard{Rows: [][]kit.InlineButton{{
		{Text: "Confirm", Data: callbackData(action, token)},
		{Text: "Cancel", Data: callbackData(actionCancel, token)},
	}}}
	_, err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, question, &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: kb,
	})
	if err != nil {
		r.log.Warn("confirm prompt failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) {
	action, token, ok := parseCallbackData(cb.Data)
	if !ok {
		return
	}
	finish := func(note, edit string) {
		if err := r.adapter.AnswerCallback(ctx, cb.ID, note); err != nil {
			r.log.Debug("callback answer failed", logx.Err(err))
		}
		if edit != "" {
			ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
			if err := r.adapter.EditText(ctx, ref, edit, &kit.SendOptions{ParseMode: "HTML"}); err != nil {
				r.log.Debug("callback edit failed", logx.Err(err))
			}
		}
	}

	a, ok := r.confirm.take(token)
	if !ok {
		finish("Expired", "This confirmation has expired.")
		return
	}
	if a.userID != cb.FromID {
		// Someone else pressed the button; keep the action pending is not
		// possible once taken, so treat it as consumed and say so.
		finish("Not your button", "Confirmation cancelled (pressed by another user).")
		return
	}

	switch action {
	case actionCancel:
		finish("Cancelled", "Cancelled, nothing changed.")
	case actionDelete:
		if err := r.svc.Delete(ctx, a.itemID, a.userID); err != nil {
			r.log.Warn("delete failed", logx.Int64("id", a.itemID), logx.Err(err))
			finish("Failed", fmt.Sprintf("Could not delete #%d.", a.itemID))
			return
		}
		finish("Deleted", fmt.Sprintf("Reminder <b>#%d</b> deleted.", a.itemID))
	case actionReschedule:
		it, err := r.svc.Reschedule(ctx, a.itemID, a.userID, a.dueAt, a.message)
		if err != nil {
			r.log.Warn("reschedule failed", logx.Int64("id", a.itemID), logx.Err(err))
			finish("Failed", fmt.Sprintf("Could not reschedule #%d.", a.itemID))
			return
		}
		finish("Rescheduled", fmt.Sprintf(
			"Reminder <b>#%d</b> now fires %s.", it.ID, it.DueAt.Format(timeLayout),
		))
	default:
		finish("", "")
	}
}

// parseSchedule splits "<when> <text>" where <when> is either a two-token
// absolute timestamp or a one-token relative offset.
func parseSchedule(args string, now time.Time) (time.Time, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return time.Time{}, "", ErrBadWhen
	}
	if len(fields) >= 2 {
		if due, err := ParseWhen(fields[0]+" "+fields[1], now, nil); err == nil {
			return due, strings.Join(fields[2:], " "), nil
		}
	}
	due, err := ParseWhen(fields[0], now, nil)
	if err != nil {
		return time.Time{}, "", err
	}
	return due, strings.Join(fields[1:], " "), nil
}

// permalink builds a t.me deep link to the origin message for supergroup
// chats. Private chats and basic groups have no public link form.
func permalink(chatID int64, msgID int) string {
	const marker = int64(-1000000000000)
	if chatID > marker || msgID <= 0 {
		return ""
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", -chatID+marker, msgID)
}
