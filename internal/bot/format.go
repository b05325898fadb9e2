package bot

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/reminder"
	"remindbot/pkg/textkit"
)

const timeLayout = "02-01-2006 15:04:05"

// previewLen bounds the message excerpt shown in list output.
const previewLen = 30

func statusBadge(s reminder.Status) string {
	switch s {
	case reminder.StatusWaiting:
		return "⏳"
	case reminder.StatusReminded:
		return "✅"
	case reminder.StatusFailed:
		return "❌"
	}
	return "•"
}

func formatLine(it reminder.Item) string {
	return fmt.Sprintf("%s <b>#%d</b> — %s — %s",
		statusBadge(it.Status),
		it.ID,
		it.DueAt.Format(timeLayout),
		textkit.EscapeHTML(textkit.TruncRunes(it.Message, previewLen)),
	)
}

func formatList(title string, items []reminder.Item) string {
	if len(items) == 0 {
		return fmt.Sprintf("<b>%s</b>\nNothing here.", textkit.EscapeHTML(title))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", textkit.EscapeHTML(title))
	for _, it := range items {
		b.WriteString(formatLine(it))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDetail(it reminder.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Reminder #%d</b> %s\n", it.ID, statusBadge(it.Status))
	fmt.Fprintf(&b, "Status: <code>%s</code>\n", it.Status)
	fmt.Fprintf(&b, "Due: <code>%s</code>\n", it.DueAt.Format(timeLayout))
	fmt.Fprintf(&b, "Created: <code>%s</code>\n", it.OriginAt.Format(timeLayout))
	fmt.Fprintf(&b, "From: <code>%d</code> → To: <code>%d</code>\n", it.AuthorID, it.RecipientID)
	if it.Permalink != "" {
		fmt.Fprintf(&b, "<a href=\"%s\">origin message</a>\n", it.Permalink)
	}
	fmt.Fprintf(&b, "\n%s", textkit.EscapeHTML(it.Message))
	return b.String()
}

func formatUntil(due, now time.Time) string {
	d := due.Sub(now).Round(time.Second)
	if d <= 0 {
		return "now"
	}
	var parts []string
	if w := d / (7 * 24 * time.Hour); w > 0 {
		parts = append(parts, fmt.Sprintf("%dw", w))
		d -= w * 7 * 24 * time.Hour
	}
	if days := d / (24 * time.Hour); days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
		d -= days * 24 * time.Hour
	}
	if h := d / time.Hour; h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
		d -= m * time.Minute
	}
	if s := d / time.Second; s > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", s))
	}
	return strings.Join(parts, "")
}
