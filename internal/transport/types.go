// Package transport defines the narrow boundary between the reminder core
// and the messaging channel. The core only ever sees this interface; the
// Telegram implementation lives in transport/telegram.
package transport

import (
	"context"
	"errors"
)

// ErrRecipientNotFound reports that a recipient id could not be resolved
// to a reachable chat (unknown user, never started the bot, left the scope).
var ErrRecipientNotFound = errors.New("transport: recipient not found")

// ErrDeliveryDenied reports a transport-level refusal: the recipient blocked
// the bot or the bot lacks permission to message them.
var ErrDeliveryDenied = errors.New("transport: delivery denied")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool

	// ReplyToID is the user id of the replied-to message author (0 if the
	// update is not a reply). Used by /remind to target a user by reply.
	ReplyToID int64
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkupAdapter carries either a *InlineKeyboard or
	// adapter-specific markup (Telegram: *telebot.ReplyMarkup).
	ReplyMarkupAdapter any
}

// InlineButton is one pressable button; Data comes back in a Callback.
type InlineButton struct {
	Text string
	Data string
}

// InlineKeyboard is a transport-neutral inline keyboard attached to a
// message. Adapters translate it to their native markup.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// Recipient is a resolved delivery target.
type Recipient struct {
	ID          int64
	Username    string
	DisplayName string
}

// Adapter is the messaging channel as seen by the rest of the program.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Ready is closed once the channel is connected and updates flow.
	// The poll scheduler does not tick before this.
	Ready() <-chan struct{}

	// ResolveRecipient resolves a user id to a reachable recipient.
	// When chatID names a group chat the lookup is scoped to it first,
	// falling back to a global lookup by id. Returns ErrRecipientNotFound
	// on failure.
	ResolveRecipient(ctx context.Context, userID, chatID int64) (Recipient, error)

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
