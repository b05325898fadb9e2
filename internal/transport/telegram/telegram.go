// Package telegram implements transport.Adapter on top of telebot.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores chan<- kit.Update

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	readyOnce sync.Once
	ready     chan struct{}

	dropped uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, ready: make(chan struct{})}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Ready() <-chan struct{} { return a.ready }

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		var replyTo int64
		if m.ReplyTo != nil && m.ReplyTo.Sender != nil {
			replyTo = m.ReplyTo.Sender.ID
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
				ReplyToID:    replyTo,
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				FromID:    cb.Sender.ID,
				ChatID:    m.Chat.ID,
				MessageID: m.ID,
				Data:      strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	// Periodic summary for dropped updates to avoid per-update log spam.
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.dropped, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	sup.Go0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started", logx.String("bot", a.bot.Me.Username))
		// Connected and authenticated (NewBot did getMe); the poll loop is
		// about to run, so downstream consumers may start.
		a.readyOnce.Do(func() { close(a.ready) })
		a.bot.Start()
		a.log.Info("polling stopped")
	})

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}
	if a.bot != nil {
		go a.bot.Stop()
	}

	// Keep shutdown snappy even if the long-poll is still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if sup != nil {
		if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("telegram stop error", logx.Err(err))
		}
	}
	return nil
}

// ResolveRecipient resolves a user id to a deliverable recipient. For a
// group chat (negative id) it first checks membership of that chat; a user
// who left or was never there falls back to the global lookup by id.
func (a *Adapter) ResolveRecipient(ctx context.Context, userID, chatID int64) (kit.Recipient, error) {
	if chatID < 0 {
		member, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
		if err == nil && member != nil && member.User != nil && memberPresent(member.Role) {
			return recipientFromUser(member.User), nil
		}
	}
	chat, err := a.bot.ChatByID(userID)
	if err != nil {
		return kit.Recipient{}, classifyResolveErr(err)
	}
	return kit.Recipient{
		ID:          chat.ID,
		Username:    chat.Username,
		DisplayName: displayName(chat.FirstName, chat.LastName, chat.Username),
	}, nil
}

func memberPresent(r tele.MemberStatus) bool {
	return r != tele.Left && r != tele.Kicked
}

func recipientFromUser(u *tele.User) kit.Recipient {
	return kit.Recipient{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: displayName(u.FirstName, u.LastName, u.Username),
	}
}

func displayName(first, last, username string) string {
	name := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
	if name != "" {
		return name
	}
	return username
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		default:
		}
	}

	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ReplyMarkup:           toMarkup(opt.ReplyMarkupAdapter),
	}

	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOpt)
	if err != nil {
		return kit.MessageRef{}, classifySendErr(err)
	}
	return kit.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ReplyMarkup:           toMarkup(opt.ReplyMarkupAdapter),
	}
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
	_, err := a.bot.Edit(stored, text, sendOpt)
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// toMarkup translates the neutral keyboard to telebot markup. A raw
// *tele.ReplyMarkup passes through untouched.
func toMarkup(v any) *tele.ReplyMarkup {
	switch m := v.(type) {
	case nil:
		return nil
	case *tele.ReplyMarkup:
		return m
	case *kit.InlineKeyboard:
		if m == nil || len(m.Rows) == 0 {
			return nil
		}
		rm := &tele.ReplyMarkup{}
		rows := make([][]tele.InlineButton, 0, len(m.Rows))
		for _, row := range m.Rows {
			btns := make([]tele.InlineButton, 0, len(row))
			for _, b := range row {
				btns = append(btns, tele.InlineButton{Text: b.Text, Data: b.Data})
			}
			rows = append(rows, btns)
		}
		rm.InlineKeyboard = rows
		return rm
	}
	return nil
}

// classifySendErr maps telebot send failures to the transport taxonomy so
// the core can distinguish "denied" from plain transport errors.
func classifySendErr(err error) error {
	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrNotStartedByUser):
		return errors.Join(kit.ErrDeliveryDenied, err)
	}
	var terr *tele.Error
	if errors.As(err, &terr) && terr.Code == 403 {
		return errors.Join(kit.ErrDeliveryDenied, err)
	}
	return err
}

func classifyResolveErr(err error) error {
	if errors.Is(err, tele.ErrChatNotFound) {
		return errors.Join(kit.ErrRecipientNotFound, err)
	}
	var terr *tele.Error
	if errors.As(err, &terr) && (terr.Code == 400 || terr.Code == 404) {
		return errors.Join(kit.ErrRecipientNotFound, err)
	}
	return err
}
