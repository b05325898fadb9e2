// Package bot turns transport updates into reminder-service calls. It owns
// command parsing, per-user cooldowns and the confirmation dialogs for
// destructive operations.
package bot

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// OwnerUserIDs may use /reminder all and see every chat's items.
	OwnerUserIDs []int64

	// CooldownBurst commands per CooldownWindow, per user. Defaults: 5 / 20s.
	CooldownBurst  int
	CooldownWindow time.Duration
}

func (c *Config) normalize() {
	if c.CooldownBurst <= 0 {
		c.CooldownBurst = 5
	}
	if c.CooldownWindow <= 0 {
		c.CooldownWindow = 20 * time.Second
	}
}

type Router struct {
	cfg     Config
	adapter kit.Adapter
	svc     *reminder.Service
	log     logx.Logger
	owners  map[int64]struct{}
	confirm *confirmStore

	limMu    sync.Mutex
	limiters map[int64]*rate.Limiter

	runMu     sync.Mutex
	running   bool
	updates   chan kit.Update
	runCtx    context.Context
	runCancel context.CancelFunc
	stopCh    chan struct{}
	stopDone  chan struct{}
}

func New(cfg Config, adapter kit.Adapter, svc *reminder.Service, log logx.Logger) *Router {
	cfg.normalize()
	owners := make(map[int64]struct{}, len(cfg.OwnerUserIDs))
	for _, id := range cfg.OwnerUserIDs {
		owners[id] = struct{}{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:      cfg,
		adapter:  adapter,
		svc:      svc,
		log:      log,
		owners:   owners,
		confirm:  newConfirmStore(),
		limiters: map[int64]*rate.Limiter{},
	}
}

func (r *Router) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return nil
	}
	r.updates = make(chan kit.Update, 128)
	if err := r.adapter.Start(ctx, r.updates); err != nil {
		return err
	}
	r.running = true
	r.runCtx, r.runCancel = context.WithCancel(ctx)
	r.stopCh = make(chan struct{})
	r.stopDone = make(chan struct{})
	go r.loop(r.updates, r.stopCh, r.stopDone)
	return nil
}

func (r *Router) Stop(ctx context.Context) error {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return nil
	}
	r.running = false
	stopCh := r.stopCh
	stopDone := r.stopDone
	runCancel := r.runCancel
	r.runMu.Unlock()

	close(stopCh)
	runCancel()
	err := r.adapter.Stop(ctx)
	select {
	case <-stopDone:
	case <-ctx.Done():
	}
	return err
}

func (r *Router) loop(updates <-chan kit.Update, stopCh <-chan struct{}, stopDone chan<- struct{}) {
	defer close(stopDone)
	for {
		select {
		case <-stopCh:
			return
		case up := <-updates:
			r.dispatch(up)
		}
	}
}

func (r *Router) dispatch(up kit.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panicked",
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	r.runMu.Lock()
	base := r.runCtx
	r.runMu.Unlock()
	if base == nil {
		base = context.Background()
	}
	// Handlers inherit the run context so Stop interrupts in-flight work.
	ctx, cancel := context.WithTimeout(base, 15*time.Second)
	defer cancel()

	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return
		}
		r.handleMessage(ctx, up.Message)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		r.handleCallback(ctx, up.Callback)
	}
}

// allow enforces the per-user command cooldown.
func (r *Router) allow(userID int64) bool {
	r.limMu.Lock()
	defer r.limMu.Unlock()
	lim, ok := r.limiters[userID]
	if !ok {
		every := r.cfg.CooldownWindow / time.Duration(r.cfg.CooldownBurst)
		lim = rate.NewLimiter(rate.Every(every), r.cfg.CooldownBurst)
		r.limiters[userID] = lim
	}
	return lim.Allow()
}

func (r *Router) isOwner(userID int64) bool {
	_, ok := r.owners[userID]
	return ok
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	_, err := r.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

// splitCommand extracts "/cmd" and the argument tail from a message,
// tolerating the /cmd@botname address form used in groups.
func splitCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, tail, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(head, '@'); at > 0 {
		head = head[:at]
	}
	return strings.ToLower(head), strings.TrimSpace(tail), true
}
