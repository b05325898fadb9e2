package reminder

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	logx "remindbot/pkg/logx"
)

// Poller is the fixed-interval sweep that feeds due WAITING items to the
// delivery attempter. One Poller instance drives all attempts in a process.
//
// Each tick selects items with due time inside the lookahead horizon
// (now + interval), so an item due at t is attempted at some tick starting
// in [t, t+interval].
type Poller struct {
	svc      *Service
	interval time.Duration
	log      logx.Logger
	ready    <-chan struct{}
	now      func() time.Time

	mu       sync.Mutex
	stopCh   chan struct{}
	stopDone chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewPoller(svc *Service, ready <-chan struct{}, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{
		svc:      svc,
		interval: svc.cfg.PollInterval,
		log:      log,
		ready:    ready,
		now:      svc.now,
	}
}

// Start launches the sweep loop. The first tick waits for the readiness
// signal (the messaging channel must be connected first).
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}
	p.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	stopCh := p.stopCh
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(runCtx, stopCh)
	}()
	p.log.Info("poller started", logx.Duration("interval", p.interval))
}

// Stop prevents any new tick from starting. A tick already in flight runs
// to completion (its attempts are individually timeout-bounded); Stop does
// not wait past ctx.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.stopCh == nil {
		p.mu.Unlock()
		return
	}
	if p.stopDone != nil {
		done := p.stopDone
		p.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	p.stopDone = done
	stopCh := p.stopCh
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		p.wg.Wait()
		p.mu.Lock()
		p.stopCh = nil
		p.stopDone = nil
		p.mu.Unlock()
		close(done)
		p.log.Info("poller stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// cleanup continues in background
	}
}

func (p *Poller) run(ctx context.Context, stopCh <-chan struct{}) {
	if p.ready != nil {
		select {
		case <-p.ready:
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// First sweep right after readiness; overdue items should not wait a
	// full interval.
	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one sweep: select WAITING items due before now+interval and
// attempt each synchronously in store order. A failing or panicking item
// never aborts the rest of the tick.
func (p *Poller) tick(ctx context.Context) {
	start := p.now()
	horizon := start.Add(p.interval)

	st := StatusWaiting
	items, err := p.svc.store.Find(ctx, Filter{Status: &st, DueBefore: &horizon})
	if err != nil {
		p.log.Error("due item query failed", logx.Err(err))
		return
	}

	for i := range items {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.safeAttempt(ctx, items[i])
	}

	if len(items) > 0 {
		p.log.Debug("tick done",
			logx.Int("items", len(items)),
			logx.Duration("took", time.Since(start)))
	}
	p.svc.publish(EventTick, TickData{Scanned: len(items), Took: time.Since(start)})
}

func (p *Poller) safeAttempt(ctx context.Context, it Item) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic while attempting reminder",
				logx.Int64("id", it.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	p.svc.Attempt(ctx, it)
}
