// Package metrics exposes Prometheus counters for the reminder pipeline.
// The collector feeds off the event bus so the core stays metrics-free.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string // listen address for /metrics, e.g. ":9090"
}

type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus
	reg *prometheus.Registry

	created     prometheus.Counter
	delivered   prometheus.Counter
	failed      *prometheus.CounterVec
	rescheduled prometheus.Counter
	purged      prometheus.Counter
	tickSec     prometheus.Histogram
	tickScanned prometheus.Gauge

	mu      sync.Mutex
	srv     *http.Server
	unsub   func()
	done    chan struct{}
	running bool
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	s := &Service{
		cfg: cfg,
		log: log,
		bus: bus,
		reg: prometheus.NewRegistry(),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_created_total",
			Help: "Reminders accepted and persisted.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_delivered_total",
			Help: "Reminders delivered to their recipient.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reminders_failed_total",
			Help: "Reminder delivery attempts that failed terminally.",
		}, []string{"reason"}),
		rescheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_rescheduled_total",
			Help: "Reminders moved to a new due time.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reminders_purged_total",
			Help: "Resolved reminders removed by retention cleanup.",
		}),
		tickSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reminder_tick_seconds",
			Help:    "Duration of one scheduler sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		tickScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reminder_tick_scanned",
			Help: "Items picked up by the last scheduler sweep.",
		}),
	}
	s.reg.MustRegister(
		s.created, s.delivered, s.failed, s.rescheduled,
		s.purged, s.tickSec, s.tickScanned,
	)
	return s
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.cfg.Enabled {
		return nil
	}
	s.running = true
	s.done = make(chan struct{})

	ch, unsub := s.bus.Subscribe(256)
	s.unsub = unsub
	go s.consume(ch)

	if s.cfg.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
		s.srv = &http.Server{
			Addr:              s.cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		srv := s.srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("metrics listener failed", logx.Err(err))
			}
		}()
		s.log.Info("metrics exposed", logx.String("addr", s.cfg.Addr))
	}
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	unsub := s.unsub
	srv := s.srv
	done := s.done
	s.unsub = nil
	s.srv = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if srv != nil {
		sctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	return nil
}

func (s *Service) consume(ch <-chan eventbus.Event) {
	defer close(s.done)
	for ev := range ch {
		switch ev.Type {
		case reminder.EventCreated:
			s.created.Inc()
		case reminder.EventDelivered:
			s.delivered.Inc()
		case reminder.EventFailed:
			reason := "transport"
			if fd, ok := ev.Data.(reminder.FailData); ok && fd.Reason != "" {
				reason = fd.Reason
			}
			s.failed.WithLabelValues(reason).Inc()
		case reminder.EventRescheduled:
			s.rescheduled.Inc()
		case reminder.EventPurged:
			if pd, ok := ev.Data.(reminder.PurgeData); ok {
				s.purged.Add(float64(pd.Count))
			}
		case reminder.EventTick:
			if td, ok := ev.Data.(reminder.TickData); ok {
				s.tickSec.Observe(td.Took.Seconds())
				s.tickScanned.Set(float64(td.Scanned))
			}
		}
	}
}
