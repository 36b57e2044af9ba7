// Package metrics exports bot activity as Prometheus metrics. The collector
// feeds itself from the event bus so producers never import it.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"twitchbot/internal/eventbus"
)

const namespace = "twitchbot"

type Collector struct {
	reg *prometheus.Registry

	events       *prometheus.CounterVec
	dispatches   *prometheus.CounterVec
	dispatchDur  *prometheus.HistogramVec
	actionErrors *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
	reloads      prometheus.Counter
	channels     prometheus.Gauge
}

// New registers the bot metrics, the Go runtime collectors and a gauge of
// events dropped by bus on a fresh registry. bus may be nil.
func New(bus eventbus.Bus) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	c := &Collector{
		reg: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_events_total",
			Help:      "Transport events received by kind",
		}, []string{"kind"}),
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatch outcomes by event kind and outcome",
		}, []string{"kind", "outcome"}),
		dispatchDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent rendering and sending a response",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"kind"}),
		actionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_action_errors_total",
			Help:      "Template action handlers that failed, by action",
		}, []string{"action"}),
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_total",
			Help:      "Webhook deliveries by outcome",
		}, []string{"outcome"}),
		reloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads applied",
		}),
		channels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels_active",
			Help:      "Active channels in the current configuration",
		}),
	}
	if bus != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eventbus_dropped_total",
			Help:      "Events dropped because a subscriber was full",
		}, func() float64 { return float64(eventbus.Dropped(bus)) })
	}
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// SetChannels records the number of active channels.
func (c *Collector) SetChannels(n int) { c.channels.Set(float64(n)) }

// Observe folds one bus event into the metrics. Unknown topics are ignored.
func (c *Collector) Observe(e eventbus.Event) {
	switch ev := e.Data.(type) {
	case eventbus.ChatEventSeen:
		c.events.WithLabelValues(ev.Kind).Inc()
	case eventbus.DispatchEvent:
		c.dispatches.WithLabelValues(ev.Kind, ev.Outcome).Inc()
		if ev.Outcome == eventbus.OutcomeSent || ev.Outcome == eventbus.OutcomeFailed {
			c.dispatchDur.WithLabelValues(ev.Kind).Observe(float64(ev.TookMS) / 1000)
		}
	case eventbus.ActionErrorEvent:
		c.actionErrors.WithLabelValues(ev.Action).Inc()
	case eventbus.WebhookEvent:
		c.webhooks.WithLabelValues(ev.Outcome).Inc()
	case eventbus.ReloadEvent:
		c.reloads.Inc()
		c.SetChannels(ev.Channels)
	}
}

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	events, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}
