// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var BotEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bingo",
	Subsystem: "bot",
	Name:      "events_total",
	Help:      "Inbound bot events by kind (command, callback, text).",
}, []string{"kind"})

var BotEventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "bingo",
	Subsystem: "bot",
	Name:      "event_duration_seconds",
	Help:      "Time spent handling one inbound event.",
	Buckets:   prometheus.DefBuckets,
}, []string{"kind"})

var CaptchaAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bingo",
	Subsystem: "onboarding",
	Name:      "captcha_attempts_total",
	Help:      "Captcha answers by result (solved, wrong, exhausted).",
}, []string{"result"})

var Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bingo",
	Subsystem: "onboarding",
	Name:      "registrations_total",
	Help:      "Users created, split by whether a referrer was credited.",
}, []string{"referred"})

var PointsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bingo",
	Subsystem: "ledger",
	Name:      "points_credited_total",
	Help:      "Points credited by source.",
}, []string{"source"})

var TaskCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bingo",
	Subsystem: "ledger",
	Name:      "task_completions_total",
	Help:      "Task completions by verification kind.",
}, []string{"kind"})

var Withdrawals = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bingo",
	Subsystem: "ledger",
	Name:      "withdrawals_total",
	Help:      "Withdrawal transitions by status.",
}, []string{"status"})

var BroadcastDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bingo",
	Subsystem: "admin",
	Name:      "broadcast_deliveries_total",
	Help:      "Broadcast sends by result.",
}, []string{"result"})

var ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "bingo",
	Subsystem: "api",
	Name:      "ws_subscribers",
	Help:      "Open websocket subscriptions to ledger events.",
})
