package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors, served at GET /metrics on the diagnostics API.
var (
	participantsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huddle",
		Name:      "participants",
		Help:      "Number of currently joined participants.",
	})

	datagramsForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "datagrams_forwarded_total",
		Help:      "Datagrams fanned out, by media endpoint.",
	}, []string{"endpoint"})

	bytesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "bytes_forwarded_total",
		Help:      "Payload bytes fanned out, by media endpoint.",
	}, []string{"endpoint"})

	mixTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "mix_ticks_total",
		Help:      "Audio mix cycles executed.",
	})

	chatMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "huddle",
		Name:      "chat_messages_total",
		Help:      "Public chat messages fanned out.",
	})

	filesStored = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "huddle",
		Name:      "files_stored",
		Help:      "Shared files currently held in the store.",
	})
)

// RunStatsLogger logs hub traffic counters every interval until ctx is
// canceled. Quiet when the hub is idle.
func RunStatsLogger(ctx context.Context, hub *Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			datagrams, bytes := hub.Stats()
			clients := hub.reg.Count()
			if clients > 0 || datagrams > 0 {
				slog.Info("hub stats",
					"participants", clients,
					"datagrams", datagrams,
					"kb_per_sec", float64(bytes)/interval.Seconds()/1024)
			}
		}
	}
}
